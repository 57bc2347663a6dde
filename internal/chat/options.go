package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Limiter throttles chat lines of one session. *rate.Limiter satisfies it.
type Limiter interface {
	Allow() bool
}

// Option configures a Handler.
type Option func(h *Handler) error

func setup(h *Handler, options ...Option) error {
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(h); err != nil {
			return err
		}
	}
	return nil
}

// WithLogger sets the logger used for session events and as server console.
func WithLogger(log logrus.FieldLogger) Option {
	return func(h *Handler) error {
		if log == nil {
			return errors.New("chat.WithLogger: logger is nil")
		}
		h.log = log
		return nil
	}
}

// WithMaxLineLength limits the size of a single inbound line in bytes.
// Longer lines end the session.
func WithMaxLineLength(n int) Option {
	return func(h *Handler) error {
		if n <= 0 {
			return fmt.Errorf("chat.WithMaxLineLength: invalid length (%d)", n)
		}
		h.maxLine = n
		return nil
	}
}

// WithWriteTimeout bounds every write to a session's connection.
// Zero disables the deadline.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(h *Handler) error {
		if timeout < 0 {
			return fmt.Errorf("chat.WithWriteTimeout: invalid timeout (%v)", timeout)
		}
		h.writeTimeout = timeout
		return nil
	}
}

// WithLimiter installs a per-session limiter factory for chat lines.
func WithLimiter(newLimiter func() Limiter) Option {
	return func(h *Handler) error {
		h.newLimiter = newLimiter
		return nil
	}
}

// WithAddressResolver replaces the resolver used by `\ipaddress`.
func WithAddressResolver(resolve AddressResolver) Option {
	return func(h *Handler) error {
		if resolve == nil {
			return errors.New("chat.WithAddressResolver: resolver is nil")
		}
		h.resolve = resolve
		return nil
	}
}

// WithClock replaces time.Now for timestamps and elapsed times.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) error {
		if now == nil {
			return errors.New("chat.WithClock: clock is nil")
		}
		h.now = now
		return nil
	}
}
