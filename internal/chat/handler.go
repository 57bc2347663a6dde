package chat

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Negotiation lines of the protocol.
const (
	PromptUsername   = "Please type your username."
	RejectedUsername = "Sorry, this username is unavailable"
	AcceptedUsername = "Your username is accepted.Please type messages."
)

// RateLimitedNotice is sent instead of the echo when a chat line is dropped
// by the session's limiter.
const RateLimitedNotice = "You are sending messages too fast, your message was discarded"

const defaultMaxLine = 4096

type state int

const (
	stateConnecting state = iota
	stateNegotiating
	stateChatting
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateNegotiating:
		return "negotiating"
	case stateChatting:
		return "chatting"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler drives the lifecycle of every connection served by it. One Handler
// is shared by all connections of a server.
type Handler struct {
	registry     *Registry
	delivery     *Delivery
	commands     *Commands
	log          logrus.FieldLogger
	now          func() time.Time
	resolve      AddressResolver
	newLimiter   func() Limiter
	maxLine      int
	writeTimeout time.Duration
}

// NewHandler builds a handler over registry.
func NewHandler(registry *Registry, options ...Option) (*Handler, error) {
	if registry == nil {
		return nil, errors.New("chat.NewHandler: registry is nil")
	}
	h := &Handler{
		registry:     registry,
		log:          logrus.StandardLogger(),
		now:          time.Now,
		resolve:      LocalAddress,
		maxLine:      defaultMaxLine,
		writeTimeout: 10 * time.Second,
	}
	if err := setup(h, options...); err != nil {
		return nil, err
	}
	h.delivery = NewDelivery(registry, h.log, h.now)
	h.commands = NewCommands(registry, h.delivery, h.resolve, h.log, h.now)
	return h, nil
}

// Registry returns the registry shared by all sessions of the handler.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// conversation holds what one Serve call needs across states.
type conversation struct {
	session *Session
	conn    io.ReadWriteCloser
	lines   *bufio.Scanner
	limiter Limiter
	log     logrus.FieldLogger
	counted bool
}

// Serve runs a session over conn until the client quits, the stream ends,
// an I/O error occurs, or ctx is cancelled. conn is closed on return.
func (h *Handler) Serve(ctx context.Context, conn io.ReadWriteCloser, addr string) {
	session := NewSession(addr, NewOutbox(conn, h.writeTimeout))
	c := &conversation{
		session: session,
		conn:    conn,
		log:     h.log.WithFields(logrus.Fields{"session": session.id, "addr": addr}),
	}
	defer h.teardown(c)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	for st := stateConnecting; st != stateClosed; {
		next := h.step(c, st)
		c.log.Debugf("Session state %s -> %s", st, next)
		st = next
	}
}

func (h *Handler) step(c *conversation, st state) state {
	switch st {
	case stateConnecting:
		return h.connect(c)
	case stateNegotiating:
		return h.negotiate(c)
	case stateChatting:
		return h.chat(c)
	default:
		return stateClosed
	}
}

func (h *Handler) connect(c *conversation) state {
	c.lines = bufio.NewScanner(c.conn)
	c.lines.Buffer(make([]byte, 0, min(h.maxLine, 512)), h.maxLine)
	if h.newLimiter != nil {
		c.limiter = h.newLimiter()
	}
	h.registry.Connect()
	c.counted = true
	c.log.Info("Connection has been established")
	return stateNegotiating
}

func (h *Handler) negotiate(c *conversation) state {
	for {
		if err := c.session.out.WriteLine(PromptUsername); err != nil {
			h.logIOError(c, "Writing username prompt", err)
			return stateClosed
		}
		name, ok := h.readLine(c)
		if !ok {
			return stateClosed
		}

		err := h.registry.TryRegister(c.session, name, h.now())
		if err == nil {
			break
		}
		c.log.WithError(err).Debugf("Rejected username %q", name)
		if err := c.session.out.WriteLine(RejectedUsername); err != nil {
			h.logIOError(c, "Writing rejection", err)
			return stateClosed
		}
	}

	c.log = c.log.WithField("name", c.session.name)
	if err := c.session.out.WriteLine(AcceptedUsername); err != nil {
		h.logIOError(c, "Writing acceptance", err)
		return stateClosed
	}
	c.log.Infof("%s has entered the chat.", c.session.name)
	return stateChatting
}

func (h *Handler) chat(c *conversation) state {
	for {
		line, ok := h.readLine(c)
		if !ok {
			return stateClosed
		}

		switch {
		case line == "":
		case strings.HasPrefix(line, CommandMarker):
			action, err := h.commands.Process(c.session, line)
			if err != nil {
				if !errors.Is(err, ErrAddressResolution) {
					h.logIOError(c, "Command "+line, err)
					return stateClosed
				}
				c.log.WithError(err).Warnf("Command %s failed", line)
			}
			if action == Quit {
				return stateClosed
			}
		case strings.HasPrefix(line, PrivateMarker):
			recipient, message, err := ParsePrivate(line)
			if err != nil {
				c.log.WithError(err).Warn("Invalid private messaging request")
				continue
			}
			if ok, err := h.allow(c); !ok {
				if err != nil {
					h.logIOError(c, "Writing rate limit notice", err)
					return stateClosed
				}
				continue
			}
			if err := h.delivery.Private(c.session, recipient, message); err != nil {
				h.logIOError(c, "Private message", err)
				return stateClosed
			}
		default:
			if ok, err := h.allow(c); !ok {
				if err != nil {
					h.logIOError(c, "Writing rate limit notice", err)
					return stateClosed
				}
				continue
			}
			h.delivery.Broadcast(c.session, line)
		}
	}
}

// allow consults the limiter. A dropped line is answered with
// RateLimitedNotice; err is the failure to write it.
func (h *Handler) allow(c *conversation) (bool, error) {
	if c.limiter == nil || c.limiter.Allow() {
		return true, nil
	}
	c.log.Warn("Rate limit exceeded; discarding message")
	return false, c.session.out.WriteLine(RateLimitedNotice)
}

// readLine returns the next line without its terminator. ok is false at end
// of stream or on a read error.
func (h *Handler) readLine(c *conversation) (string, bool) {
	if c.lines.Scan() {
		return strings.TrimSuffix(c.lines.Text(), "\r"), true
	}
	if err := c.lines.Err(); err != nil {
		h.logIOError(c, "Reading", err)
	} else {
		c.log.Debug("Client closed the connection")
	}
	return "", false
}

func (h *Handler) logIOError(c *conversation, op string, err error) {
	if IsExpectedCloseError(err) {
		c.log.WithError(err).Debugf("%s: connection closed", op)
		return
	}
	c.log.WithError(err).Warnf("%s failed", op)
}

// teardown is the only exit path of a session. It runs once, whatever state
// the session reached.
func (h *Handler) teardown(c *conversation) {
	c.session.closeOnce.Do(func() {
		registered := h.registry.Unregister(c.session)
		if c.counted {
			h.registry.Disconnect()
		}
		if err := c.conn.Close(); err != nil && !IsExpectedCloseError(err) {
			c.log.WithError(err).Warn("Exception when closing the connection")
		}
		c.session.out.Close()
		if registered {
			h.delivery.Broadcast(c.session, c.session.name+" has left the chat.")
		}
		c.log.Info("Connection has been closed")
	})
}

// IsExpectedCloseError reports whether err is a normal consequence of a
// connection going away.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ErrOutboxClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
