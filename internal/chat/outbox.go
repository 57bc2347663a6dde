package chat

import (
	"io"
	"sync"
	"time"
)

// deadliner is implemented by connections that support write deadlines,
// such as net.Conn.
type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Outbox is the exclusive write endpoint of one session. Writes from the
// owning session and from other sessions' deliveries are serialized so that
// a line is never split by another writer.
type Outbox struct {
	mu      sync.Mutex
	w       io.Writer
	timeout time.Duration
	closed  bool
}

// NewOutbox wraps w. When timeout is positive and w supports write deadlines,
// every write must complete within timeout.
func NewOutbox(w io.Writer, timeout time.Duration) *Outbox {
	return &Outbox{w: w, timeout: timeout}
}

// WriteLine writes a single newline-terminated line.
func (o *Outbox) WriteLine(line string) error {
	return o.WriteLines(line)
}

// WriteLines writes all lines in one critical section.
func (o *Outbox) WriteLines(lines ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	if d, ok := o.w.(deadliner); ok && o.timeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(o.timeout)); err != nil {
			return err
		}
	}
	for _, line := range lines {
		if _, err := io.WriteString(o.w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the outbox as stale. Later writes fail with ErrOutboxClosed.
// The underlying writer is not closed; it belongs to the connection.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

// Closed reports whether Close has been called.
func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
