package chat

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// CommandMarker starts a command line, e.g. `\help`.
	CommandMarker = `\`
	// PrivateMarker starts a private message line, e.g. `@bob hello`.
	PrivateMarker = "@"

	stampLayout = "15:04:05"

	recipientAwayNotice = "Recipient is currently away from keyboard, they will see the message when they return"
)

// Delivery fans messages out to session outboxes. Each message is delivered
// in one pass under a single lock, so lines of concurrent broadcasts never
// interleave in any recipient's stream.
type Delivery struct {
	mu       sync.Mutex
	registry *Registry
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewDelivery creates a delivery engine over registry. The logger doubles as
// the server console.
func NewDelivery(registry *Registry, log logrus.FieldLogger, now func() time.Time) *Delivery {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if now == nil {
		now = time.Now
	}
	return &Delivery{
		registry: registry,
		log:      log,
		now:      now,
	}
}

func (d *Delivery) stamp() string {
	return d.now().Format(stampLayout)
}

// Broadcast writes message to every registered session. The sender sees
// "<time> You: <message>", everyone else "<time> <name>: <message>".
// A failing recipient is skipped; the rest still receive the line.
func (d *Delivery) Broadcast(sender *Session, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stamp := d.stamp()
	named := fmt.Sprintf("%s %s: %s", stamp, sender.name, message)
	for _, s := range d.registry.Snapshot() {
		line := named
		if s == sender {
			line = fmt.Sprintf("%s You: %s", stamp, message)
		}
		if err := s.out.WriteLine(line); err != nil {
			d.log.WithFields(logrus.Fields{"name": s.name, "session": s.id}).
				WithError(err).Debug("Skipping stale recipient")
		}
	}
	d.log.Info(named)
}

// Private delivers message from sender to the session registered as
// recipient. The sender always gets an echo, preceded by an away notice if
// the recipient is AFK. An unknown recipient only produces the echo.
// The returned error concerns the sender's own outbox.
func (d *Delivery) Private(sender *Session, recipient, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	stamp := d.stamp()
	echo := fmt.Sprintf("%s (PM >> %s) You: %s", stamp, recipient, message)
	lines := []string{echo}
	if d.registry.IsAFK(recipient) {
		lines = []string{recipientAwayNotice, echo}
	}
	if err := sender.out.WriteLines(lines...); err != nil {
		return fmt.Errorf("private message echo: %w", err)
	}

	target, ok := d.registry.Lookup(recipient)
	if !ok {
		d.log.WithField("name", sender.name).Debugf("Private message to unknown recipient %q dropped", recipient)
		return nil
	}
	if err := target.out.WriteLine(fmt.Sprintf("%s (private)%s: %s", stamp, sender.name, message)); err != nil {
		d.log.WithField("name", recipient).WithError(err).Debug("Skipping stale recipient")
		return nil
	}
	d.log.Infof("%s Private message sent from %s to %s: %s", stamp, sender.name, recipient, message)
	return nil
}

// Notify writes an unstamped notice to every registered session except
// sender, and to the server console.
func (d *Delivery) Notify(sender *Session, notice string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range d.registry.Snapshot() {
		if s == sender {
			continue
		}
		if err := s.out.WriteLine(notice); err != nil {
			d.log.WithField("name", s.name).WithError(err).Debug("Skipping stale recipient")
		}
	}
	d.log.Info(notice)
}

// ParsePrivate splits a line of the form "@<recipient> <message>".
// A line without a body after the recipient is malformed.
func ParsePrivate(line string) (recipient, message string, err error) {
	rest, ok := strings.CutPrefix(line, PrivateMarker)
	if !ok {
		return "", "", fmt.Errorf("%w: missing %q marker", ErrMalformedPrivate, PrivateMarker)
	}
	recipient, message, found := strings.Cut(rest, " ")
	if !found {
		return "", "", fmt.Errorf("%w: no message after recipient %q", ErrMalformedPrivate, recipient)
	}
	return recipient, message, nil
}
