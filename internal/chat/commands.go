package chat

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Action tells the session handler what to do after a command.
type Action int

const (
	// Continue keeps the session in the chatting state.
	Continue Action = iota
	// Quit ends the session.
	Quit
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Quit:
		return "quit"
	default:
		return "unknown action " + strconv.Itoa(int(a))
	}
}

// HelpLines is the reply to `\help`, in order.
var HelpLines = []string{
	`Command \help - list of commands`,
	`Command \quit - sign out`,
	`Command \numberclients - how many clients in chat room`,
	`Command \servertime - how long has server been running`,
	`Command \clienttime - how long have you been logged in`,
	`Command \ipaddress - ip address of server`,
	`Command \clientnames - list of client names signed in`,
	`Command \afk - notify clients you are away from keyboard`,
	`Command \back - notify clients you are back after being afk`,
	`Command @'username' - for the 'username' of the person you wish to private message followed by message`,
}

// AddressResolver returns a printable address of the host the server runs on.
type AddressResolver func() (string, error)

// LocalAddress resolves the host name and its first address, formatted as
// "host/ip".
func LocalAddress() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve hostname: %w", err)
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("resolve %s: no addresses", host)
	}
	return host + "/" + addrs[0], nil
}

type command func(c *Commands, s *Session) error

var commandTable = map[string]command{
	`\quit`: nil,
	`\help`: func(_ *Commands, s *Session) error {
		return s.out.WriteLines(HelpLines...)
	},
	`\numberclients`: func(c *Commands, s *Session) error {
		return s.out.WriteLine(fmt.Sprintf("Number of clients: %d", c.registry.Connections()))
	},
	`\servertime`: func(c *Commands, s *Session) error {
		elapsed := c.now().Sub(c.registry.Started())
		return s.out.WriteLine("Server has been running for: " + FormatElapsed(elapsed))
	},
	`\clienttime`: func(c *Commands, s *Session) error {
		elapsed := c.now().Sub(s.joined)
		return s.out.WriteLine("You have been logged in for: " + FormatElapsed(elapsed))
	},
	`\ipaddress`: func(c *Commands, s *Session) error {
		addr, err := c.resolve()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAddressResolution, err)
		}
		return s.out.WriteLine("IP address of server: " + addr)
	},
	`\clientnames`: func(c *Commands, s *Session) error {
		return s.out.WriteLines(c.registry.Names()...)
	},
	`\afk`: func(c *Commands, s *Session) error {
		if previous, ok := c.registry.SetAFK(s, true); ok && !previous {
			c.delivery.Notify(s, s.name+" is away from keyboard")
		}
		return nil
	},
	`\back`: func(c *Commands, s *Session) error {
		if previous, ok := c.registry.SetAFK(s, false); ok && previous {
			c.delivery.Notify(s, s.name+" is back")
		}
		return nil
	},
}

// Commands interprets lines starting with CommandMarker.
type Commands struct {
	registry *Registry
	delivery *Delivery
	resolve  AddressResolver
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewCommands creates a command processor. A nil resolver uses LocalAddress.
func NewCommands(registry *Registry, delivery *Delivery, resolve AddressResolver, log logrus.FieldLogger, now func() time.Time) *Commands {
	if resolve == nil {
		resolve = LocalAddress
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if now == nil {
		now = time.Now
	}
	return &Commands{
		registry: registry,
		delivery: delivery,
		resolve:  resolve,
		log:      log,
		now:      now,
	}
}

// Process runs the command on line for s. The whole line must match a
// command; anything else is ignored and the session continues.
// An error means the command failed and sent no reply.
func (c *Commands) Process(s *Session, line string) (Action, error) {
	cmd, ok := commandTable[line]
	if !ok {
		c.log.WithField("name", s.name).Debugf("Ignoring unknown command %q", line)
		return Continue, nil
	}
	if cmd == nil {
		return Quit, nil
	}
	return Continue, cmd(c, s)
}
