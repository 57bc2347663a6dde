package chat

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var testClock = func() time.Time {
	return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
}

type member struct {
	session *Session
	buf     *bytes.Buffer
}

func (m member) lines() []string {
	out := strings.TrimSuffix(m.buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func join(t *testing.T, r *Registry, name string) member {
	t.Helper()
	buf := &bytes.Buffer{}
	s := NewSession("test", NewOutbox(buf, 0))
	r.Connect()
	if err := r.TryRegister(s, name, testClock()); err != nil {
		t.Fatalf("TryRegister(%q) error = %v", name, err)
	}
	return member{s, buf}
}

func assertLines(t *testing.T, who string, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("%s received %q, want %q", who, got, want)
	}
}

func newTestDelivery(r *Registry) (*Delivery, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return NewDelivery(r, log, testClock), hook
}

// TestBroadcast verifies self and name-addressed variants for 0..N peers.
func TestBroadcast(t *testing.T) {
	for peers := 0; peers <= 3; peers++ {
		r := NewRegistry(testClock())
		d, hook := newTestDelivery(r)
		alice := join(t, r, "alice")
		others := make([]member, 0, peers)
		for i := 0; i < peers; i++ {
			others = append(others, join(t, r, string(rune('b'+i))+"ob"))
		}

		d.Broadcast(alice.session, "hi")

		assertLines(t, "alice", alice.lines(), "12:00:00 You: hi")
		for _, o := range others {
			assertLines(t, o.session.Name(), o.lines(), "12:00:00 alice: hi")
		}
		if last := hook.LastEntry(); last == nil || last.Message != "12:00:00 alice: hi" {
			t.Errorf("server console did not get the broadcast: %v", last)
		}
	}
}

// TestBroadcastSkipsStaleOutbox checks that a closed recipient does not stop delivery.
func TestBroadcastSkipsStaleOutbox(t *testing.T) {
	r := NewRegistry(testClock())
	d, _ := newTestDelivery(r)
	alice := join(t, r, "alice")
	stale := join(t, r, "bob")
	carol := join(t, r, "carol")
	stale.session.Outbox().Close()

	d.Broadcast(alice.session, "still here")

	assertLines(t, "bob", stale.lines())
	assertLines(t, "carol", carol.lines(), "12:00:00 alice: still here")
}

// TestPrivate covers delivery, AFK notice and unknown recipients.
func TestPrivate(t *testing.T) {
	t.Run("recipient present", func(t *testing.T) {
		r := NewRegistry(testClock())
		d, _ := newTestDelivery(r)
		alice, bob, carol := join(t, r, "alice"), join(t, r, "bob"), join(t, r, "carol")

		if err := d.Private(alice.session, "bob", "hello"); err != nil {
			t.Fatal(err)
		}
		assertLines(t, "alice", alice.lines(), "12:00:00 (PM >> bob) You: hello")
		assertLines(t, "bob", bob.lines(), "12:00:00 (private)alice: hello")
		assertLines(t, "carol", carol.lines())
	})

	t.Run("recipient away", func(t *testing.T) {
		r := NewRegistry(testClock())
		d, _ := newTestDelivery(r)
		alice, bob := join(t, r, "alice"), join(t, r, "bob")
		r.SetAFK(bob.session, true)

		if err := d.Private(alice.session, "bob", "hello"); err != nil {
			t.Fatal(err)
		}
		assertLines(t, "alice", alice.lines(), recipientAwayNotice, "12:00:00 (PM >> bob) You: hello")
		assertLines(t, "bob", bob.lines(), "12:00:00 (private)alice: hello")
	})

	t.Run("unknown recipient", func(t *testing.T) {
		r := NewRegistry(testClock())
		d, _ := newTestDelivery(r)
		alice, bob := join(t, r, "alice"), join(t, r, "bob")

		if err := d.Private(alice.session, "dave", "hello"); err != nil {
			t.Fatal(err)
		}
		assertLines(t, "alice", alice.lines(), "12:00:00 (PM >> dave) You: hello")
		assertLines(t, "bob", bob.lines())
	})

	t.Run("sender outbox closed", func(t *testing.T) {
		r := NewRegistry(testClock())
		d, _ := newTestDelivery(r)
		alice, bob := join(t, r, "alice"), join(t, r, "bob")
		alice.session.Outbox().Close()

		if err := d.Private(alice.session, "bob", "hello"); !errors.Is(err, ErrOutboxClosed) {
			t.Errorf("Private() error = %v, want ErrOutboxClosed", err)
		}
		assertLines(t, "bob", bob.lines())
	})
}

// TestNotifySkipsSender checks AFK style notices.
func TestNotifySkipsSender(t *testing.T) {
	r := NewRegistry(testClock())
	d, _ := newTestDelivery(r)
	alice, bob := join(t, r, "alice"), join(t, r, "bob")

	d.Notify(alice.session, "alice is away from keyboard")

	assertLines(t, "alice", alice.lines())
	assertLines(t, "bob", bob.lines(), "alice is away from keyboard")
}

// TestParsePrivate covers well-formed and malformed private lines.
func TestParsePrivate(t *testing.T) {
	tests := []struct {
		line          string
		recipient     string
		message       string
		wantMalformed bool
	}{
		{"@bob hello", "bob", "hello", false},
		{"@bob hello there", "bob", "hello there", false},
		{"@bob ", "bob", "", false},
		{"@bob", "", "", true},
		{"@", "", "", true},
		{"bob hello", "", "", true},
	}

	for _, tt := range tests {
		recipient, message, err := ParsePrivate(tt.line)
		if tt.wantMalformed {
			if !errors.Is(err, ErrMalformedPrivate) {
				t.Errorf("ParsePrivate(%q) error = %v, want ErrMalformedPrivate", tt.line, err)
			}
			continue
		}
		if err != nil || recipient != tt.recipient || message != tt.message {
			t.Errorf("ParsePrivate(%q) = (%q, %q, %v), want (%q, %q, nil)",
				tt.line, recipient, message, err, tt.recipient, tt.message)
		}
	}
}

// TestOutboxWriteLinesAtomic checks closed outboxes and multi-line writes.
func TestOutboxWriteLinesAtomic(t *testing.T) {
	buf := &bytes.Buffer{}
	o := NewOutbox(buf, time.Second)
	if err := o.WriteLines("one", "two"); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "one\ntwo\n" {
		t.Errorf("unexpected outbox content %q", buf.String())
	}
	o.Close()
	if !o.Closed() {
		t.Error("Closed() = false after Close")
	}
	if err := o.WriteLine("three"); !errors.Is(err, ErrOutboxClosed) {
		t.Errorf("WriteLine() after Close error = %v", err)
	}

	failing := NewOutbox(errWriter{}, 0)
	if err := failing.WriteLine("x"); !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("WriteLine() error = %v, want io.ErrShortWrite", err)
	}
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, io.ErrShortWrite }

// trickleWriter writes one byte at a time and yields in between, so writers
// that are not serialized splice their output.
type trickleWriter struct {
	buf bytes.Buffer
}

func (w *trickleWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		w.buf.WriteByte(b)
		runtime.Gosched()
	}
	return len(p), nil
}

// TestConcurrentDeliveryKeepsLinesWhole runs broadcasts from many sessions
// and direct multi-line outbox writes against one recipient at once.
func TestConcurrentDeliveryKeepsLinesWhole(t *testing.T) {
	const (
		senders  = 8
		messages = 40
		blocks   = 4
	)

	r := NewRegistry(testClock())
	d, _ := newTestDelivery(r)

	sink := &trickleWriter{}
	recipient := NewSession("test", NewOutbox(sink, 0))
	if err := r.TryRegister(recipient, "zed", testClock()); err != nil {
		t.Fatal(err)
	}

	var peers []member
	for i := 0; i < senders; i++ {
		peers = append(peers, join(t, r, fmt.Sprintf("s%d", i)))
	}

	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p member) {
			defer wg.Done()
			for i := 0; i < messages; i++ {
				d.Broadcast(p.session, fmt.Sprintf("%s-%d", p.session.Name(), i))
			}
		}(p)
	}
	for b := 0; b < blocks; b++ {
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			for i := 0; i < messages; i++ {
				begin, end := fmt.Sprintf("block-%d-%d-begin", b, i), fmt.Sprintf("block-%d-%d-end", b, i)
				if err := recipient.Outbox().WriteLines(begin, end); err != nil {
					t.Errorf("WriteLines() error = %v", err)
					return
				}
			}
		}(b)
	}
	wg.Wait()

	broadcast := regexp.MustCompile(`^12:00:00 (s\d+): (s\d+)-(\d+)$`)
	block := regexp.MustCompile(`^block-(\d+)-(\d+)-begin$`)
	next := make(map[string]int)
	received := 0

	lines := strings.Split(strings.TrimSuffix(sink.buf.String(), "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if m := block.FindStringSubmatch(line); m != nil {
			want := fmt.Sprintf("block-%s-%s-end", m[1], m[2])
			if i+1 >= len(lines) || lines[i+1] != want {
				t.Fatalf("line %d: %q not followed by %q", i, line, want)
			}
			i++
			continue
		}
		m := broadcast.FindStringSubmatch(line)
		if m == nil || m[1] != m[2] {
			t.Fatalf("line %d is not a whole message: %q", i, line)
		}
		n, _ := strconv.Atoi(m[3])
		if n != next[m[1]] {
			t.Fatalf("line %d: %s message %d arrived, want %d", i, m[1], n, next[m[1]])
		}
		next[m[1]]++
		received++
	}

	if received != senders*messages {
		t.Errorf("recipient got %d broadcast lines, want %d", received, senders*messages)
	}
	if want := received + 2*blocks*messages; len(lines) != want {
		t.Errorf("recipient got %d lines, want %d", len(lines), want)
	}
	for _, p := range peers {
		if got := len(p.lines()); got != senders*messages {
			t.Errorf("%s got %d lines, want %d", p.session.Name(), got, senders*messages)
		}
	}
}
