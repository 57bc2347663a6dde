package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

func relayAsync(ctx context.Context, conn net.Conn, in io.Reader, out io.Writer) <-chan error {
	done := make(chan error, 1)
	go func() { done <- Relay(ctx, conn, in, out) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Relay did not return")
	}
	return nil
}

// TestRelayConversation drives a username negotiation and a server hang up.
func TestRelayConversation(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	stdin, typing := io.Pipe()
	defer typing.Close()

	var out bytes.Buffer
	done := relayAsync(context.Background(), clientSide, stdin, &out)

	reader := bufio.NewReader(serverSide)
	if _, err := io.WriteString(serverSide, chat.PromptUsername+"\n"); err != nil {
		t.Fatal(err)
	}
	go func() { _, _ = io.WriteString(typing, "alice\n") }()

	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "alice\n" {
		t.Errorf("server got %q, want %q", line, "alice\n")
	}

	if _, err := io.WriteString(serverSide, chat.AcceptedUsername+"\n"); err != nil {
		t.Fatal(err)
	}
	serverSide.Close()

	if err := wait(t, done); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Relay() error = %v, want ErrDisconnected", err)
	}

	want := strings.Join([]string{chat.PromptUsername, chat.AcceptedUsername, HelpHint}, "\n") + "\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

// TestRelayEndOfInput verifies that closing stdin ends the relay and the connection.
func TestRelayEndOfInput(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	received := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(serverSide)
		received <- string(data)
	}()

	done := relayAsync(context.Background(), clientSide, strings.NewReader("hello\n\\quit\n"), io.Discard)
	if err := wait(t, done); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	select {
	case data := <-received:
		if data != "hello\n\\quit\n" {
			t.Errorf("server got %q", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed")
	}
}

// TestRelayCancel verifies that cancelling the context closes the connection.
func TestRelayCancel(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	stdin, typing := io.Pipe()
	defer typing.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := relayAsync(ctx, clientSide, stdin, io.Discard)
	cancel()

	if err := wait(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("Relay() error = %v, want context.Canceled", err)
	}
}
