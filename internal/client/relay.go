// Package client relays a terminal to a chat server: lines typed by the user
// go to the server and every server line is printed.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// ErrDisconnected is returned by Relay when the server ends the connection.
var ErrDisconnected = errors.New("client: disconnected from the server")

// HelpHint is printed once the server accepts the username.
const HelpHint = `To see a list of server commands, type \help.`

// maxServerLine bounds one line read from the server. Help and name listings
// are short, but chat lines may carry a full client line plus a prefix.
const maxServerLine = 64 * 1024

// Relay copies lines from in to conn and from conn to out until the server
// closes the connection, in reaches end of input or ctx is done. conn is
// closed on return.
func Relay(ctx context.Context, conn io.ReadWriteCloser, in io.Reader, out io.Writer) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	errs := make(chan error, 2)
	go func() { errs <- receive(conn, out) }()
	go func() { errs <- send(in, conn) }()

	err := <-errs
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func receive(conn io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxServerLine)
	for scanner.Scan() {
		line := scanner.Text()
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
		if line == chat.AcceptedUsername {
			if _, err := fmt.Fprintln(out, HelpHint); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil && !chat.IsExpectedCloseError(err) {
		return fmt.Errorf("read from server: %w", err)
	}
	return ErrDisconnected
}

func send(in io.Reader, conn io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if _, err := io.WriteString(conn, scanner.Text()+"\n"); err != nil {
			if chat.IsExpectedCloseError(err) {
				return ErrDisconnected
			}
			return fmt.Errorf("write to server: %w", err)
		}
	}
	return scanner.Err()
}
