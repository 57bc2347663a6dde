// Package testhelpers provides common utilities and helper functions for testing the chat server.
//
// This package contains reusable test utilities shared by the server tests. It provides
// line clients over TCP and WebSocket, and assertions on the line protocol, to reduce
// code duplication in test files.
package testhelpers

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// WaitTimeout bounds every expectation of the helpers.
const WaitTimeout = 2 * time.Second

// LineClient reads server lines in the background so tests can expect them in order.
type LineClient struct {
	t     *testing.T
	send  func(line string) error
	close func() error
	lines chan string
}

// DialLine connects to a chat server over TCP. The connection is closed when the test ends.
func DialLine(t *testing.T, addr string) *LineClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, WaitTimeout)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", addr, err)
	}

	c := &LineClient{
		t: t,
		send: func(line string) error {
			_ = conn.SetWriteDeadline(time.Now().Add(WaitTimeout))
			_, err := io.WriteString(conn, line+"\n")
			return err
		},
		close: conn.Close,
		lines: make(chan string, 128),
	}
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// DialWebSocketLine connects to the WebSocket gateway at url and speaks the line protocol over it.
func DialWebSocketLine(t *testing.T, url string) *LineClient {
	t.Helper()

	conn, err := ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket %s: %v", url, err)
	}

	c := &LineClient{
		t: t,
		send: func(line string) error {
			_ = conn.SetWriteDeadline(time.Now().Add(WaitTimeout))
			return conn.WriteMessage(websocket.TextMessage, []byte(line))
		},
		close: conn.Close,
		lines: make(chan string, 128),
	}
	go func() {
		defer close(c.lines)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			c.lines <- string(message)
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// Send writes one line to the server.
func (c *LineClient) Send(line string) {
	c.t.Helper()
	if err := c.send(line); err != nil {
		c.t.Fatalf("Failed to send %q: %v", line, err)
	}
}

// Close closes the client side of the connection.
func (c *LineClient) Close() {
	_ = c.close()
}

// Expect fails the test unless the next line is want.
func (c *LineClient) Expect(want string) {
	c.t.Helper()
	select {
	case got, ok := <-c.lines:
		if !ok {
			c.t.Fatalf("Connection closed while waiting for %q", want)
		}
		if got != want {
			c.t.Fatalf("Expected line %q, got %q", want, got)
		}
	case <-time.After(WaitTimeout):
		c.t.Fatalf("Timed out waiting for %q", want)
	}
}

// ExpectSuffix fails the test unless the next line ends with suffix. It is
// used for timestamped chat lines.
func (c *LineClient) ExpectSuffix(suffix string) string {
	c.t.Helper()
	select {
	case got, ok := <-c.lines:
		if !ok {
			c.t.Fatalf("Connection closed while waiting for %q", suffix)
		}
		if !strings.HasSuffix(got, suffix) {
			c.t.Fatalf("Expected line ending in %q, got %q", suffix, got)
		}
		return got
	case <-time.After(WaitTimeout):
		c.t.Fatalf("Timed out waiting for %q", suffix)
	}
	return ""
}

// ExpectNothing fails the test if a line arrives within quiet.
func (c *LineClient) ExpectNothing(quiet time.Duration) {
	c.t.Helper()
	select {
	case got, ok := <-c.lines:
		if ok {
			c.t.Fatalf("Expected no message, got %q", got)
		}
	case <-time.After(quiet):
	}
}

// ExpectClosed waits for the server to close the connection, discarding lines.
func (c *LineClient) ExpectClosed() {
	c.t.Helper()
	deadline := time.After(WaitTimeout)
	for {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return
			}
		case <-deadline:
			c.t.Fatal("Connection was not closed by the server")
		}
	}
}

// Login completes the username negotiation with name.
func (c *LineClient) Login(name string) {
	c.t.Helper()
	c.Expect(chat.PromptUsername)
	c.Send(name)
	c.Expect(chat.AcceptedUsername)
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, "http://localhost:8080")
}

// ConnectWebSocketWithOrigin dials url presenting origin in the Origin header.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// WebSocketURL converts an httptest server URL into the gateway endpoint URL.
func WebSocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}
