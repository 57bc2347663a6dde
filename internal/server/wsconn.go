// Package server adapts WebSocket connections to the newline-terminated line
// stream the chat handler speaks: every text frame carries one line.
package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	closeGrace = time.Second
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// wsLineConn presents a WebSocket connection as an io.ReadWriteCloser of lines.
type wsLineConn struct {
	conn      *websocket.Conn
	inbound   bytes.Buffer
	done      chan struct{}
	closeOnce sync.Once
}

func newWSLineConn(conn *websocket.Conn, maxMessageSize int64) *wsLineConn {
	c := &wsLineConn{
		conn: conn,
		done: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	c.setupReadConnection()
	go c.keepAlive()
	return c
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection.
func (c *wsLineConn) setupReadConnection() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Read returns the next frame as a line. Newlines inside a frame are folded
// into spaces so one frame never becomes several chat lines.
func (c *wsLineConn) Read(p []byte) (int, error) {
	if c.inbound.Len() == 0 {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return 0, translateReadError(err)
		}
		message = bytes.TrimRight(message, "\r\n")
		message = bytes.ReplaceAll(message, newline, space)
		c.inbound.Write(message)
		c.inbound.Write(newline)
	}
	return c.inbound.Read(p)
}

// translateReadError maps a regular close handshake to end of stream.
func translateReadError(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return io.EOF
		}
	}
	return err
}

// Write sends each complete line of p as its own text frame.
func (c *wsLineConn) Write(p []byte) (int, error) {
	lines := bytes.Split(p, newline)
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	for _, line := range lines {
		if err := c.conn.WriteMessage(websocket.TextMessage, line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// SetWriteDeadline lets the chat outbox bound writes.
func (c *wsLineConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Close sends a close frame and releases the connection. It is safe to call
// more than once.
func (c *wsLineConn) Close() error {
	err := net.ErrClosed
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace),
		)
		err = c.conn.Close()
	})
	return err
}

// keepAlive pings the peer until the connection is closed.
func (c *wsLineConn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(closeGrace)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
