// Package server tracks every live connection, whatever its transport, so the
// process can close them all and wait for their sessions on shutdown.
package server

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// ErrUnderStopCondition is returned when the hub is shutting down and does not
// accept new connections. The caller still owns the connection and must close it.
var ErrUnderStopCondition = errors.New("server.Hub: under stop condition")

// peer is one tracked connection.
type peer struct {
	conn      io.Closer
	addr      string
	transport string
}

// Hub keeps the set of live connections and the goroutines serving them.
type Hub struct {
	peers  map[*peer]struct{}
	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    logrus.FieldLogger
}

// NewHub creates a hub ready to track connections.
func NewHub(log logrus.FieldLogger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		peers:  make(map[*peer]struct{}),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Context is cancelled when shutdown starts.
func (h *Hub) Context() context.Context {
	return h.ctx
}

// Count returns the number of tracked connections.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.peers)
}

func (h *Hub) add(p *peer) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.ctx.Err() != nil {
		return ErrUnderStopCondition
	}
	h.peers[p] = struct{}{}
	h.wg.Add(1)
	return nil
}

func (h *Hub) remove(p *peer) {
	h.mutex.Lock()
	delete(h.peers, p)
	count := len(h.peers)
	h.mutex.Unlock()

	h.wg.Done()
	h.log.WithFields(logrus.Fields{"addr": p.addr, "transport": p.transport}).
		Debugf("Connection released. Total connections: %d", count)
}

// Serve tracks conn and runs serve until it returns. serve receives the hub
// context, which is cancelled on shutdown.
func (h *Hub) Serve(conn io.Closer, addr, transport string, serve func(ctx context.Context)) error {
	p := &peer{conn: conn, addr: addr, transport: transport}
	if err := h.add(p); err != nil {
		return err
	}
	defer h.remove(p)

	h.log.WithFields(logrus.Fields{"addr": addr, "transport": transport}).
		Debugf("Connection tracked. Total connections: %d", h.Count())
	serve(h.ctx)
	return nil
}

// shutdownClients closes every tracked connection.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	h.mutex.RLock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mutex.RUnlock()

	for _, p := range peers {
		if err := p.conn.Close(); err != nil && !chat.IsExpectedCloseError(err) {
			h.log.WithField("addr", p.addr).WithError(err).Warn("Error closing client connection")
		}
	}

	h.log.Infof("Closed %d client connections", len(peers))
}

// Shutdown stops accepting connections, closes the live ones, and waits for
// their sessions to finish or for timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.mutex.Lock()
	h.cancel()
	h.mutex.Unlock()

	h.shutdownClients()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
