// Package server runs the TCP accept loop and the optional WebSocket gateway
// in front of one shared chat handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Server accepts chat connections over TCP and, when configured, WebSocket.
type Server struct {
	cfg      Config
	log      logrus.FieldLogger
	handler  *chat.Handler
	hub      *Hub
	origins  originPolicy
	upgrader *websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
}

// New creates a server for cfg. The server start time, reported by
// `\servertime`, is the time New is called.
func New(cfg Config, log logrus.FieldLogger, options ...chat.Option) (*Server, error) {
	if log == nil {
		return nil, errors.New("server.New: logger is nil")
	}
	cfg = sanitizeConfig(cfg)

	handlerOptions := []chat.Option{
		chat.WithLogger(log),
		chat.WithMaxLineLength(cfg.MaxLineLength),
		chat.WithWriteTimeout(cfg.WriteTimeout),
		chat.WithLimiter(limiterFactory(cfg.RateLimit)),
	}
	handler, err := chat.NewHandler(chat.NewRegistry(time.Now()), append(handlerOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("server.New: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		log:     log,
		handler: handler,
		hub:     NewHub(log),
		origins: newOriginPolicy(cfg.AllowedOrigins, log),
	}
	s.upgrader = s.newUpgrader()
	return s, nil
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// Hub returns the connection tracker.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the chat handler shared by all transports.
func (s *Server) Handler() *chat.Handler {
	return s.handler
}

// Addr returns the address of the TCP listener, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds the configured addresses and serves until Shutdown.
// A failure to bind either listener is returned immediately.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	}

	if s.cfg.WebSocketAddress != "" {
		wsListener, err := net.Listen("tcp", s.cfg.WebSocketAddress)
		if err != nil {
			_ = listener.Close()
			return fmt.Errorf("listen %s: %w", s.cfg.WebSocketAddress, err)
		}
		httpServer := s.newGateway(wsListener)
		go func() {
			if err := s.serveGateway(httpServer, wsListener); err != nil {
				s.log.WithError(err).Error("WebSocket gateway stopped")
			}
		}()
	}

	return s.Serve(listener)
}

// Serve accepts TCP connections on listener and starts a session for each.
// It returns nil after Shutdown and the accept error otherwise.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Infof("Chat server at %s is waiting for connections ...", listener.Addr())

	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.hub.Context().Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				delay = backoff(delay)
				s.log.WithError(err).Warnf("Accept failed; retrying in %v", delay)
				time.Sleep(delay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		delay = 0

		go s.serveConn(conn, conn.RemoteAddr().String(), "tcp")
	}
}

func backoff(delay time.Duration) time.Duration {
	if delay == 0 {
		return 5 * time.Millisecond
	}
	if delay *= 2; delay > time.Second {
		delay = time.Second
	}
	return delay
}

// ServeWebSocket runs the HTTP gateway on listener until Shutdown.
func (s *Server) ServeWebSocket(listener net.Listener) error {
	return s.serveGateway(s.newGateway(listener), listener)
}

// newGateway creates the HTTP server for listener and registers it for
// Shutdown before any request can be served.
func (s *Server) newGateway(listener net.Listener) *http.Server {
	httpServer := CreateServer(listener.Addr().String(), s.SetupRoutes())

	s.mu.Lock()
	s.http = httpServer
	s.mu.Unlock()
	return httpServer
}

func (s *Server) serveGateway(httpServer *http.Server, listener net.Listener) error {
	s.log.Infof("WebSocket gateway listening on %s", listener.Addr())
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// serveConn runs one session to completion.
func (s *Server) serveConn(conn io.ReadWriteCloser, addr, transport string) {
	err := s.hub.Serve(conn, addr, transport, func(ctx context.Context) {
		s.handler.Serve(ctx, conn, addr)
	})
	if err != nil {
		s.log.WithField("addr", addr).WithError(err).Debug("Rejecting connection")
		_ = conn.Close()
	}
}

// Shutdown stops accepting connections, ends every session, and waits up to
// the configured shutdown timeout.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	listener, httpServer := s.listener, s.http
	s.mu.Unlock()

	var errs []error
	if listener != nil {
		if err := listener.Close(); err != nil && !chat.IsExpectedCloseError(err) {
			errs = append(errs, err)
		}
	}
	if err := s.hub.Shutdown(s.cfg.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if httpServer != nil {
		if err := ShutdownServer(httpServer, s.cfg.ShutdownTimeout, s.log); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
