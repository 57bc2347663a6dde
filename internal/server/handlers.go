// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

func (s *Server) newUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
}

// WebSocketHandler upgrades GET requests and runs a chat session over the
// connection for as long as it lives.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	lines := newWSLineConn(conn, int64(s.cfg.MaxLineLength))
	s.serveConn(lines, r.RemoteAddr, "websocket")
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server is running! Clients: %d", s.handler.Registry().Connections())
}

// TestPageHandler serves an HTML page that talks the line protocol over the
// WebSocket endpoint.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.WithError(err).Warn("Error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Room</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        #log { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; white-space: pre; }
        input[type="text"] { width: 400px; padding: 5px; }
    </style>
</head>
<body>
    <h1>Chat Room</h1>
    <div id="log"></div>
    <input type="text" id="line" placeholder="username, message, \help or @name message" disabled>
    <script>
        const log = document.getElementById('log');
        const line = document.getElementById('line');
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');

        function print(text) {
            log.textContent += text + '\n';
            log.scrollTop = log.scrollHeight;
        }

        ws.onopen = function() { line.disabled = false; line.focus(); };
        ws.onmessage = function(event) { print(event.data); };
        ws.onclose = function() { print('Connection closed'); line.disabled = true; };

        line.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                ws.send(line.value);
                line.value = '';
            }
        });
    </script>
</body>
</html>`
