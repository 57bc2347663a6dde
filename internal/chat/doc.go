// Package chat implements the session manager of the line-based chat room:
// the shared client registry, the per-connection session handler, command
// dispatch, and broadcast/private message delivery.
//
// The package is transport agnostic. Any io.ReadWriteCloser that carries
// newline-terminated UTF-8 text can be served by a Handler, which is how the
// TCP listener and the WebSocket gateway in package server share one core.
package chat
