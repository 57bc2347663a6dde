// Package server implements the transports and process plumbing of the chat
// room: the TCP listener, the WebSocket gateway, configuration, logging, and
// graceful shutdown.
//
// The implementation is organized into specialized files for configuration,
// connection tracking, the WebSocket line adapter, routing, and HTTP handlers.
// Every transport hands its connections to the same chat.Handler.
package server
