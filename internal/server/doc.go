// Package server is the WebSocket front of the chat gateway.
//
// Each accepted connection becomes a Client with a read pump that feeds its
// dispatch.Session and a write pump that drains the queue the hub fills.
// The package also enforces the origin allow-list, the maximum frame size and
// per-connection rate limiting, and serves the health endpoint.
package server
