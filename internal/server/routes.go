package server

import "net/http"

// Handler returns the server's routes: the WebSocket endpoint and the health
// check, which is also served at the root.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}
