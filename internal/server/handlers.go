package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatgateway/internal/registry"
)

const healthCheckTimeout = 2 * time.Second

// handleWebSocket upgrades the request and starts the connection's pumps.
// A token carried by the request authenticates the connection before the
// upgrade, so a bad token is refused with 401 instead of an open socket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "Expected a WebSocket upgrade request.", http.StatusBadRequest)
		return
	}
	if !s.origins.check(r) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	id := registry.ConnectionID(uuid.NewString())
	session := s.dispatcher.Open(id)

	if token := requestToken(r); token != "" {
		if err := session.Authenticate(token); err != nil {
			s.dispatcher.Disconnect(id)
			s.log.Info("handshake rejected", slog.String("addr", r.RemoteAddr), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.dispatcher.Disconnect(id)
		s.log.Warn("websocket upgrade failed", slog.String("addr", r.RemoteAddr), slog.Any("error", err))
		return
	}

	client := newClient(id, conn, session, r.RemoteAddr, s)
	if err := s.hub.Attach(id, client); err != nil {
		s.dispatcher.Disconnect(id)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(s.cfg.WriteWait))
		_ = conn.Close()
		return
	}

	s.log.Debug("connection opened", slog.String("conn", string(id)), slog.String("addr", r.RemoteAddr))
	client.start(s.hub)
}

// handleHealth reports connection counts and the state of every dependency
// check. Any failing check turns the response into 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Stats: s.registry.Stats()}
	code := http.StatusOK

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		resp.Checks = make(map[string]string, len(s.checks))
		for name, p := range s.checks {
			if err := p.Ping(ctx); err != nil {
				s.log.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn("write health response", slog.Any("error", err))
	}
}
