package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatgateway/internal/config"
	"github.com/Tyrowin/chatgateway/internal/dispatch"
	"github.com/Tyrowin/chatgateway/internal/hub"
	"github.com/Tyrowin/chatgateway/internal/registry"
)

// Pinger is a dependency whose reachability the health endpoint reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server routes connections to.
type Deps struct {
	Registry   *registry.Registry
	Hub        *hub.Hub
	Dispatcher *dispatch.Dispatcher
	Logger     *slog.Logger
	// Checks are pinged by the health endpoint, keyed by the name reported.
	Checks map[string]Pinger
}

// Server accepts WebSocket connections and serves the health endpoint.
type Server struct {
	cfg        config.Config
	log        *slog.Logger
	registry   *registry.Registry
	hub        *hub.Hub
	dispatcher *dispatch.Dispatcher
	checks     map[string]Pinger
	origins    *originPolicy
	upgrader   websocket.Upgrader
	http       *http.Server
}

// New creates a Server. Connections the hub evicts are disconnected through
// the dispatcher.
func New(cfg config.Config, deps Deps) *Server {
	s := &Server{
		cfg:        cfg,
		log:        deps.Logger,
		registry:   deps.Registry,
		hub:        deps.Hub,
		dispatcher: deps.Dispatcher,
		checks:     deps.Checks,
		origins:    newOriginPolicy(cfg.AllowedOrigins, deps.Logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: cfg.HandshakeTimeout,
		CheckOrigin:      s.origins.check,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	deps.Hub.OnEvict(deps.Dispatcher.Disconnect)
	return s
}

// ListenAndServe listens on the configured address. It returns nil once
// Shutdown has been called.
func (s *Server) ListenAndServe() error {
	s.log.Info("server listening", slog.String("addr", s.cfg.Addr))
	return ignoreClosed(s.http.ListenAndServe())
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.log.Info("server listening", slog.String("addr", l.Addr().String()))
	return ignoreClosed(s.http.Serve(l))
}

// Shutdown stops accepting connections, closes every live connection and
// waits for their pumps to finish or for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	httpErr := s.http.Shutdown(ctx)
	hubErr := s.hub.Shutdown(ctx)
	if err := errors.Join(httpErr, hubErr); err != nil {
		return err
	}
	s.log.Info("HTTP server shutdown completed")
	return nil
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
