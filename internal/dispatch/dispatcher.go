// Package dispatch runs the per-connection protocol: it authenticates a
// connection, routes each inbound frame to its handler and turns the result
// into store writes and room broadcasts.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/chatgateway/internal/hub"
	"github.com/Tyrowin/chatgateway/internal/identity"
	"github.com/Tyrowin/chatgateway/internal/presence"
	"github.com/Tyrowin/chatgateway/internal/protocol"
	"github.com/Tyrowin/chatgateway/internal/registry"
	"github.com/Tyrowin/chatgateway/internal/store"
)

const defaultOpTimeout = 5 * time.Second

// Router delivers frames to connections and rooms.
type Router interface {
	Send(id registry.ConnectionID, event string, data any) error
	Broadcast(room registry.RoomID, event string, data any, except ...registry.ConnectionID) int
	BroadcastFunc(room registry.RoomID, event string, render hub.RenderFunc, except ...registry.ConnectionID) int
	Detach(id registry.ConnectionID) (hub.Sink, bool)
}

// Presence announces status changes and answers status queries.
type Presence interface {
	Announce(ctx context.Context, u presence.Update) bool
	Lookup(ctx context.Context, userIDs []string) protocol.PresenceList
}

// Sanitizer cleans message bodies.
type Sanitizer interface {
	Sanitize(text string) string
}

// Deps are the collaborators of a Dispatcher. OpTimeout bounds every store
// and resolver call; zero means five seconds.
type Deps struct {
	Registry   *registry.Registry
	Router     Router
	Presence   Presence
	Identities identity.Resolver
	Messages   store.MessageStore
	Sanitizer  Sanitizer
	Validator  *protocol.Validator
	Logger     *slog.Logger
	OpTimeout  time.Duration
}

// Dispatcher owns the sessions of every live connection.
type Dispatcher struct {
	Deps

	// base outlives any single connection so that a write started for a
	// connection that then drops still completes.
	base context.Context

	mu       sync.Mutex
	sessions map[registry.ConnectionID]*Session
	handlers map[string]handler
}

// New creates a Dispatcher. Store calls run under ctx rather than under the
// originating connection.
func New(ctx context.Context, deps Deps) *Dispatcher {
	if deps.OpTimeout <= 0 {
		deps.OpTimeout = defaultOpTimeout
	}
	if deps.Validator == nil {
		deps.Validator = protocol.NewValidator()
	}
	d := &Dispatcher{
		Deps:     deps,
		base:     ctx,
		sessions: make(map[registry.ConnectionID]*Session),
	}
	d.handlers = d.routes()
	return d
}

// Open creates the session of a newly accepted connection. The connection
// starts unauthenticated.
func (d *Dispatcher) Open(id registry.ConnectionID) *Session {
	s := &Session{id: id, d: d, state: StateUnauthenticated}
	d.mu.Lock()
	d.sessions[id] = s
	d.mu.Unlock()
	return s
}

// Session returns the live session of id.
func (d *Dispatcher) Session(id registry.ConnectionID) (*Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[id]
	return s, ok
}

// Len returns the number of open sessions.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// Disconnect closes the session of id: it leaves every room, and when it
// held the user's last connection the user is announced offline. It is safe
// to call more than once and for unknown ids.
func (d *Dispatcher) Disconnect(id registry.ConnectionID) {
	d.mu.Lock()
	s, ok := d.sessions[id]
	delete(d.sessions, id)
	d.mu.Unlock()

	if sink, attached := d.Router.Detach(id); attached {
		sink.Close()
	}
	if !ok {
		return
	}

	change, wasAuthenticated := s.close()
	if !wasAuthenticated {
		return
	}
	d.Logger.Info("connection closed",
		slog.String("conn", string(id)),
		slog.String("user", string(change.UserID)))

	if change.Transition {
		ctx, cancel := d.opContext()
		defer cancel()
		d.Presence.Announce(ctx, presence.Update{
			UserID: change.UserID,
			Status: store.StatusOffline,
			Seq:    change.Seq,
		})
	}
}

func (d *Dispatcher) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.base, d.OpTimeout)
}

// report logs the outcome of one event. Validation failures are silent on
// the wire and only visible at debug level.
func (d *Dispatcher) report(s *Session, event string, err error) {
	if err == nil {
		return
	}
	attrs := []any{
		slog.String("conn", string(s.id)),
		slog.String("user", s.userID()),
		slog.String("event", event),
		slog.Any("error", err),
	}
	switch KindOf(err) {
	case KindValidation:
		d.Logger.Debug("event dropped", attrs...)
	case KindTransport:
		d.Logger.Warn("reply not delivered", attrs...)
	default:
		d.Logger.Error("event failed", attrs...)
	}
}
