package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/Tyrowin/chatgateway/internal/identity"
	"github.com/Tyrowin/chatgateway/internal/presence"
	"github.com/Tyrowin/chatgateway/internal/protocol"
	"github.com/Tyrowin/chatgateway/internal/registry"
	"github.com/Tyrowin/chatgateway/internal/store"
)

// State is the protocol state of one connection.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the protocol state machine of one connection. Handle is meant
// to be called from a single goroutine; Authenticate and Disconnect may race
// with it.
type Session struct {
	id registry.ConnectionID
	d  *Dispatcher

	mu    sync.Mutex
	state State
	user  identity.User
}

// ID returns the connection id.
func (s *Session) ID() registry.ConnectionID {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns the authenticated user.
func (s *Session) User() (identity.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.state == StateAuthenticated
}

func (s *Session) userID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.ID
}

// Authenticate resolves token and registers the connection under its user.
// Any failure moves the session to StateClosed and returns an error wrapping
// ErrUnauthenticated; the caller must close the transport.
func (s *Session) Authenticate(token string) error {
	ctx, cancel := s.d.opContext()
	defer cancel()

	if s.State() != StateUnauthenticated {
		return fmt.Errorf("authenticate in state %s: %w", s.State(), ErrUnauthenticated)
	}

	user, err := s.d.Identities.Resolve(ctx, token)
	if err != nil {
		s.fail()
		if !errors.Is(err, identity.ErrInvalidToken) {
			s.d.Logger.Error("resolve token", slog.String("conn", string(s.id)), slog.Any("error", err))
		}
		return &Failure{Kind: KindAuthentication, Err: fmt.Errorf("%w: %w", ErrUnauthenticated, err)}
	}

	s.mu.Lock()
	if s.state != StateUnauthenticated {
		s.mu.Unlock()
		return &Failure{Kind: KindAuthentication, Err: ErrClosed}
	}
	s.state = StateAuthenticated
	s.user = user
	change := s.d.Registry.Register(s.id, registry.UserID(user.ID))
	s.mu.Unlock()

	s.d.Logger.Info("connection authenticated",
		slog.String("conn", string(s.id)),
		slog.String("user", user.ID))

	if change.Transition {
		s.d.Presence.Announce(ctx, presence.Update{
			UserID: change.UserID,
			Status: store.StatusOnline,
			Seq:    change.Seq,
		})
	}
	return nil
}

func (s *Session) fail() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

// close moves the session to StateClosed and unregisters it. The second
// result reports whether the session had been authenticated.
func (s *Session) close() (registry.Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = StateClosed
	if prev != StateAuthenticated {
		return registry.Change{}, false
	}
	change, ok := s.d.Registry.Unregister(s.id)
	return change, ok
}

// Handle processes one inbound frame. It returns an error only when the
// connection must be closed: the session is not authenticated and the frame
// did not authenticate it, or the session is already closed. Every other
// problem is logged and the frame is dropped.
func (s *Session) Handle(raw []byte) (err error) {
	event := ""
	defer func() {
		if r := recover(); r != nil {
			s.d.Logger.Error("panic in event handler",
				slog.String("conn", string(s.id)),
				slog.String("event", event),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = nil
		}
	}()

	frame, decodeErr := protocol.DecodeFrame(raw)
	if decodeErr == nil {
		event = frame.Event
	}

	switch s.State() {
	case StateClosed:
		return ErrClosed
	case StateUnauthenticated:
		if decodeErr != nil || frame.Event != protocol.EventAuth {
			s.fail()
			return fmt.Errorf("first frame is not %s: %w", protocol.EventAuth, ErrUnauthenticated)
		}
		var p protocol.AuthPayload
		if err := s.d.decode(frame.Data, &p); err != nil {
			s.fail()
			return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return s.Authenticate(p.Token)
	}

	if decodeErr != nil {
		s.d.report(s, "", validation(decodeErr))
		return nil
	}
	h, ok := s.d.handlers[frame.Event]
	if !ok {
		s.d.report(s, frame.Event, validation(fmt.Errorf("unknown event %q", frame.Event)))
		return nil
	}

	ctx, cancel := s.d.opContext()
	defer cancel()
	s.d.report(s, frame.Event, h(ctx, s, frame.Data))
	return nil
}

// Close disconnects the session.
func (s *Session) Close() {
	s.d.Disconnect(s.id)
}

type handler func(ctx context.Context, s *Session, data json.RawMessage) error
