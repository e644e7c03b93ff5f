// Package hub delivers encoded frames to live connections. It resolves room
// membership through the registry, encodes each event once per broadcast and
// evicts connections whose outbound queue cannot take another frame.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Tyrowin/chatgateway/internal/protocol"
	"github.com/Tyrowin/chatgateway/internal/registry"
)

var (
	// ErrSendBufferFull is returned by a Sink whose outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed is returned by a Sink that no longer accepts frames.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrHubClosed is returned by Attach after Shutdown has started.
	ErrHubClosed = errors.New("hub closed")
	// ErrUnknownConnection is returned by Send for a connection that is not attached.
	ErrUnknownConnection = errors.New("unknown connection")
)

// Sink is the outbound side of one connection. Enqueue must not block.
type Sink interface {
	Enqueue(frame []byte) error
	Close()
}

// RenderFunc builds the payload for a single recipient of BroadcastFunc.
type RenderFunc func(registry.Recipient) any

// Hub fans frames out to the sinks of registered connections.
type Hub struct {
	registry *registry.Registry
	log      *slog.Logger

	mu      sync.RWMutex
	sinks   map[registry.ConnectionID]Sink
	closed  bool
	onEvict func(registry.ConnectionID)

	// running counts goroutines started with Go; idle is signaled under mu
	// when it drops to zero.
	running int
	idle    *sync.Cond
}

// New creates a Hub that resolves rooms through reg.
func New(reg *registry.Registry, log *slog.Logger) *Hub {
	h := &Hub{
		registry: reg,
		log:      log,
		sinks:    make(map[registry.ConnectionID]Sink),
	}
	h.idle = sync.NewCond(&h.mu)
	return h
}

// OnEvict sets the callback run after a connection was dropped for a failed
// delivery. It runs on its own goroutine and must tolerate being called for a
// connection that is already gone.
func (h *Hub) OnEvict(fn func(registry.ConnectionID)) {
	h.mu.Lock()
	h.onEvict = fn
	h.mu.Unlock()
}

// Attach makes sink reachable under id. Connections are attached before they
// authenticate so that direct replies reach them.
func (h *Hub) Attach(id registry.ConnectionID, sink Sink) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.sinks[id] = sink
	return nil
}

// Detach removes id and returns its sink, if any.
func (h *Hub) Detach(id registry.ConnectionID) (Sink, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sink, ok := h.sinks[id]
	delete(h.sinks, id)
	return sink, ok
}

// Go runs fn on a goroutine that Shutdown waits for.
func (h *Hub) Go(fn func()) {
	h.mu.Lock()
	h.running++
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			h.running--
			if h.running == 0 {
				h.idle.Broadcast()
			}
			h.mu.Unlock()
		}()
		fn()
	}()
}

// Send delivers one event to a single connection.
func (h *Hub) Send(id registry.ConnectionID, event string, data any) error {
	frame, err := protocol.EncodeFrame(event, data)
	if err != nil {
		return err
	}
	sink, ok := h.sink(id)
	if !ok {
		return ErrUnknownConnection
	}
	if err := sink.Enqueue(frame); err != nil {
		h.evict(id, err)
		return err
	}
	return nil
}

// SendToUser delivers one event to every connection of userID and returns the
// number of connections that accepted it.
func (h *Hub) SendToUser(userID registry.UserID, event string, data any) int {
	return h.Broadcast(registry.UserRoom(userID), event, data)
}

// Broadcast delivers one event to every member of room except the listed
// connections. It returns the number of deliveries.
func (h *Hub) Broadcast(room registry.RoomID, event string, data any, except ...registry.ConnectionID) int {
	frame, err := protocol.EncodeFrame(event, data)
	if err != nil {
		h.log.Error("encode broadcast", slog.String("event", event), slog.Any("error", err))
		return 0
	}
	return h.deliver(h.registry.MembersOf(room), func(registry.ConnectionID) []byte { return frame }, except)
}

// BroadcastFunc is Broadcast with a payload rendered per recipient.
func (h *Hub) BroadcastFunc(room registry.RoomID, event string, render RenderFunc, except ...registry.ConnectionID) int {
	recipients := h.registry.RecipientsOf(room)
	owners := make(map[registry.ConnectionID]registry.Recipient, len(recipients))
	ids := make([]registry.ConnectionID, 0, len(recipients))
	for _, rc := range recipients {
		owners[rc.ConnectionID] = rc
		ids = append(ids, rc.ConnectionID)
	}

	return h.deliver(ids, func(id registry.ConnectionID) []byte {
		frame, err := protocol.EncodeFrame(event, render(owners[id]))
		if err != nil {
			h.log.Error("encode broadcast", slog.String("event", event), slog.Any("error", err))
			return nil
		}
		return frame
	}, except)
}

// BroadcastAll delivers one event to every authenticated connection.
func (h *Hub) BroadcastAll(event string, data any) int {
	frame, err := protocol.EncodeFrame(event, data)
	if err != nil {
		h.log.Error("encode broadcast", slog.String("event", event), slog.Any("error", err))
		return 0
	}
	return h.deliver(h.registry.Connections(), func(registry.ConnectionID) []byte { return frame }, nil)
}

// Len returns the number of attached connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// Shutdown closes every attached sink and waits for goroutines started with
// Go to return, or for ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	sinks := make([]Sink, 0, len(h.sinks))
	for _, sink := range h.sinks {
		sinks = append(sinks, sink)
	}
	h.mu.Unlock()

	h.log.Info("closing connections", slog.Int("count", len(sinks)))
	for _, sink := range sinks {
		sink.Close()
	}

	done := make(chan struct{})
	go func() {
		h.mu.Lock()
		for h.running > 0 {
			h.idle.Wait()
		}
		h.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.log.Warn("hub shutdown timed out with goroutines still running")
		return ctx.Err()
	}
}

func (h *Hub) sink(id registry.ConnectionID) (Sink, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sink, ok := h.sinks[id]
	return sink, ok
}

// deliver runs outside every lock: targets is a snapshot and failed sinks are
// evicted after the loop.
func (h *Hub) deliver(targets []registry.ConnectionID, frameFor func(registry.ConnectionID) []byte, except []registry.ConnectionID) int {
	skip := make(map[registry.ConnectionID]struct{}, len(except))
	for _, id := range except {
		skip[id] = struct{}{}
	}

	type failure struct {
		id  registry.ConnectionID
		err error
	}
	var failed []failure
	delivered := 0

	for _, id := range targets {
		if _, ok := skip[id]; ok {
			continue
		}
		sink, ok := h.sink(id)
		if !ok {
			continue
		}
		frame := frameFor(id)
		if frame == nil {
			continue
		}
		if err := sink.Enqueue(frame); err != nil {
			failed = append(failed, failure{id: id, err: err})
			continue
		}
		delivered++
	}

	for _, f := range failed {
		h.evict(f.id, f.err)
	}
	return delivered
}

func (h *Hub) evict(id registry.ConnectionID, cause error) {
	sink, ok := h.Detach(id)
	if !ok {
		return
	}
	h.log.Warn("evicting connection", slog.String("conn", string(id)), slog.Any("error", cause))
	sink.Close()

	h.mu.RLock()
	fn := h.onEvict
	h.mu.RUnlock()
	if fn != nil {
		h.Go(func() { fn(id) })
	}
}
