// Package presence announces user status changes to every connection.
//
// Updates carry a sequence number taken from the registry. For a given user,
// an update older than the last one announced is ignored, so a connect and a
// disconnect racing through different goroutines settle on the later state.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/chatgateway/internal/protocol"
	"github.com/Tyrowin/chatgateway/internal/registry"
	"github.com/Tyrowin/chatgateway/internal/store"
)

// Publisher delivers a frame to every authenticated connection.
type Publisher interface {
	BroadcastAll(event string, data any) int
}

// Directory answers whether a user currently has a live connection.
type Directory interface {
	IsOnline(userID registry.UserID) bool
}

// Update is one presence change.
type Update struct {
	UserID        registry.UserID
	Status        string
	StatusMessage string
	Seq           uint64
}

type userState struct {
	mu      sync.Mutex
	seq     uint64
	status  string
	message string
}

// Broadcaster persists and fans out presence updates.
type Broadcaster struct {
	pub       Publisher
	directory Directory
	statuses  store.StatusStore
	log       *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	users map[registry.UserID]*userState
}

// New creates a Broadcaster. statuses may be nil, in which case nothing is
// persisted.
func New(pub Publisher, directory Directory, statuses store.StatusStore, log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		pub:       pub,
		directory: directory,
		statuses:  statuses,
		log:       log,
		now:       time.Now,
		users:     make(map[registry.UserID]*userState),
	}
}

func (b *Broadcaster) state(userID registry.UserID) *userState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.users[userID]
	if !ok {
		st = &userState{}
		b.users[userID] = st
	}
	return st
}

// Announce persists u and sends presence:update to every connection. It
// returns false when a newer update for the same user was already announced.
// A failed write is logged; connected clients are still told, since presence
// follows the live connections rather than the stored row.
func (b *Broadcaster) Announce(ctx context.Context, u Update) bool {
	st := b.state(u.UserID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if u.Seq <= st.seq {
		b.log.Debug("stale presence update",
			slog.String("user", string(u.UserID)),
			slog.Uint64("seq", u.Seq),
			slog.Uint64("last_seq", st.seq))
		return false
	}
	st.seq = u.Seq
	st.status = u.Status
	st.message = u.StatusMessage

	if b.statuses != nil {
		if err := b.statuses.SetStatus(ctx, string(u.UserID), u.Status, u.StatusMessage, b.now()); err != nil {
			b.log.Error("persist presence",
				slog.String("user", string(u.UserID)),
				slog.String("status", u.Status),
				slog.Any("error", err))
		}
	}

	n := b.pub.BroadcastAll(protocol.EventPresenceUpdate, protocol.PresenceUpdate{
		UserID:        string(u.UserID),
		Status:        u.Status,
		StatusMessage: u.StatusMessage,
	})
	b.log.Debug("presence announced",
		slog.String("user", string(u.UserID)),
		slog.String("status", u.Status),
		slog.Int("recipients", n))
	return true
}

// Lookup returns the status of each user: offline when it has no live
// connection, otherwise its last announced status. Online users this
// broadcaster has not announced are read from the status store in one call
// and default to online.
func (b *Broadcaster) Lookup(ctx context.Context, userIDs []string) protocol.PresenceList {
	out := make(protocol.PresenceList, len(userIDs))
	var unknown []string
	for _, id := range userIDs {
		userID := registry.UserID(id)
		if !b.directory.IsOnline(userID) {
			out[id] = store.StatusOffline
			continue
		}
		if st, ok := b.current(userID); ok {
			out[id] = st
			continue
		}
		out[id] = store.StatusOnline
		unknown = append(unknown, id)
	}

	if len(unknown) == 0 || b.statuses == nil {
		return out
	}
	stored, err := b.statuses.GetStatuses(ctx, unknown)
	if err != nil {
		b.log.Warn("read presence", slog.Int("users", len(unknown)), slog.Any("error", err))
		return out
	}
	for _, id := range unknown {
		if st := stored[id]; st != "" && st != store.StatusOffline {
			out[id] = st
		}
	}
	return out
}

func (b *Broadcaster) current(userID registry.UserID) (string, bool) {
	b.mu.Lock()
	st, ok := b.users[userID]
	b.mu.Unlock()
	if !ok {
		return "", false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.status == "" {
		return "", false
	}
	return st.status, true
}
