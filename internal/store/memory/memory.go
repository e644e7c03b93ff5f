// Package memory is an in-process implementation of the store contracts and
// of a static token resolver. It backs the gateway's dev mode and its tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/chatgateway/internal/identity"
	"github.com/Tyrowin/chatgateway/internal/store"
)

type reactionKey struct {
	messageID, userID, emoji string
}

type membership struct {
	lastRead string
}

type status struct {
	status, message string
	at              time.Time
}

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	sessions  map[string]identity.User
	members   map[string]map[string]*membership
	messages  map[string]*store.Message
	reactions []store.Reaction
	statuses  map[string]status
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		now:      time.Now,
		sessions: make(map[string]identity.User),
		members:  make(map[string]map[string]*membership),
		messages: make(map[string]*store.Message),
		statuses: make(map[string]status),
	}
}

var (
	_ store.MessageStore = (*Store)(nil)
	_ store.StatusStore  = (*Store)(nil)
	_ identity.Resolver  = (*Store)(nil)
)

// AddSession makes token resolve to user.
func (s *Store) AddSession(token string, user identity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = user
}

// AddMember adds userID to channelID, creating the channel if needed.
func (s *Store) AddMember(channelID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[channelID]
	if !ok {
		m = make(map[string]*membership)
		s.members[channelID] = m
	}
	if _, ok := m[userID]; !ok {
		m[userID] = &membership{}
	}
}

// Resolve implements identity.Resolver.
func (s *Store) Resolve(_ context.Context, token string) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.sessions[token]
	if !ok || token == "" {
		return identity.User{}, identity.ErrInvalidToken
	}
	return user, nil
}

func (s *Store) IsMember(_ context.Context, channelID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[channelID][userID]
	return ok, nil
}

func (s *Store) CreateMessage(_ context.Context, in store.NewMessage) (store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.ParentID != nil {
		parent, ok := s.messages[*in.ParentID]
		if !ok || parent.Deleted() || parent.ChannelID != in.ChannelID {
			return store.Message{}, store.ErrInvalidParent
		}
	}
	if in.Type == "" {
		in.Type = store.DefaultMessageType
	}

	m := &store.Message{
		ID:        uuid.NewString(),
		ChannelID: in.ChannelID,
		SenderID:  in.SenderID,
		Content:   in.Content,
		Type:      in.Type,
		ParentID:  in.ParentID,
		CreatedAt: s.now().UTC(),
	}
	s.messages[m.ID] = m
	return *m, nil
}

func (s *Store) IncrementThreadCount(_ context.Context, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[parentID]
	if !ok {
		return store.ErrNotFound
	}
	m.ThreadCount++
	return nil
}

func (s *Store) GetMessage(_ context.Context, messageID string) (store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return store.Message{}, store.ErrNotFound
	}
	return *m, nil
}

func (s *Store) UpdateMessage(_ context.Context, messageID, senderID, content string) (store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.ownedLocked(messageID, senderID)
	if err != nil {
		return store.Message{}, err
	}
	now := s.now().UTC()
	m.Content = content
	m.IsEdited = true
	m.UpdatedAt = &now
	return *m, nil
}

func (s *Store) DeleteMessage(_ context.Context, messageID, senderID string) (store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.ownedLocked(messageID, senderID)
	if err != nil {
		return store.Message{}, err
	}
	now := s.now().UTC()
	m.DeletedAt = &now
	return *m, nil
}

func (s *Store) AddReaction(_ context.Context, messageID, userID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return store.ErrNotFound
	}
	if s.reactionIndexLocked(reactionKey{messageID, userID, emoji}) < 0 {
		s.reactions = append(s.reactions, store.Reaction{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: s.now().UTC(),
		})
	}
	return nil
}

func (s *Store) RemoveReaction(_ context.Context, messageID, userID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.reactionIndexLocked(reactionKey{messageID, userID, emoji}); i >= 0 {
		s.reactions = slices.Delete(s.reactions, i, i+1)
	}
	return nil
}

func (s *Store) ToggleReaction(_ context.Context, messageID, userID, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return false, store.ErrNotFound
	}
	if i := s.reactionIndexLocked(reactionKey{messageID, userID, emoji}); i >= 0 {
		s.reactions = slices.Delete(s.reactions, i, i+1)
		return false, nil
	}
	s.reactions = append(s.reactions, store.Reaction{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: s.now().UTC(),
	})
	return true, nil
}

func (s *Store) ListReactions(_ context.Context, messageID string) ([]store.Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Reaction
	for _, r := range s.reactions {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, channelID, userID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[channelID][userID]
	if !ok {
		return store.ErrNotMember
	}
	m.lastRead = messageID
	return nil
}

// ChannelMessages returns the messages of channelID, soft-deleted ones
// included, oldest first.
func (s *Store) ChannelMessages(channelID string) []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Message
	for _, m := range s.messages {
		if m.ChannelID == channelID {
			out = append(out, *m)
		}
	}
	slices.SortFunc(out, func(a, b store.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// LastRead returns the read cursor of userID in channelID.
func (s *Store) LastRead(channelID, userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[channelID][userID]; ok {
		return m.lastRead
	}
	return ""
}

func (s *Store) SetStatus(_ context.Context, userID, st, statusMessage string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[userID] = status{status: st, message: statusMessage, at: at}
	return nil
}

func (s *Store) GetStatuses(_ context.Context, userIDs []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if st, ok := s.statuses[id]; ok {
			out[id] = st.status
		}
	}
	return out, nil
}

func (s *Store) ownedLocked(messageID, senderID string) (*store.Message, error) {
	m, ok := s.messages[messageID]
	if !ok || m.Deleted() || m.SenderID != senderID {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (s *Store) reactionIndexLocked(k reactionKey) int {
	return slices.IndexFunc(s.reactions, func(r store.Reaction) bool {
		return r.MessageID == k.messageID && r.UserID == k.userID && r.Emoji == k.emoji
	})
}
