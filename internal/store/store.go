// Package store defines the persistence contracts the gateway consumes and
// the entities that cross them. Implementations live in the sub-packages.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist, or exists but is not
	// visible to the caller (soft-deleted, owned by another user).
	ErrNotFound = errors.New("not found")
	// ErrNotMember is returned when a user acts on a channel it does not belong to.
	ErrNotMember = errors.New("not a channel member")
	// ErrInvalidParent is returned when a reply names a parent that does not
	// exist in the same channel.
	ErrInvalidParent = errors.New("invalid parent message")
)

// DefaultMessageType is stored when a message is sent without a type.
const DefaultMessageType = "text"

// Message is a persisted chat message.
type Message struct {
	ID          string
	ChannelID   string
	SenderID    string
	Content     string
	Type        string
	ParentID    *string
	ThreadCount int
	IsEdited    bool
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
}

// Deleted reports whether the message was soft-deleted.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

// NewMessage is the input of MessageStore.CreateMessage.
type NewMessage struct {
	ChannelID string
	SenderID  string
	Content   string
	Type      string
	ParentID  *string
}

// Reaction is one user's emoji on one message.
type Reaction struct {
	MessageID string
	UserID    string
	Emoji     string
	CreatedAt time.Time
}

// MessageStore persists messages, reactions and read cursors. Every method
// is atomic on its own; callers never span a transaction across calls.
type MessageStore interface {
	// IsMember reports whether userID belongs to channelID.
	IsMember(ctx context.Context, channelID, userID string) (bool, error)
	// CreateMessage inserts a message. It returns ErrInvalidParent when
	// ParentID is set but names no live message in the same channel.
	CreateMessage(ctx context.Context, m NewMessage) (Message, error)
	// IncrementThreadCount adds one reply to the parent's thread count.
	IncrementThreadCount(ctx context.Context, parentID string) error
	// GetMessage returns a message, including soft-deleted ones.
	GetMessage(ctx context.Context, messageID string) (Message, error)
	// UpdateMessage replaces the content of a live message owned by senderID
	// and marks it edited. Otherwise it returns ErrNotFound.
	UpdateMessage(ctx context.Context, messageID, senderID, content string) (Message, error)
	// DeleteMessage soft-deletes a live message owned by senderID. Otherwise
	// it returns ErrNotFound.
	DeleteMessage(ctx context.Context, messageID, senderID string) (Message, error)
	// AddReaction records a reaction; adding an existing one is a no-op.
	AddReaction(ctx context.Context, messageID, userID, emoji string) error
	// RemoveReaction deletes a reaction; removing a missing one is a no-op.
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) error
	// ToggleReaction adds the reaction when absent and removes it when
	// present, in one transaction. It reports whether the reaction now exists.
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error)
	// ListReactions returns every reaction on a message, oldest first.
	ListReactions(ctx context.Context, messageID string) ([]Reaction, error)
	// MarkRead moves the user's read cursor for a channel. It returns
	// ErrNotMember when the user does not belong to the channel.
	MarkRead(ctx context.Context, channelID, userID, messageID string) error
}

// StatusStore persists the presence status shown to other users.
type StatusStore interface {
	SetStatus(ctx context.Context, userID, status, statusMessage string, at time.Time) error
	GetStatuses(ctx context.Context, userIDs []string) (map[string]string, error)
}

// Presence statuses written on connect and disconnect.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)
