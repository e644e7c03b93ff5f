package protocol

import "time"

// Sender describes the author attached to message:new.
type Sender struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
	AvatarColor *string `json:"avatarColor"`
}

// MessageNew is the payload of message:new.
type MessageNew struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"content"`
	Type        string    `json:"type"`
	ParentID    *string   `json:"parent_id"`
	ThreadCount int       `json:"thread_count"`
	IsEdited    bool      `json:"is_edited"`
	CreatedAt   time.Time `json:"created_at"`
	Sender      Sender    `json:"sender"`
}

// MessageUpdated is the payload of message:updated.
type MessageUpdated struct {
	ID        string     `json:"id"`
	ChannelID string     `json:"channel_id"`
	Content   string     `json:"content"`
	IsEdited  bool       `json:"is_edited"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// MessageDeleted is the payload of message:deleted.
type MessageDeleted struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// ReactionSummary is one emoji of an aggregated reaction list.
// HasReacted is relative to the connection receiving the frame.
type ReactionSummary struct {
	Emoji      string `json:"emoji"`
	Count      int    `json:"count"`
	HasReacted bool   `json:"has_reacted"`
}

// ReactionUpdate is the payload of reaction:update. It always carries the
// full aggregate for the message, never a delta.
type ReactionUpdate struct {
	MessageID string            `json:"message_id"`
	ChannelID string            `json:"channel_id"`
	Reactions []ReactionSummary `json:"reactions"`
}

// TypingUpdate is the payload of typing:update.
type TypingUpdate struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName,omitempty"`
	IsTyping  bool   `json:"isTyping"`
}

// ReadUpdate is the payload of message:read_update.
type ReadUpdate struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// PresenceUpdate is the payload of presence:update.
type PresenceUpdate struct {
	UserID        string `json:"userId"`
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// PresenceList is the payload of presence:list, keyed by user id.
type PresenceList map[string]string

// OnlineMembers is the payload of channel:online_members.
type OnlineMembers struct {
	ChannelID string   `json:"channelId"`
	UserIDs   []string `json:"userIds"`
}
