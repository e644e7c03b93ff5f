package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/Tyrowin/chatgateway/internal/identity"
	"github.com/Tyrowin/chatgateway/internal/store"
)

type user struct {
	bun.BaseModel `bun:"table:chat_users,alias:u"`

	ID            string     `bun:",pk,type:uuid,default:gen_random_uuid()"`
	Email         string     `bun:",notnull,unique,type:varchar(255)"`
	PasswordHash  *string    `bun:",type:varchar(255)"`
	DisplayName   string     `bun:",notnull,type:varchar(100)"`
	AvatarURL     *string    `bun:",type:text"`
	AvatarColor   *string    `bun:",type:varchar(7)"`
	Status        string     `bun:",type:varchar(20),default:'offline'"`
	StatusMessage *string    `bun:",type:varchar(200)"`
	LastSeenAt    *time.Time `bun:",type:timestamptz"`
	IsActive      bool       `bun:",notnull,default:true"`
	CreatedAt     time.Time  `bun:",nullzero,type:timestamptz,default:now()"`
	UpdatedAt     time.Time  `bun:",nullzero,type:timestamptz,default:now()"`
}

func (u user) identity() identity.User {
	return identity.User{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		AvatarColor: u.AvatarColor,
	}
}

type session struct {
	bun.BaseModel `bun:"table:chat_sessions,alias:s"`

	ID           string    `bun:",pk,type:uuid,default:gen_random_uuid()"`
	UserID       string    `bun:",notnull,type:uuid"`
	Token        string    `bun:",notnull,unique,type:varchar(64)"`
	CreatedAt    time.Time `bun:",nullzero,type:timestamptz,default:now()"`
	ExpiresAt    time.Time `bun:",notnull,type:timestamptz"`
	LastActiveAt time.Time `bun:",nullzero,type:timestamptz,default:now()"`
	User         *user     `bun:"rel:belongs-to,join:user_id=id"`
}

type channel struct {
	bun.BaseModel `bun:"table:chat_channels,alias:c"`

	ID          string     `bun:",pk,type:uuid,default:gen_random_uuid()"`
	Type        string     `bun:",notnull,type:varchar(20),default:'group'"`
	Name        *string    `bun:",type:varchar(100)"`
	Description *string    `bun:",type:text"`
	IsPrivate   bool       `bun:",notnull,default:false"`
	CreatedBy   *string    `bun:",type:uuid"`
	CreatedAt   time.Time  `bun:",nullzero,type:timestamptz,default:now()"`
	UpdatedAt   time.Time  `bun:",nullzero,type:timestamptz,default:now()"`
	DeletedAt   *time.Time `bun:",type:timestamptz"`
}

type member struct {
	bun.BaseModel `bun:"table:chat_channel_members,alias:cm"`

	ID                string     `bun:",pk,type:uuid,default:gen_random_uuid()"`
	ChannelID         string     `bun:",notnull,type:uuid,unique:channel_member"`
	UserID            string     `bun:",notnull,type:uuid,unique:channel_member"`
	Role              string     `bun:",notnull,type:varchar(20),default:'member'"`
	LastReadMessageID *string    `bun:",type:uuid"`
	LastReadAt        *time.Time `bun:",type:timestamptz"`
	IsMuted           bool       `bun:",notnull,default:false"`
	JoinedAt          time.Time  `bun:",nullzero,type:timestamptz,default:now()"`
}

type message struct {
	bun.BaseModel `bun:"table:chat_messages,alias:m"`

	ID          string     `bun:",pk,type:uuid,default:gen_random_uuid()"`
	ChannelID   string     `bun:",notnull,type:uuid"`
	SenderID    *string    `bun:",type:uuid"`
	ParentID    *string    `bun:",type:uuid"`
	ThreadCount int        `bun:",notnull,default:0"`
	Content     string     `bun:",notnull,type:text"`
	Type        string     `bun:",notnull,type:varchar(20),default:'text'"`
	IsEdited    bool       `bun:",notnull,default:false"`
	IsPinned    bool       `bun:",notnull,default:false"`
	DeletedAt   *time.Time `bun:",type:timestamptz"`
	CreatedAt   time.Time  `bun:",nullzero,type:timestamptz,default:now()"`
	UpdatedAt   *time.Time `bun:",type:timestamptz,default:now()"`
}

func (m message) storeMessage() store.Message {
	out := store.Message{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		Content:     m.Content,
		Type:        m.Type,
		ParentID:    m.ParentID,
		ThreadCount: m.ThreadCount,
		IsEdited:    m.IsEdited,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		DeletedAt:   m.DeletedAt,
	}
	if m.SenderID != nil {
		out.SenderID = *m.SenderID
	}
	return out
}

type reaction struct {
	bun.BaseModel `bun:"table:chat_message_reactions,alias:r"`

	MessageID string    `bun:",pk,type:uuid"`
	UserID    string    `bun:",pk,type:uuid"`
	Emoji     string    `bun:",pk,type:varchar(64)"`
	CreatedAt time.Time `bun:",nullzero,type:timestamptz,default:now()"`
}

func (r reaction) storeReaction() store.Reaction {
	return store.Reaction{
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		CreatedAt: r.CreatedAt,
	}
}
