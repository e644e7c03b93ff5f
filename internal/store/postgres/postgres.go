// Package postgres implements the message store, the status store and the
// session token resolver on PostgreSQL through bun.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/Tyrowin/chatgateway/internal/identity"
	"github.com/Tyrowin/chatgateway/internal/store"
)

// Store provides storage in PostgreSQL.
type Store struct {
	bun *bun.DB
}

var (
	_ store.MessageStore = (*Store)(nil)
	_ store.StatusStore  = (*Store)(nil)
	_ identity.Resolver  = (*Store)(nil)
)

// Connect connects to the database and pings it to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{bun: bun.NewDB(sqlDB, pgdialect.New())}, nil
}

// Close closes the underlying connection pool.
func (pg *Store) Close() error {
	return pg.bun.Close()
}

// Ping reports whether the database is reachable.
func (pg *Store) Ping(ctx context.Context) error {
	return pg.bun.PingContext(ctx)
}

// CreateUser inserts a user and returns its id.
func (pg *Store) CreateUser(ctx context.Context, email, displayName string) (string, error) {
	u := &user{Email: email, DisplayName: displayName, IsActive: true}
	if _, err := pg.bun.NewInsert().Model(u).Returning("id").Exec(ctx); err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return u.ID, nil
}

// CreateChannel inserts a group channel and returns its id. createdBy may be
// empty.
func (pg *Store) CreateChannel(ctx context.Context, name, createdBy string) (string, error) {
	c := &channel{Name: &name}
	if createdBy != "" {
		c.CreatedBy = &createdBy
	}
	if _, err := pg.bun.NewInsert().Model(c).Returning("id").Exec(ctx); err != nil {
		return "", fmt.Errorf("insert channel: %w", err)
	}
	return c.ID, nil
}

// AddMember adds userID to channelID. Adding an existing member is a no-op.
func (pg *Store) AddMember(ctx context.Context, channelID, userID string) error {
	m := &member{ChannelID: channelID, UserID: userID}
	_, err := pg.bun.NewInsert().
		Model(m).
		On("CONFLICT (channel_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// CreateSession stores token for userID, valid for ttl.
func (pg *Store) CreateSession(ctx context.Context, userID, token string, ttl time.Duration) error {
	s := &session{UserID: userID, Token: token, ExpiresAt: time.Now().Add(ttl)}
	if _, err := pg.bun.NewInsert().Model(s).Exec(ctx); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Resolve implements identity.Resolver over chat_sessions. Only unexpired
// sessions of active users authenticate; a hit refreshes last_active_at.
func (pg *Store) Resolve(ctx context.Context, token string) (identity.User, error) {
	if token == "" {
		return identity.User{}, identity.ErrInvalidToken
	}

	var s session
	err := pg.bun.NewSelect().
		Model(&s).
		Relation("User").
		Where("s.token = ?", token).
		Where("s.expires_at > now()").
		Where(`"user"."is_active"`).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrInvalidToken
	}
	if err != nil {
		return identity.User{}, fmt.Errorf("select session: %w", err)
	}

	if _, err := pg.bun.NewUpdate().
		Model((*session)(nil)).
		Set("last_active_at = now()").
		Where("id = ?", s.ID).
		Exec(ctx); err != nil {
		return identity.User{}, fmt.Errorf("touch session: %w", err)
	}
	return s.User.identity(), nil
}

// SetStatus implements store.StatusStore.
func (pg *Store) SetStatus(ctx context.Context, userID, status, statusMessage string, at time.Time) error {
	q := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("status = ?", status).
		Set("last_seen_at = ?", at).
		Set("updated_at = now()").
		Where("id = ?", userID)
	if statusMessage != "" {
		q = q.Set("status_message = ?", statusMessage)
	} else {
		q = q.Set("status_message = NULL")
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// GetStatuses implements store.StatusStore.
func (pg *Store) GetStatuses(ctx context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	userIDs = slices.DeleteFunc(slices.Clone(userIDs), func(id string) bool { return !validIDs(id) })
	if len(userIDs) == 0 {
		return out, nil
	}
	var users []user
	err := pg.bun.NewSelect().
		Model(&users).
		Column("id", "status").
		Where("id IN (?)", bun.In(userIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select statuses: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u.Status
	}
	return out, nil
}
