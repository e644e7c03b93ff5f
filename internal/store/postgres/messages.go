package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/Tyrowin/chatgateway/internal/store"
)

func (pg *Store) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	if !validIDs(channelID, userID) {
		return false, nil
	}
	ok, err := pg.bun.NewSelect().
		Model((*member)(nil)).
		Where("channel_id = ?", channelID).
		Where("user_id = ?", userID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("select member: %w", err)
	}
	return ok, nil
}

func (pg *Store) CreateMessage(ctx context.Context, in store.NewMessage) (store.Message, error) {
	if in.Type == "" {
		in.Type = store.DefaultMessageType
	}
	if !validIDs(in.ChannelID, in.SenderID) {
		return store.Message{}, store.ErrNotFound
	}
	if in.ParentID != nil && !validIDs(*in.ParentID) {
		return store.Message{}, store.ErrInvalidParent
	}
	m := &message{
		ChannelID: in.ChannelID,
		SenderID:  &in.SenderID,
		ParentID:  in.ParentID,
		Content:   in.Content,
		Type:      in.Type,
	}

	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if in.ParentID != nil {
			ok, err := tx.NewSelect().
				Model((*message)(nil)).
				Where("id = ?", *in.ParentID).
				Where("channel_id = ?", in.ChannelID).
				Where("deleted_at IS NULL").
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("select parent: %w", err)
			}
			if !ok {
				return store.ErrInvalidParent
			}
		}
		if _, err := tx.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.Message{}, err
	}
	return m.storeMessage(), nil
}

func (pg *Store) IncrementThreadCount(ctx context.Context, parentID string) error {
	if !validIDs(parentID) {
		return store.ErrNotFound
	}
	res, err := pg.bun.NewUpdate().
		Model((*message)(nil)).
		Set("thread_count = thread_count + 1").
		Where("id = ?", parentID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update thread count: %w", err)
	}
	return affected(res)
}

func (pg *Store) GetMessage(ctx context.Context, messageID string) (store.Message, error) {
	if !validIDs(messageID) {
		return store.Message{}, store.ErrNotFound
	}
	var m message
	err := pg.bun.NewSelect().Model(&m).Where("id = ?", messageID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Message{}, store.ErrNotFound
	}
	if err != nil {
		return store.Message{}, fmt.Errorf("select message: %w", err)
	}
	return m.storeMessage(), nil
}

func (pg *Store) UpdateMessage(ctx context.Context, messageID, senderID, content string) (store.Message, error) {
	if !validIDs(messageID, senderID) {
		return store.Message{}, store.ErrNotFound
	}
	var m message
	res, err := pg.bun.NewUpdate().
		Model(&m).
		Set("content = ?", content).
		Set("is_edited = true").
		Set("updated_at = now()").
		Where("id = ?", messageID).
		Where("sender_id = ?", senderID).
		Where("deleted_at IS NULL").
		Returning("*").
		Exec(ctx)
	if err := notFound(res, err); err != nil {
		return store.Message{}, err
	}
	return m.storeMessage(), nil
}

func (pg *Store) DeleteMessage(ctx context.Context, messageID, senderID string) (store.Message, error) {
	if !validIDs(messageID, senderID) {
		return store.Message{}, store.ErrNotFound
	}
	var m message
	res, err := pg.bun.NewUpdate().
		Model(&m).
		Set("deleted_at = now()").
		Where("id = ?", messageID).
		Where("sender_id = ?", senderID).
		Where("deleted_at IS NULL").
		Returning("*").
		Exec(ctx)
	if err := notFound(res, err); err != nil {
		return store.Message{}, err
	}
	return m.storeMessage(), nil
}

func (pg *Store) AddReaction(ctx context.Context, messageID, userID, emoji string) error {
	if !validIDs(messageID, userID) {
		return store.ErrNotFound
	}
	return addReaction(ctx, pg.bun, messageID, userID, emoji)
}

func (pg *Store) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	if !validIDs(messageID, userID) {
		return store.ErrNotFound
	}
	if _, err := removeReaction(ctx, pg.bun, messageID, userID, emoji); err != nil {
		return err
	}
	return nil
}

func (pg *Store) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	if !validIDs(messageID, userID) {
		return false, store.ErrNotFound
	}
	var added bool
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		removed, err := removeReaction(ctx, tx, messageID, userID, emoji)
		if err != nil || removed {
			return err
		}
		added = true
		return addReaction(ctx, tx, messageID, userID, emoji)
	})
	return added, err
}

func (pg *Store) ListReactions(ctx context.Context, messageID string) ([]store.Reaction, error) {
	if !validIDs(messageID) {
		return nil, store.ErrNotFound
	}
	var rows []reaction
	err := pg.bun.NewSelect().
		Model(&rows).
		Where("message_id = ?", messageID).
		Order("created_at ASC", "emoji ASC", "user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select reactions: %w", err)
	}
	out := make([]store.Reaction, len(rows))
	for i, r := range rows {
		out[i] = r.storeReaction()
	}
	return out, nil
}

func (pg *Store) MarkRead(ctx context.Context, channelID, userID, messageID string) error {
	if !validIDs(channelID, userID) {
		return store.ErrNotMember
	}
	if !validIDs(messageID) {
		return store.ErrNotFound
	}
	res, err := pg.bun.NewUpdate().
		Model((*member)(nil)).
		Set("last_read_message_id = ?", messageID).
		Set("last_read_at = now()").
		Where("channel_id = ?", channelID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update read cursor: %w", err)
	}
	if err := affected(res); err != nil {
		return store.ErrNotMember
	}
	return nil
}

func addReaction(ctx context.Context, db bun.IDB, messageID, userID, emoji string) error {
	ok, err := db.NewSelect().Model((*message)(nil)).Where("id = ?", messageID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("select message: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}

	r := &reaction{MessageID: messageID, UserID: userID, Emoji: emoji}
	if _, err := db.NewInsert().
		Model(r).
		On("CONFLICT (message_id, user_id, emoji) DO NOTHING").
		Exec(ctx); err != nil {
		return fmt.Errorf("insert reaction: %w", err)
	}
	return nil
}

func removeReaction(ctx context.Context, db bun.IDB, messageID, userID, emoji string) (bool, error) {
	res, err := db.NewDelete().
		Model((*reaction)(nil)).
		Where("message_id = ?", messageID).
		Where("user_id = ?", userID).
		Where("emoji = ?", emoji).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", err)
	}
	return n > 0, nil
}

// validIDs reports whether every id parses as a uuid. An id that does not
// names no row, and PostgreSQL rejects the query outright.
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if uuid.Validate(id) != nil {
			return false
		}
	}
	return true
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func notFound(res sql.Result, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return affected(res)
}
