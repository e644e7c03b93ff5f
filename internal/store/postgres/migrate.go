package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

type table struct {
	model       any
	foreignKeys []string
}

var tables = []table{
	{model: (*user)(nil)},
	{model: (*session)(nil), foreignKeys: []string{
		`("user_id") REFERENCES "chat_users" ("id") ON DELETE CASCADE`,
	}},
	{model: (*channel)(nil), foreignKeys: []string{
		`("created_by") REFERENCES "chat_users" ("id")`,
	}},
	{model: (*member)(nil), foreignKeys: []string{
		`("channel_id") REFERENCES "chat_channels" ("id") ON DELETE CASCADE`,
		`("user_id") REFERENCES "chat_users" ("id") ON DELETE CASCADE`,
	}},
	{model: (*message)(nil), foreignKeys: []string{
		`("channel_id") REFERENCES "chat_channels" ("id") ON DELETE CASCADE`,
		`("sender_id") REFERENCES "chat_users" ("id") ON DELETE SET NULL`,
		`("parent_id") REFERENCES "chat_messages" ("id") ON DELETE CASCADE`,
	}},
	{model: (*reaction)(nil), foreignKeys: []string{
		`("message_id") REFERENCES "chat_messages" ("id") ON DELETE CASCADE`,
		`("user_id") REFERENCES "chat_users" ("id") ON DELETE CASCADE`,
	}},
}

type index struct {
	model   any
	name    string
	columns []string
}

var indexes = []index{
	{model: (*session)(nil), name: "idx_chat_sessions_token", columns: []string{"token"}},
	{model: (*session)(nil), name: "idx_chat_sessions_user_id", columns: []string{"user_id"}},
	{model: (*message)(nil), name: "idx_chat_messages_channel_id", columns: []string{"channel_id"}},
	{model: (*message)(nil), name: "idx_chat_messages_created_at", columns: []string{"created_at DESC"}},
	{model: (*member)(nil), name: "idx_chat_channel_members_user_id", columns: []string{"user_id"}},
	{model: (*reaction)(nil), name: "idx_chat_message_reactions_message_id", columns: []string{"message_id"}},
}

// Migrate creates the chat schema if it does not exist yet. It is safe to run
// repeatedly.
func (pg *Store) Migrate(ctx context.Context) error {
	return pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, t := range tables {
			q := tx.NewCreateTable().Model(t.model).IfNotExists()
			for _, fk := range t.foreignKeys {
				q = q.ForeignKey(fk)
			}
			if _, err := q.Exec(ctx); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
		}
		for _, idx := range indexes {
			q := tx.NewCreateIndex().Model(idx.model).Index(idx.name).IfNotExists()
			for _, col := range idx.columns {
				q = q.ColumnExpr(col)
			}
			if _, err := q.Exec(ctx); err != nil {
				return fmt.Errorf("create index %s: %w", idx.name, err)
			}
		}
		return nil
	})
}
