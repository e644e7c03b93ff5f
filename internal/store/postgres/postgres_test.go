package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatgateway/internal/identity"
	"github.com/Tyrowin/chatgateway/internal/store"
	"github.com/Tyrowin/chatgateway/internal/store/storetest"
)

// connect returns a migrated store, or skips when no test database is
// configured.
func connect(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CHAT_GATEWAY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CHAT_GATEWAY_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pg, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })
	require.NoError(t, pg.Migrate(ctx))
	return pg
}

// ids lazily creates a user, or a channel for names starting with "c", for
// every readable name a test asks for.
type ids struct {
	t     *testing.T
	pg    *Store
	names map[string]string
}

func newIDs(t *testing.T, pg *Store) *ids {
	return &ids{t: t, pg: pg, names: make(map[string]string)}
}

func (i *ids) get(name string) string {
	if id, ok := i.names[name]; ok {
		return id
	}
	ctx := context.Background()
	var (
		id  string
		err error
	)
	if strings.HasPrefix(name, "c") {
		id, err = i.pg.CreateChannel(ctx, name, "")
	} else {
		id, err = i.pg.CreateUser(ctx, name+"-"+uuid.NewString()+"@example.com", name)
	}
	require.NoError(i.t, err)
	i.names[name] = id
	return id
}

func TestMessageStore(t *testing.T) {
	pg := connect(t)
	storetest.RunMessageStore(t, func(t *testing.T) storetest.Fixture {
		names := newIDs(t, pg)
		return storetest.Fixture{
			Store: pg,
			ID:    names.get,
			AddMember: func(t *testing.T, channelID, userID string) {
				require.NoError(t, pg.AddMember(context.Background(), channelID, userID))
			},
		}
	})
}

func TestStatusStore(t *testing.T) {
	pg := connect(t)
	names := newIDs(t, pg)
	storetest.RunStatusStore(t, pg, names.get("alice"), names.get("bob"), uuid.NewString())
}

func TestResolveSession(t *testing.T) {
	pg := connect(t)
	ctx := context.Background()
	names := newIDs(t, pg)
	alice := names.get("alice")

	live := uuid.NewString()
	expired := uuid.NewString()
	require.NoError(t, pg.CreateSession(ctx, alice, live, time.Hour))
	require.NoError(t, pg.CreateSession(ctx, alice, expired, -time.Minute))

	user, err := pg.Resolve(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, alice, user.ID)
	assert.Equal(t, "alice", user.DisplayName)

	_, err = pg.Resolve(ctx, expired)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
	_, err = pg.Resolve(ctx, "unknown")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestMigrateIsRepeatable(t *testing.T) {
	pg := connect(t)
	require.NoError(t, pg.Migrate(context.Background()))
}

// TestMalformedIDsNeverReachTheDatabase runs without a database: every call
// must answer from the id check alone.
func TestMalformedIDsNeverReachTheDatabase(t *testing.T) {
	pg := &Store{}
	ctx := context.Background()
	good := uuid.NewString()

	_, err := pg.GetMessage(ctx, "42")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = pg.UpdateMessage(ctx, "not-a-uuid", good, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = pg.DeleteMessage(ctx, good, "7")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, pg.AddReaction(ctx, "42", good, "👍"), store.ErrNotFound)
	assert.ErrorIs(t, pg.RemoveReaction(ctx, "42", good, "👍"), store.ErrNotFound)
	_, err = pg.ToggleReaction(ctx, "42", good, "👍")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = pg.ListReactions(ctx, "42")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, pg.IncrementThreadCount(ctx, "42"), store.ErrNotFound)
	assert.ErrorIs(t, pg.MarkRead(ctx, "general", good, good), store.ErrNotMember)
	assert.ErrorIs(t, pg.MarkRead(ctx, good, good, "42"), store.ErrNotFound)

	parent := "1"
	_, err = pg.CreateMessage(ctx, store.NewMessage{ChannelID: "general", SenderID: good, Content: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = pg.CreateMessage(ctx, store.NewMessage{ChannelID: good, SenderID: good, Content: "x", ParentID: &parent})
	assert.ErrorIs(t, err, store.ErrInvalidParent)

	member, err := pg.IsMember(ctx, "general", good)
	require.NoError(t, err)
	assert.False(t, member)

	statuses, err := pg.GetStatuses(ctx, []string{"alice", "42"})
	require.NoError(t, err)
	assert.Empty(t, statuses)
}
