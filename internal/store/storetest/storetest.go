// Package storetest holds behavior tests shared by every MessageStore and
// StatusStore implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatgateway/internal/store"
)

// Fixture is a MessageStore plus a way to seed channel membership, which the
// gateway itself never writes. ID maps a readable name such as "alice" to the
// identifier the store expects; AddMember takes mapped ids.
type Fixture struct {
	Store     store.MessageStore
	ID        func(name string) string
	AddMember func(t *testing.T, channelID, userID string)
}

// RunMessageStore exercises the MessageStore contract. newFixture is called
// once per subtest and must return an isolated store.
func RunMessageStore(t *testing.T, newFixture func(t *testing.T) Fixture) {
	ctx := context.Background()

	t.Run("membership", func(t *testing.T) {
		f := newFixture(t)
		f.AddMember(t, f.ID("c1"), f.ID("alice"))

		ok, err := f.Store.IsMember(ctx, f.ID("c1"), f.ID("alice"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = f.Store.IsMember(ctx, f.ID("c1"), f.ID("bob"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("create defaults", func(t *testing.T) {
		f := newFixture(t)
		f.AddMember(t, f.ID("c1"), f.ID("alice"))

		m, err := f.Store.CreateMessage(ctx, store.NewMessage{ChannelID: f.ID("c1"), SenderID: f.ID("alice"), Content: "hello"})
		require.NoError(t, err)
		assert.NotEmpty(t, m.ID)
		assert.Equal(t, store.DefaultMessageType, m.Type)
		assert.Zero(t, m.ThreadCount)
		assert.False(t, m.IsEdited)
		assert.Nil(t, m.ParentID)
		assert.WithinDuration(t, time.Now(), m.CreatedAt, time.Minute)

		got, err := f.Store.GetMessage(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "hello", got.Content)
	})

	t.Run("thread replies", func(t *testing.T) {
		f := newFixture(t)
		f.AddMember(t, f.ID("c1"), f.ID("alice"))
		f.AddMember(t, f.ID("c2"), f.ID("alice"))

		parent, err := f.Store.CreateMessage(ctx, store.NewMessage{ChannelID: f.ID("c1"), SenderID: f.ID("alice"), Content: "root"})
		require.NoError(t, err)

		reply, err := f.Store.CreateMessage(ctx, store.NewMessage{ChannelID: f.ID("c1"), SenderID: f.ID("alice"), Content: "re", ParentID: &parent.ID})
		require.NoError(t, err)
		require.NotNil(t, reply.ParentID)
		assert.Equal(t, parent.ID, *reply.ParentID)
		require.NoError(t, f.Store.IncrementThreadCount(ctx, parent.ID))

		got, err := f.Store.GetMessage(ctx, parent.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.ThreadCount)

		_, err = f.Store.CreateMessage(ctx, store.NewMessage{ChannelID: f.ID("c2"), SenderID: f.ID("alice"), Content: "x", ParentID: &parent.ID})
		assert.ErrorIs(t, err, store.ErrInvalidParent, "parent in another channel")

		missing := "00000000-0000-0000-0000-000000000000"
		_, err = f.Store.CreateMessage(ctx, store.NewMessage{ChannelID: f.ID("c1"), SenderID: f.ID("alice"), Content: "x", ParentID: &missing})
		assert.ErrorIs(t, err, store.ErrInvalidParent, "unknown parent")
	})

	t.Run("edit and delete are owner only", func(t *testing.T) {
		f := newFixture(t)
		f.AddMember(t, f.ID("c1"), f.ID("alice"))
		f.AddMember(t, f.ID("c1"), f.ID("bob"))

		m, err := f.Store.CreateMessage(ctx, store.NewMessage{ChannelID: f.ID("c1"), SenderID: f.ID("alice"), Content: "v1"})
		require.NoError(t, err)

		_, err = f.Store.UpdateMessage(ctx, m.ID, f.ID("bob"), "hijack")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = f.Store.DeleteMessage(ctx, m.ID, f.ID("bob"))
		assert.ErrorIs(t, err, store.ErrNotFound)

		edited, err := f.Store.UpdateMessage(ctx, m.ID, f.ID("alice"), "v2")
		require.NoError(t, err)
		assert.Equal(t, "v2", edited.Content)
		assert.True(t, edited.IsEdited)
		assert.NotNil(t, edited.UpdatedAt)

		deleted, err := f.Store.DeleteMessage(ctx, m.ID, f.ID("alice"))
		require.NoError(t, err)
		assert.True(t, deleted.Deleted())

		_, err = f.Store.DeleteMessage(ctx, m.ID, f.ID("alice"))
		assert.ErrorIs(t, err, store.ErrNotFound, "already deleted")
		_, err = f.Store.UpdateMessage(ctx, m.ID, f.ID("alice"), "v3")
		assert.ErrorIs(t, err, store.ErrNotFound, "edit after delete")
	})

	t.Run("reactions", func(t *testing.T) {
		f := newFixture(t)
		f.AddMember(t, f.ID("c1"), f.ID("alice"))
		f.AddMember(t, f.ID("c1"), f.ID("bob"))
		m, err := f.Store.CreateMessage(ctx, store.NewMessage{ChannelID: f.ID("c1"), SenderID: f.ID("alice"), Content: "x"})
		require.NoError(t, err)

		require.NoError(t, f.Store.AddReaction(ctx, m.ID, f.ID("alice"), "👍"))
		require.NoError(t, f.Store.AddReaction(ctx, m.ID, f.ID("alice"), "👍"))
		require.NoError(t, f.Store.AddReaction(ctx, m.ID, f.ID("bob"), "👍"))

		rows, err := f.Store.ListReactions(ctx, m.ID)
		require.NoError(t, err)
		assert.Len(t, rows, 2, "adding twice is a no-op")

		require.NoError(t, f.Store.RemoveReaction(ctx, m.ID, f.ID("bob"), "👍"))
		require.NoError(t, f.Store.RemoveReaction(ctx, m.ID, f.ID("bob"), "👍"))
		rows, err = f.Store.ListReactions(ctx, m.ID)
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		added, err := f.Store.ToggleReaction(ctx, m.ID, f.ID("bob"), "🎉")
		require.NoError(t, err)
		assert.True(t, added)
		added, err = f.Store.ToggleReaction(ctx, m.ID, f.ID("bob"), "🎉")
		require.NoError(t, err)
		assert.False(t, added)

		rows, err = f.Store.ListReactions(ctx, m.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, f.ID("alice"), rows[0].UserID)
	})

	t.Run("reactions on a deleted message", func(t *testing.T) {
		f := newFixture(t)
		f.AddMember(t, f.ID("c1"), f.ID("alice"))
		m, err := f.Store.CreateMessage(ctx, store.NewMessage{ChannelID: f.ID("c1"), SenderID: f.ID("alice"), Content: "x"})
		require.NoError(t, err)
		require.NoError(t, f.Store.AddReaction(ctx, m.ID, f.ID("bob"), "👍"))
		_, err = f.Store.DeleteMessage(ctx, m.ID, f.ID("alice"))
		require.NoError(t, err)

		require.NoError(t, f.Store.RemoveReaction(ctx, m.ID, f.ID("bob"), "👍"))
		added, err := f.Store.ToggleReaction(ctx, m.ID, f.ID("bob"), "🎉")
		require.NoError(t, err)
		assert.True(t, added)

		rows, err := f.Store.ListReactions(ctx, m.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "🎉", rows[0].Emoji)
	})

	t.Run("read cursor requires membership", func(t *testing.T) {
		f := newFixture(t)
		f.AddMember(t, f.ID("c1"), f.ID("alice"))
		m, err := f.Store.CreateMessage(ctx, store.NewMessage{ChannelID: f.ID("c1"), SenderID: f.ID("alice"), Content: "x"})
		require.NoError(t, err)

		require.NoError(t, f.Store.MarkRead(ctx, f.ID("c1"), f.ID("alice"), m.ID))
		assert.ErrorIs(t, f.Store.MarkRead(ctx, f.ID("c1"), f.ID("mallory"), m.ID), store.ErrNotMember)
	})
}

// RunStatusStore exercises the StatusStore contract. alice and bob must be
// ids the store accepts; absent must be a well-formed id of no known user.
func RunStatusStore(t *testing.T, s store.StatusStore, alice, bob, absent string) {
	ctx := context.Background()

	require.NoError(t, s.SetStatus(ctx, alice, store.StatusOnline, "", time.Now()))
	require.NoError(t, s.SetStatus(ctx, bob, "busy", "in a meeting", time.Now()))
	require.NoError(t, s.SetStatus(ctx, alice, store.StatusOffline, "", time.Now()))

	got, err := s.GetStatuses(ctx, []string{alice, bob, absent})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{alice: store.StatusOffline, bob: "busy"}, got)
}
