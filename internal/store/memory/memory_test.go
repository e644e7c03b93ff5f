package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatgateway/internal/identity"
	"github.com/Tyrowin/chatgateway/internal/store"
	"github.com/Tyrowin/chatgateway/internal/store/storetest"
)

func TestMessageStore(t *testing.T) {
	storetest.RunMessageStore(t, func(t *testing.T) storetest.Fixture {
		s := New()
		return storetest.Fixture{
			Store: s,
			ID:    func(name string) string { return name },
			AddMember: func(_ *testing.T, channelID, userID string) {
				s.AddMember(channelID, userID)
			},
		}
	})
}

func TestStatusStore(t *testing.T) {
	storetest.RunStatusStore(t, New(), "alice", "bob", "nobody")
}

func TestResolve(t *testing.T) {
	s := New()
	s.AddSession("tok-a", identity.User{ID: "alice", DisplayName: "Alice"})

	user, err := s.Resolve(context.Background(), "tok-a")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID)

	_, err = s.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
	_, err = s.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestReadCursor(t *testing.T) {
	s := New()
	s.AddMember("c1", "alice")
	require.NoError(t, s.MarkRead(context.Background(), "c1", "alice", "m9"))
	assert.Equal(t, "m9", s.LastRead("c1", "alice"))
	assert.Empty(t, s.LastRead("c1", "bob"))
}

func TestReactionsOnUnknownMessage(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.AddReaction(context.Background(), "missing", "alice", "👍"), store.ErrNotFound)
	_, err := s.ToggleReaction(context.Background(), "missing", "alice", "👍")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
