package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatgateway/internal/protocol"
	"github.com/Tyrowin/chatgateway/internal/registry"
	"github.com/Tyrowin/chatgateway/internal/store/memory"
)

type recordingPublisher struct {
	mu      sync.Mutex
	updates []protocol.PresenceUpdate
}

func (p *recordingPublisher) BroadcastAll(event string, data any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event == protocol.EventPresenceUpdate {
		p.updates = append(p.updates, data.(protocol.PresenceUpdate))
	}
	return 1
}

type failingStatuses struct{}

func (failingStatuses) SetStatus(context.Context, string, string, string, time.Time) error {
	return errors.New("db down")
}

func (failingStatuses) GetStatuses(context.Context, []string) (map[string]string, error) {
	return nil, errors.New("db down")
}

func TestAnnounceBroadcastsAndPersists(t *testing.T) {
	pub := &recordingPublisher{}
	statuses := memory.New()
	b := New(pub, registry.New(), statuses, slogt.New(t))

	require.True(t, b.Announce(context.Background(), Update{UserID: "alice", Status: "online", Seq: 1}))

	assert.Equal(t, []protocol.PresenceUpdate{{UserID: "alice", Status: "online"}}, pub.updates)
	got, err := statuses.GetStatuses(context.Background(), []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, "online", got["alice"])
}

// TestStaleUpdateIgnored verifies last-write-wins when an older transition
// arrives after a newer one.
func TestStaleUpdateIgnored(t *testing.T) {
	pub := &recordingPublisher{}
	b := New(pub, registry.New(), nil, slogt.New(t))

	assert.True(t, b.Announce(context.Background(), Update{UserID: "alice", Status: "offline", Seq: 5}))
	assert.False(t, b.Announce(context.Background(), Update{UserID: "alice", Status: "online", Seq: 4}))
	assert.False(t, b.Announce(context.Background(), Update{UserID: "alice", Status: "online", Seq: 5}))

	require.Len(t, pub.updates, 1)
	assert.Equal(t, "offline", pub.updates[0].Status)
}

// TestPersistenceFailureStillAnnounces verifies that connected clients learn
// about the change even when the write fails.
func TestPersistenceFailureStillAnnounces(t *testing.T) {
	pub := &recordingPublisher{}
	b := New(pub, registry.New(), failingStatuses{}, slogt.New(t))

	assert.True(t, b.Announce(context.Background(), Update{UserID: "alice", Status: "away", Seq: 1}))
	assert.Len(t, pub.updates, 1)
}

func TestLookup(t *testing.T) {
	reg := registry.New()
	b := New(&recordingPublisher{}, reg, nil, slogt.New(t))

	reg.Register("c1", "alice")
	reg.Register("c2", "bob")
	b.Announce(context.Background(), Update{UserID: "bob", Status: "busy", StatusMessage: "focus", Seq: reg.Stamp()})

	got := b.Lookup(context.Background(), []string{"alice", "bob", "carol"})
	assert.Equal(t, protocol.PresenceList{
		"alice": "online",
		"bob":   "busy",
		"carol": "offline",
	}, got)
}

// TestLookupReadsStoredStatus verifies that an online user this broadcaster
// never announced is answered from the status store, and that a stored
// offline row does not hide a live connection.
func TestLookupReadsStoredStatus(t *testing.T) {
	ctx := context.Background()
	reg := registry.New()
	statuses := memory.New()
	require.NoError(t, statuses.SetStatus(ctx, "alice", "away", "lunch", time.Now()))
	require.NoError(t, statuses.SetStatus(ctx, "bob", "offline", "", time.Now()))
	require.NoError(t, statuses.SetStatus(ctx, "carol", "busy", "", time.Now()))
	b := New(&recordingPublisher{}, reg, statuses, slogt.New(t))

	reg.Register("c1", "alice")
	reg.Register("c2", "bob")
	reg.Register("c3", "dave")

	got := b.Lookup(ctx, []string{"alice", "bob", "carol", "dave"})
	assert.Equal(t, protocol.PresenceList{
		"alice": "away",
		"bob":   "online",
		"carol": "offline",
		"dave":  "online",
	}, got)

	b.Announce(ctx, Update{UserID: "alice", Status: "online", Seq: reg.Stamp()})
	assert.Equal(t, "online", b.Lookup(ctx, []string{"alice"})["alice"])
}

func TestLookupSurvivesStoreFailure(t *testing.T) {
	reg := registry.New()
	reg.Register("c1", "alice")
	b := New(&recordingPublisher{}, reg, failingStatuses{}, slogt.New(t))

	assert.Equal(t, protocol.PresenceList{"alice": "online"}, b.Lookup(context.Background(), []string{"alice"}))
}

func TestConcurrentAnnouncementsKeepNewest(t *testing.T) {
	pub := &recordingPublisher{}
	b := New(pub, registry.New(), nil, slogt.New(t))

	var wg sync.WaitGroup
	for seq := uint64(1); seq <= 100; seq++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			status := "online"
			if seq%2 == 0 {
				status = "offline"
			}
			b.Announce(context.Background(), Update{UserID: "alice", Status: status, Seq: seq})
		}(seq)
	}
	wg.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.NotEmpty(t, pub.updates)
	assert.Equal(t, "offline", pub.updates[len(pub.updates)-1].Status, "seq 100 is always the last one announced")
}
