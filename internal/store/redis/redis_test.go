package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatgateway/internal/store/memory"
	"github.com/Tyrowin/chatgateway/internal/store/storetest"
)

func connect(t *testing.T, durable *memory.Store) *Redis {
	t.Helper()
	addr := os.Getenv("CHAT_GATEWAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHAT_GATEWAY_TEST_REDIS_ADDR not set")
	}
	var r *Redis
	var err error
	if durable != nil {
		r, err = Connect(context.Background(), addr, durable)
	} else {
		r, err = Connect(context.Background(), addr, nil)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestStatusStore(t *testing.T) {
	r := connect(t, nil)
	storetest.RunStatusStore(t, r, uuid.NewString(), uuid.NewString(), uuid.NewString())
}

func TestWritesThroughAndFallsBack(t *testing.T) {
	durable := memory.New()
	r := connect(t, durable)
	ctx := context.Background()

	cached := uuid.NewString()
	require.NoError(t, r.SetStatus(ctx, cached, "away", "", time.Now()))

	got, err := durable.GetStatuses(ctx, []string{cached})
	require.NoError(t, err)
	assert.Equal(t, "away", got[cached], "write reaches the durable store")

	coldOnly := uuid.NewString()
	require.NoError(t, durable.SetStatus(ctx, coldOnly, "busy", "", time.Now()))

	got, err = r.GetStatuses(ctx, []string{cached, coldOnly})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{cached: "away", coldOnly: "busy"}, got)
}
