package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatgateway/internal/config"
	"github.com/Tyrowin/chatgateway/internal/identity"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := config.Default()
	cmd := newRootCommand(&cfg)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--jwt-secret", "s3cret", "--user", "alice", "--name", "Alice", "--ttl", "1h")
	require.NoError(t, err)

	user, err := identity.NewJWTResolver([]byte("s3cret")).Resolve(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", user.ID)
	assert.Equal(t, "Alice", user.DisplayName)
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	_, err := execute(t, "token", "--user", "alice")
	assert.ErrorContains(t, err, "secret")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, "serve", "--store", "postgres")
	assert.ErrorContains(t, err, "DatabaseURL")

	_, err = execute(t, "serve", "--store", "memory", "--auth", "jwt")
	assert.ErrorContains(t, err, "JWTSecret")
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	_, err := execute(t, "migrate")
	assert.ErrorContains(t, err, "database URL")
}

func TestServeStopsWhenContextEnds(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.Store = config.StoreMemory
	cfg.DevTokens = map[string]string{"tok-a": "alice"}
	cfg.DevChannels = []string{"general"}
	cfg.LogLevel = "error"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}
