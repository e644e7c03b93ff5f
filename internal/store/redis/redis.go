// Package redis caches presence statuses in Redis in front of an optional
// durable status store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tyrowin/chatgateway/internal/store"
)

const (
	statusPrefix = "presence"
	statusTTL    = 24 * time.Hour
)

type status struct {
	Status        string    `redis:"status"`
	StatusMessage string    `redis:"status_message"`
	LastSeenAt    time.Time `redis:"last_seen_at"`
}

// Redis is a store.StatusStore backed by one hash per user.
type Redis struct {
	cli     *redis.Client
	durable store.StatusStore
}

var _ store.StatusStore = (*Redis)(nil)

// Connect connects to the Redis server and pings the server to ensure the
// connection is working. durable, when non-nil, receives every write before
// the cache and answers cache misses.
func Connect(ctx context.Context, addr string, durable store.StatusStore) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{cli: cli, durable: durable}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

// Ping reports whether the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

func key(userID string) string {
	return fmt.Sprintf("%s:%s", statusPrefix, userID)
}

// SetStatus implements store.StatusStore.
func (r *Redis) SetStatus(ctx context.Context, userID, st, statusMessage string, at time.Time) error {
	if r.durable != nil {
		if err := r.durable.SetStatus(ctx, userID, st, statusMessage, at); err != nil {
			return err
		}
	}

	s := &status{Status: st, StatusMessage: statusMessage, LastSeenAt: at.UTC()}
	_, err := r.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		k := key(userID)
		pipe.HSet(ctx, k, s)
		pipe.Expire(ctx, k, statusTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set status: %w", err)
	}
	return nil
}

// GetStatuses implements store.StatusStore. Users missing from the cache are
// looked up in the durable store, when there is one.
func (r *Redis) GetStatuses(ctx context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	cmds := make([]*redis.StringCmd, len(userIDs))
	_, err := r.cli.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range userIDs {
			cmds[i] = pipe.HGet(ctx, key(id), "status")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get statuses: %w", err)
	}

	var missing []string
	for i, cmd := range cmds {
		st, err := cmd.Result()
		switch {
		case errors.Is(err, redis.Nil):
			missing = append(missing, userIDs[i])
		case err != nil:
			return nil, fmt.Errorf("hget: %w", err)
		default:
			out[userIDs[i]] = st
		}
	}

	if len(missing) == 0 || r.durable == nil {
		return out, nil
	}
	rest, err := r.durable.GetStatuses(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, st := range rest {
		out[id] = st
	}
	return out, nil
}
