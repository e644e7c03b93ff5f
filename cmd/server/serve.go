package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/chatgateway/internal/config"
	"github.com/Tyrowin/chatgateway/internal/dispatch"
	"github.com/Tyrowin/chatgateway/internal/hub"
	"github.com/Tyrowin/chatgateway/internal/identity"
	"github.com/Tyrowin/chatgateway/internal/presence"
	"github.com/Tyrowin/chatgateway/internal/protocol"
	"github.com/Tyrowin/chatgateway/internal/registry"
	"github.com/Tyrowin/chatgateway/internal/sanitize"
	"github.com/Tyrowin/chatgateway/internal/server"
	"github.com/Tyrowin/chatgateway/internal/store"
	"github.com/Tyrowin/chatgateway/internal/store/memory"
	"github.com/Tyrowin/chatgateway/internal/store/postgres"
	"github.com/Tyrowin/chatgateway/internal/store/redis"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Args:  cobra.NoArgs,
		Example: `  chatgateway serve --database-url postgres://chat@localhost/chat?sslmode=disable
  CHAT_GATEWAY_STORE=memory CHAT_GATEWAY_DEV_TOKENS=tok-a:alice CHAT_GATEWAY_DEV_CHANNELS=general chatgateway serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg.Sanitize())
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	f.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", cfg.AllowedOrigins, `browser origins allowed to connect, "*" for any`)
	f.StringVar(&cfg.Store, "store", cfg.Store, "store backend: postgres or memory")
	f.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection URL")
	f.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the presence status cache (optional)")
	f.StringVar(&cfg.Auth, "auth", cfg.Auth, "token resolver: session or jwt")
	f.Int64Var(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "maximum inbound frame size in bytes")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "time allowed for connections to close on shutdown")
	return cmd
}

// serve runs the gateway until ctx ends, then shuts it down within
// ShutdownTimeout.
func serve(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := cfg.Logger(os.Stderr)

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close(log)

	reg := registry.New()
	h := hub.New(reg, log)
	d := dispatch.New(context.WithoutCancel(ctx), dispatch.Deps{
		Registry:   reg,
		Router:     h,
		Presence:   presence.New(h, reg, b.statuses, log),
		Identities: b.identities,
		Messages:   b.messages,
		Sanitizer:  sanitize.New(),
		Validator:  protocol.NewValidator(),
		Logger:     log,
		OpTimeout:  cfg.StoreTimeout,
	})
	srv := server.New(cfg, server.Deps{
		Registry:   reg,
		Hub:        h,
		Dispatcher: d,
		Logger:     log,
		Checks:     b.checks,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("gateway stopped")
	return nil
}

// backend is the storage selected by the configuration.
type backend struct {
	messages   store.MessageStore
	statuses   store.StatusStore
	identities identity.Resolver
	checks     map[string]server.Pinger
	closers    []func() error
}

func openBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (*backend, error) {
	b := &backend{checks: make(map[string]server.Pinger)}

	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.messages, b.statuses, b.identities = pg, pg, pg
		b.checks["postgres"] = pg
		b.closers = append(b.closers, pg.Close)
	case config.StoreMemory:
		mem := memory.New()
		for token, userID := range cfg.DevTokens {
			mem.AddSession(token, identity.User{ID: userID, DisplayName: userID})
			for _, channelID := range cfg.DevChannels {
				mem.AddMember(channelID, userID)
			}
		}
		b.messages, b.statuses, b.identities = mem, mem, mem
		log.Warn("using the in-memory store; nothing survives a restart",
			slog.Int("dev_tokens", len(cfg.DevTokens)))
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if cfg.RedisAddr != "" {
		rd, err := redis.Connect(ctx, cfg.RedisAddr, b.statuses)
		if err != nil {
			b.close(log)
			return nil, err
		}
		b.statuses = rd
		b.checks["redis"] = rd
		b.closers = append(b.closers, rd.Close)
	}

	if cfg.Auth == config.AuthJWT {
		b.identities = identity.NewJWTResolver([]byte(cfg.JWTSecret))
	}
	return b, nil
}

func (b *backend) close(log *slog.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Warn("close backend", slog.Any("error", err))
		}
	}
}
