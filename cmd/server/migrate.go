package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/chatgateway/internal/config"
	"github.com/Tyrowin/chatgateway/internal/store/postgres"
)

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the PostgreSQL schema if it does not exist",
		Args:  cobra.NoArgs,
		Example: `  chatgateway migrate --database-url postgres://chat@localhost/chat?sslmode=disable`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.DatabaseURL == "" {
				return errors.New("a database URL is required (--database-url or CHAT_GATEWAY_DATABASE_URL)")
			}
			log := cfg.Sanitize().Logger(os.Stderr)

			pg, err := postgres.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = pg.Close() }()

			if err := pg.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("schema is up to date")
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection URL")
	return cmd
}
