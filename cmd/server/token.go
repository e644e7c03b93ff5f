package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/chatgateway/internal/config"
	"github.com/Tyrowin/chatgateway/internal/identity"
)

func newTokenCommand(cfg *config.Config) *cobra.Command {
	var (
		user identity.User
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token for the jwt auth mode",
		Args:  cobra.NoArgs,
		Example: `  CHAT_GATEWAY_JWT_SECRET=s3cret chatgateway token --user alice --name Alice --ttl 1h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.JWTSecret == "" {
				return errors.New("a signing secret is required (--jwt-secret or CHAT_GATEWAY_JWT_SECRET)")
			}
			if user.ID == "" {
				return errors.New("--user is required")
			}
			token, err := identity.NewJWTResolver([]byte(cfg.JWTSecret)).Issue(user, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "HMAC signing secret")
	f.StringVar(&user.ID, "user", "", "user id (token subject)")
	f.StringVar(&user.DisplayName, "name", "", "display name")
	f.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
