// Command chatgateway runs the real-time chat gateway.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/chatgateway/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatgateway",
		Short:         "Real-time chat gateway",
		Long:          "Real-time chat gateway. Settings come from CHAT_GATEWAY_* environment variables; flags override them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")

	cmd.AddCommand(
		newServeCommand(cfg),
		newMigrateCommand(cfg),
		newTokenCommand(cfg),
		newVersionCommand(),
	)
	return cmd
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	if err := newRootCommand(&cfg).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
