package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/batchops/batchwatch/internal/config"
	"github.com/batchops/batchwatch/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the batch monitor service",
		Long: `Loads configuration, builds the monitor, event relays, and HTTP API,
and runs until interrupted. On SIGINT/SIGTERM the monitor finishes its
current poll within the configured grace window before the process exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
