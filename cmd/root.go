// Package cmd defines the CLI commands for the batchwatch executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batchwatch",
		Short: "Monitors asynchronous batch jobs through to completion.",
		Long: `batchwatch submits batch jobs to a provider such as the OpenAI batch API
and polls them until they reach a terminal state. Completed jobs fan out as
events: results can be archived to blob storage, recorded to Postgres, and
published to Pub/Sub.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; env vars use the BATCHWATCH_ prefix)")

	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
