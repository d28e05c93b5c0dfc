// Package main provides the CLI entry point for the opsgate operator
// gateway.
//
// Opsgate watches a fleet of local dev-workflow CLIs (agent CLIs, setup
// tools, the beads issue tracker, Agent Mail) and serves an HTTP control
// plane over them: readiness, install planning, cascade diagnostics,
// aggregated snapshots, context-window health, and maintenance control.
//
// # Basic Usage
//
// Start the gateway:
//
//	opsgate serve --config opsgate.yaml
//
// Check fleet readiness from the shell:
//
//	opsgate doctor
//
// Print the install plan for missing tools:
//
//	opsgate plan --script
//
// # Environment Variables
//
//   - OPSGATE_CONFIG: Path to configuration file (default: opsgate.yaml)
//   - ACFS_MANIFEST_PATH: Override for the tool manifest location
//   - ACFS_MANIFEST_TTL_MS: Override for the manifest cache lifetime
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := buildRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "opsgate",
		Short: "Operator gateway for the local dev-workflow CLI fleet",
		Long: `Opsgate aggregates, monitors, and coordinates the local fleet of
dev-workflow CLIs: agent CLIs, setup tools, the beads issue tracker,
and Agent Mail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildStatusCmd(),
		buildToolsCmd(),
		buildPlanCmd(),
		buildDiagnoseCmd(),
		buildSnapshotCmd(),
		buildDoctorCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("opsgate %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
