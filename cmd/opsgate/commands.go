// commands.go contains the cobra command definitions and their flag
// configurations. Each builder wires a command to its handler in
// handlers.go.
package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the gateway.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the opsgate gateway server",
		Long: `Start the gateway server.

The server will:
1. Load configuration from the specified file (or opsgate.yaml)
2. Load the tool manifest, substituting the built-in fallback on failure
3. Start background sweeps (snapshot refresh, backlog pruning, re-probing)
4. Start context health monitoring
5. Serve the HTTP API, websocket event stream, and Prometheus metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  opsgate serve

  # Start on a different port with debug logging
  opsgate serve --addr :9600 --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, addr, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// =============================================================================
// Status Command
// =============================================================================

// buildStatusCmd creates the "status" command that queries a running
// gateway.
func buildStatusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8600", "Gateway base URL")
	return cmd
}

// =============================================================================
// Tool Commands
// =============================================================================

// buildToolsCmd creates the "tools" command that probes the fleet and
// prints per-tool availability.
func buildToolsCmd() *cobra.Command {
	var (
		configPath string
		jsonOut    bool
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Probe the CLI fleet and print availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd.Context(), configPath, jsonOut)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}

// buildPlanCmd creates the "plan" command that prints the install plan.
func buildPlanCmd() *cobra.Command {
	var (
		configPath string
		script     bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the install plan for missing tools",
		Example: `  # Human-readable plan
  opsgate plan

  # Executable install script
  opsgate plan --script | bash`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), configPath, script)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&script, "script", false, "Emit the executable install script")
	return cmd
}

// buildDiagnoseCmd creates the "diagnose" command that traces unavailable
// tools to their root causes.
func buildDiagnoseCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Trace unavailable tools to their root causes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// =============================================================================
// Snapshot Command
// =============================================================================

// buildSnapshotCmd creates the "snapshot" command that collects and prints
// the aggregate system snapshot.
func buildSnapshotCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Collect and print the aggregate system snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// =============================================================================
// Doctor Command
// =============================================================================

// buildDoctorCmd creates the "doctor" command: a readiness verdict with
// remediation guidance, exiting non-zero when required tools are missing.
func buildDoctorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check fleet readiness and print remediation steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
