// handlers.go contains the command implementations: component wiring for
// local commands and the serve loop for the gateway.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/haasonsaas/opsgate/internal/config"
	"github.com/haasonsaas/opsgate/internal/contexthealth"
	"github.com/haasonsaas/opsgate/internal/diagnostics"
	"github.com/haasonsaas/opsgate/internal/events"
	"github.com/haasonsaas/opsgate/internal/gateway"
	"github.com/haasonsaas/opsgate/internal/maintenance"
	"github.com/haasonsaas/opsgate/internal/observability"
	"github.com/haasonsaas/opsgate/internal/planner"
	"github.com/haasonsaas/opsgate/internal/probe"
	"github.com/haasonsaas/opsgate/internal/registry"
	"github.com/haasonsaas/opsgate/internal/snapshot"
	"github.com/haasonsaas/opsgate/internal/sweeps"
)

// components holds the wired service graph shared by all commands.
type components struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
	hub     *events.Hub

	registry  *registry.Service
	prober    *probe.Prober
	diag      *diagnostics.Engine
	snapshots *snapshot.Service
	health    *contexthealth.Service
	maint     *maintenance.Coordinator
}

// buildComponents loads configuration and wires the service graph.
func buildComponents(configPath string, debug bool) (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:     level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	metrics := observability.NewMetrics()
	hubCfg := events.DefaultHubConfig()
	hubCfg.Metrics = metrics
	hub := events.NewHub(hubCfg)

	reg := registry.NewService(registry.Config{
		ManifestPath: cfg.Registry.ManifestPath,
		ProjectRoot:  cfg.Registry.ProjectRoot,
		CacheTTL:     cfg.Registry.CacheTTL,
	}, logger, metrics, hub)

	prober := probe.NewProber(probe.Config{
		CacheTTL:     cfg.Probe.CacheTTL,
		ProbeTimeout: cfg.Probe.ProbeTimeout,
	}, logger, metrics)

	snaps := snapshot.NewService(snapshot.Config{
		CacheTTL:          cfg.Snapshot.CacheTTL,
		CollectionTimeout: cfg.Snapshot.CollectionTimeout,
		Cwd:               cfg.Snapshot.Cwd,
	}, logger, metrics, hub)

	health := contexthealth.NewService(contexthealth.Config{
		DefaultMaxTokens:     cfg.Context.DefaultMaxTokens,
		WarningThreshold:     cfg.Context.WarningThreshold,
		CriticalThreshold:    cfg.Context.CriticalThreshold,
		EmergencyThreshold:   cfg.Context.EmergencyThreshold,
		MonitorInterval:      cfg.Context.MonitorInterval,
		AutoHealing:          config.Bool(cfg.Context.AutoHealing, true),
		SummarizationEnabled: config.Bool(cfg.Context.SummarizationEnabled, true),
		RotationEnabled:      config.Bool(cfg.Context.RotationEnabled, true),
		RotationCooldown:     cfg.Context.RotationCooldown,
	}, logger, metrics, hub)

	return &components{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		hub:       hub,
		registry:  reg,
		prober:    prober,
		diag:      diagnostics.NewEngine(logger),
		snapshots: snaps,
		health:    health,
		maint:     maintenance.NewCoordinator(logger, metrics),
	}, nil
}

// detect loads the registry and probes every tool it names.
func (c *components) detect(ctx context.Context) (*registry.Registry, []probe.DetectedCLI, error) {
	reg, err := c.registry.Load(ctx, registry.LoadOptions{})
	if err != nil {
		return nil, nil, err
	}
	agents, tools := planner.Definitions(reg.Manifest.Tools)
	snap := c.prober.DetectAll(ctx, agents, tools)
	detected := append(append([]probe.DetectedCLI{}, snap.Agents...), snap.Tools...)
	return reg, detected, nil
}

// runServe starts the gateway server with sweeps and health monitoring.
func runServe(ctx context.Context, configPath, addr string, debug bool) error {
	c, err := buildComponents(configPath, debug)
	if err != nil {
		return err
	}
	defer c.hub.Close()

	if addr == "" {
		addr = c.cfg.Gateway.Addr
	}

	if c.cfg.Registry.Watch {
		watcher := registry.NewWatcher(c.registry, 0)
		if err := watcher.Start(ctx); err != nil {
			c.logger.Warn(ctx, "manifest watch unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if config.Bool(c.cfg.Sweeps.Enabled, true) {
		scheduler := sweeps.NewScheduler(c.logger, c.metrics, c.hub)
		jobs := []sweeps.Job{
			{
				Name: "snapshot_refresh",
				Spec: c.cfg.Sweeps.SnapshotRefreshSpec,
				Run: func(ctx context.Context) error {
					c.snapshots.GetSnapshot(ctx, snapshot.GetOptions{BypassCache: true})
					return nil
				},
			},
			{
				Name: "backlog_prune",
				Spec: c.cfg.Sweeps.BacklogPruneSpec,
				Run: func(ctx context.Context) error {
					c.hub.PruneBacklogs()
					return nil
				},
			},
			{
				Name: "detection_refresh",
				Spec: c.cfg.Sweeps.DetectionRefreshSpec,
				Run: func(ctx context.Context) error {
					c.prober.ClearCache()
					_, _, err := c.detect(ctx)
					return err
				},
			},
		}
		for _, job := range jobs {
			if err := scheduler.Register(job); err != nil {
				return fmt.Errorf("invalid sweep spec for %s: %w", job.Name, err)
			}
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	c.health.StartMonitoring(ctx)
	defer c.health.StopMonitoring()

	server := gateway.NewServer(gateway.Config{
		Addr:          addr,
		ReadTimeout:   c.cfg.Gateway.ReadTimeout,
		WriteTimeout:  c.cfg.Gateway.WriteTimeout,
		ShutdownGrace: c.cfg.Gateway.ShutdownGrace,
	}, c.logger, c.metrics, gateway.Deps{
		Registry:  c.registry,
		Prober:    c.prober,
		Diag:      c.diag,
		Snapshots: c.snapshots,
		Health:    c.health,
		Maint:     c.maint,
		Hub:       c.hub,
	})
	return server.Start(ctx)
}

// runTools probes the fleet and prints per-tool availability.
func runTools(ctx context.Context, configPath string, jsonOut bool) error {
	c, err := buildComponents(configPath, false)
	if err != nil {
		return err
	}
	reg, detected, err := c.detect(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]any{
			"meta":     reg.Meta,
			"detected": detected,
		})
	}

	byName := make(map[string]probe.DetectedCLI, len(detected))
	for _, d := range detected {
		byName[d.Name] = d
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tCATEGORY\tAVAILABLE\tVERSION\tREASON")
	for _, t := range reg.Manifest.Tools {
		d := byName[t.Name]
		reason := ""
		if !d.Available && d.UnavailabilityReason != "" {
			reason = string(d.UnavailabilityReason)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", t.Name, t.Category, d.Available, d.Version, reason)
	}
	return w.Flush()
}

// runPlan prints the install plan, either as JSON or as the executable
// install script.
func runPlan(ctx context.Context, configPath string, script bool) error {
	c, err := buildComponents(configPath, false)
	if err != nil {
		return err
	}
	reg, detected, err := c.detect(ctx)
	if err != nil {
		return err
	}

	plan := planner.Build(reg.Manifest.Tools, planner.FromDetected(detected))
	if script {
		fmt.Print(planner.FormatInstallScript(plan))
		return nil
	}
	return printJSON(plan)
}

// runDiagnose prints the cascade-failure analysis.
func runDiagnose(ctx context.Context, configPath string) error {
	c, err := buildComponents(configPath, false)
	if err != nil {
		return err
	}
	reg, detected, err := c.detect(ctx)
	if err != nil {
		return err
	}

	report := c.diag.Analyze(ctx, reg.Manifest.Tools, detected)
	if report.Summary.Unavailable == 0 {
		fmt.Printf("All %d tools available.\n", report.Summary.Total)
		return nil
	}

	fmt.Printf("%d of %d tools unavailable (%d cascade failures)\n",
		report.Summary.Unavailable, report.Summary.Total, report.Summary.Cascades)
	for _, h := range report.Tools {
		if h.Available {
			continue
		}
		if h.IsCascadeFailure {
			fmt.Printf("  %s: %s\n", h.Name, h.RootCauseExplanation)
		} else {
			fmt.Printf("  %s: %s\n", h.Name, h.ReasonLabel)
		}
	}
	return nil
}

// runSnapshot collects a fresh aggregate snapshot and prints it.
func runSnapshot(ctx context.Context, configPath string) error {
	c, err := buildComponents(configPath, false)
	if err != nil {
		return err
	}
	snap, results := c.snapshots.GetSnapshot(ctx, snapshot.GetOptions{BypassCache: true})
	return printJSON(map[string]any{
		"snapshot":   snap,
		"collection": results,
	})
}

// runDoctor checks readiness and prints remediation guidance. Returns an
// error when required tools are missing so the process exits non-zero.
func runDoctor(ctx context.Context, configPath string) error {
	c, err := buildComponents(configPath, false)
	if err != nil {
		return err
	}
	reg, detected, err := c.detect(ctx)
	if err != nil {
		return err
	}

	plan := planner.Build(reg.Manifest.Tools, planner.FromDetected(detected))
	readiness := planner.CheckReadiness(plan)
	printDoctorReport(os.Stdout, plan, readiness)
	if !readiness.Ready {
		return fmt.Errorf("%d required tools missing", plan.MissingRequired)
	}
	return nil
}

// printDoctorReport renders the readiness verdict plus remediation steps for
// every tool that is not installed.
func printDoctorReport(w io.Writer, plan *planner.Plan, readiness *planner.Readiness) {
	if readiness.Ready {
		fmt.Fprintln(w, "Fleet is ready: all required tools are installed.")
		for _, rec := range readiness.Recommendations {
			fmt.Fprintln(w, "  "+rec)
		}
		return
	}

	fmt.Fprintln(w, "Fleet is NOT ready.")
	for _, rec := range readiness.Recommendations {
		fmt.Fprintln(w, "  "+rec)
	}
	for _, entry := range plan.Entries {
		if entry.Status == planner.StatusInstalled {
			continue
		}
		fmt.Fprintf(w, "\n%s (%s):\n", entry.DisplayName, entry.Status)
		for _, step := range entry.Remediation {
			fmt.Fprintln(w, "  - "+step)
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
