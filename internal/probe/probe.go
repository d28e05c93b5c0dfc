package probe

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/haasonsaas/opsgate/internal/execsafe"
	"github.com/haasonsaas/opsgate/internal/observability"
)

// DefaultCacheTTL is how long detection results stay fresh.
const DefaultCacheTTL = 60 * time.Second

// DefaultProbeTimeout bounds a single CLI invocation.
const DefaultProbeTimeout = 5 * time.Second

// Config configures the prober.
type Config struct {
	// CacheTTL is the detection cache lifetime. Defaults to 60s.
	CacheTTL time.Duration

	// ProbeTimeout bounds each CLI invocation. Defaults to 5s.
	ProbeTimeout time.Duration
}

// DefaultConfig returns the probe defaults.
func DefaultConfig() Config {
	return Config{CacheTTL: DefaultCacheTTL, ProbeTimeout: DefaultProbeTimeout}
}

// RunResult is the outcome of one CLI invocation.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner spawns CLI processes. The default implementation uses os/exec;
// tests substitute a fake.
type Runner interface {
	// Run executes path with args under ctx's deadline. A non-zero exit is
	// not an error; err is reserved for spawn failures and timeouts.
	Run(ctx context.Context, path string, args []string) (RunResult, error)
}

// LookPath locates an executable on PATH. Matches exec.LookPath.
type LookPath func(name string) (string, error)

type execRunner struct{}

func (execRunner) Run(ctx context.Context, path string, args []string) (RunResult, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	// Probed CLIs must not emit ANSI sequences into parsed output.
	cmd.Env = append(cmd.Environ(), "NO_COLOR=1")

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		err = nil
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, err
}

type cachedDetection struct {
	result     DetectedCLI
	detectedAt time.Time
}

// Prober detects CLIs and caches results. Safe for concurrent use; no lock
// is held while a subprocess runs.
type Prober struct {
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics

	runner   Runner
	lookPath LookPath

	mu         sync.Mutex
	cache      map[string]cachedDetection
	snapshot   *Snapshot
	snapshotAt time.Time
}

// NewProber creates a prober. Metrics may be nil.
func NewProber(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Prober {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	return &Prober{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		runner:   execRunner{},
		lookPath: exec.LookPath,
		cache:    map[string]cachedDetection{},
	}
}

// WithRunner substitutes the process runner (used by tests).
func (p *Prober) WithRunner(r Runner) *Prober {
	p.runner = r
	return p
}

// WithLookPath substitutes PATH resolution (used by tests).
func (p *Prober) WithLookPath(lp LookPath) *Prober {
	p.lookPath = lp
	return p
}

// Detect probes one CLI, serving from cache when fresh.
func (p *Prober) Detect(ctx context.Context, def CLIDefinition) DetectedCLI {
	p.mu.Lock()
	if entry, ok := p.cache[def.Name]; ok && time.Since(entry.detectedAt) < p.cfg.CacheTTL {
		p.mu.Unlock()
		return entry.result
	}
	p.mu.Unlock()

	result := p.probe(ctx, def)

	p.mu.Lock()
	p.cache[def.Name] = cachedDetection{result: result, detectedAt: time.Now()}
	p.mu.Unlock()

	if p.metrics != nil {
		available := "false"
		if result.Available {
			available = "true"
		}
		p.metrics.ProbeCounter.WithLabelValues(def.Name, available).Inc()
		p.metrics.ProbeDuration.WithLabelValues(def.Name).Observe(float64(result.DurationMs) / 1000)
	}
	return result
}

func (p *Prober) probe(ctx context.Context, def CLIDefinition) DetectedCLI {
	start := time.Now()
	out := DetectedCLI{Name: def.Name, DetectedAt: start}
	finish := func() DetectedCLI {
		out.DurationMs = time.Since(start).Milliseconds()
		return out
	}

	if err := execsafe.ValidateExecutable(def.Name); err != nil {
		p.logger.Warn(ctx, "refusing to probe unsafe executable name", "tool", def.Name, "error", err)
		out.UnavailabilityReason = ReasonSpawnFailed
		return finish()
	}

	path, err := p.lookPath(def.Name)
	if err != nil {
		out.UnavailabilityReason = ReasonNotInstalled
		return finish()
	}
	out.Path = path

	args := append(append([]string{}, def.Commands...), def.VersionFlag)
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	run, err := p.runner.Run(runCtx, path, args)
	cancel()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			out.UnavailabilityReason = ReasonTimeout
		} else {
			out.UnavailabilityReason = ReasonSpawnFailed
		}
		return finish()
	}

	combined := run.Stdout + "\n" + run.Stderr
	if run.ExitCode != 0 {
		exit := run.ExitCode
		out.UnavailabilityReason = Classify(run.Stderr, &exit)
		return finish()
	}

	out.Available = true
	out.Version = ParseVersion(combined)
	out.Capabilities = def.Capabilities

	if reason, unsupported := p.checkMinVersion(def, out.Version); unsupported {
		out.Available = false
		out.UnavailabilityReason = reason
		return finish()
	}

	if phrase, found := DetectAuthError(combined); found {
		f := false
		out.Authenticated = &f
		out.AuthError = phrase
	} else if len(def.AuthCheckCmd) > 0 {
		p.checkAuth(ctx, path, def, &out)
	}

	return finish()
}

// checkMinVersion gates detections below the definition's minimum version.
// Unparseable versions are not gated.
func (p *Prober) checkMinVersion(def CLIDefinition, version string) (UnavailabilityReason, bool) {
	if def.MinVersion == "" || version == "" {
		return "", false
	}
	floor, err := semver.NewVersion(strings.TrimPrefix(def.MinVersion, "v"))
	if err != nil {
		return "", false
	}
	have, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return "", false
	}
	if have.LessThan(floor) {
		return ReasonVersionUnsupported, true
	}
	return "", false
}

// checkAuth runs the definition's auth probe with the resolved path
// substituted for the command name.
func (p *Prober) checkAuth(ctx context.Context, path string, def CLIDefinition, out *DetectedCLI) {
	args := append([]string{}, def.AuthCheckCmd[1:]...)
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	run, err := p.runner.Run(runCtx, path, args)
	cancel()
	if err != nil {
		return
	}

	authenticated := run.ExitCode == 0
	combined := run.Stdout + "\n" + run.Stderr
	if phrase, found := DetectAuthError(combined); found {
		authenticated = false
		out.AuthError = phrase
	}
	out.Authenticated = &authenticated
}

// DetectAll probes agents and tools and returns the aggregate snapshot,
// cached with the same TTL as individual detections.
func (p *Prober) DetectAll(ctx context.Context, agents, tools []CLIDefinition) *Snapshot {
	p.mu.Lock()
	if p.snapshot != nil && time.Since(p.snapshotAt) < p.cfg.CacheTTL {
		snap := p.snapshot
		p.mu.Unlock()
		return snap
	}
	p.mu.Unlock()

	snap := &Snapshot{
		Agents: make([]DetectedCLI, 0, len(agents)),
		Tools:  make([]DetectedCLI, 0, len(tools)),
	}
	for _, def := range agents {
		snap.Agents = append(snap.Agents, p.Detect(ctx, def))
	}
	for _, def := range tools {
		snap.Tools = append(snap.Tools, p.Detect(ctx, def))
	}

	summary := SnapshotSummary{CapturedAt: time.Now()}
	for _, d := range append(append([]DetectedCLI{}, snap.Agents...), snap.Tools...) {
		summary.Total++
		if d.Available {
			summary.Available++
		} else {
			summary.Unavailable++
		}
	}
	snap.Summary = summary

	p.mu.Lock()
	p.snapshot = snap
	p.snapshotAt = time.Now()
	p.mu.Unlock()
	return snap
}

// ClearCache invalidates all cached detections and the aggregate snapshot.
// Called explicitly and after install completion.
func (p *Prober) ClearCache() {
	p.mu.Lock()
	p.cache = map[string]cachedDetection{}
	p.snapshot = nil
	p.mu.Unlock()
}

// FromToolDefinition builds a probe definition from a registry entry.
func FromToolDefinition(name string, verify []string, minVersion string, capabilities Capabilities) CLIDefinition {
	def := CLIDefinition{
		Name:         name,
		VersionFlag:  "--version",
		MinVersion:   minVersion,
		Capabilities: capabilities,
	}
	if len(verify) > 1 {
		// verify is [executable, args...]; everything between the executable
		// and the final flag becomes the fixed command prefix.
		def.Commands = verify[1 : len(verify)-1]
		def.VersionFlag = verify[len(verify)-1]
	}
	return def
}
