// Package sweeps runs the gateway's periodic background jobs on a cron
// scheduler: snapshot refresh, hub backlog pruning, and detection cache
// refresh. Every run emits a sweep.completed event and a duration metric.
package sweeps

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/opsgate/internal/events"
	"github.com/haasonsaas/opsgate/internal/observability"
)

// Job is one periodic sweep. Run should honor ctx cancellation.
type Job struct {
	// Name labels the job in metrics, events, and logs.
	Name string

	// Spec is a cron expression or descriptor ("@every 30s").
	Spec string

	// Run does the work. Errors are reported, not retried.
	Run func(ctx context.Context) error
}

// Config configures the default sweep cadences.
type Config struct {
	// SnapshotRefreshSpec refreshes the aggregate snapshot. Default 30s.
	SnapshotRefreshSpec string

	// BacklogPruneSpec prunes expired hub backlog entries. Default 1m.
	BacklogPruneSpec string

	// DetectionRefreshSpec re-probes the CLI fleet. Default 5m.
	DetectionRefreshSpec string
}

// DefaultConfig returns the sweep defaults.
func DefaultConfig() Config {
	return Config{
		SnapshotRefreshSpec:  "@every 30s",
		BacklogPruneSpec:     "@every 1m",
		DetectionRefreshSpec: "@every 5m",
	}
}

// Scheduler owns the cron runner and the registered sweep jobs.
type Scheduler struct {
	logger  *observability.Logger
	metrics *observability.Metrics
	hub     events.Publisher
	cron    *cron.Cron

	mu      sync.Mutex
	started bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Metrics may be nil; hub may be nil for
// an event-free instance.
func NewScheduler(logger *observability.Logger, metrics *observability.Metrics, hub events.Publisher) *Scheduler {
	if hub == nil {
		hub = events.NopPublisher{}
	}
	return &Scheduler{
		logger:  logger,
		metrics: metrics,
		hub:     hub,
		cron:    cron.New(),
	}
}

// Register adds a job. Returns an error for an invalid cron spec.
// Jobs registered after Start are picked up immediately.
func (s *Scheduler) Register(job Job) error {
	_, err := s.cron.AddFunc(job.Spec, func() {
		s.runJob(job)
	})
	if err != nil {
		return err
	}
	s.logger.Debug(nil, "sweep registered", "job", job.Name, "spec", job.Spec)
	return nil
}

// runJob executes one sweep, records its duration, and emits the
// completion event.
func (s *Scheduler) runJob(job Job) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.SweepDuration.WithLabelValues(job.Name).Observe(elapsed.Seconds())
	}

	payload := map[string]any{
		"job":        job.Name,
		"durationMs": elapsed.Milliseconds(),
		"success":    err == nil,
	}
	if err != nil {
		payload["error"] = err.Error()
		s.logger.Warn(ctx, "sweep failed", "job", job.Name, "error", err, "duration_ms", elapsed.Milliseconds())
	} else {
		s.logger.Debug(ctx, "sweep completed", "job", job.Name, "duration_ms", elapsed.Milliseconds())
	}
	s.hub.Publish(events.SweepChannel(), events.EventSweepCompleted, payload, nil)
}

// Start begins running registered jobs. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	if cancel != nil {
		cancel()
	}
}

// RunNow executes a job immediately outside its schedule. Used by CLI
// commands and tests.
func (s *Scheduler) RunNow(job Job) {
	s.runJob(job)
}
