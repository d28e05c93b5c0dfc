package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/opsgate/internal/events"
	"github.com/haasonsaas/opsgate/internal/observability"
)

// DefaultCacheTTL is how long an aggregate snapshot stays fresh.
const DefaultCacheTTL = 10 * time.Second

// DefaultCollectionTimeout bounds each individual source.
const DefaultCollectionTimeout = 2500 * time.Millisecond

// Config configures the aggregator.
type Config struct {
	// CacheTTL is the aggregate snapshot cache lifetime. Defaults to 10s.
	CacheTTL time.Duration

	// CollectionTimeout is the per-source deadline. Defaults to 2.5s.
	CollectionTimeout time.Duration

	// Cwd anchors file-based collectors (tool health, Agent Mail).
	Cwd string
}

// DefaultConfig returns the aggregator defaults.
func DefaultConfig() Config {
	return Config{CacheTTL: DefaultCacheTTL, CollectionTimeout: DefaultCollectionTimeout}
}

// GetOptions controls one snapshot request.
type GetOptions struct {
	// BypassCache forces a fresh collection even when the cache is valid.
	BypassCache bool
}

// Service collects and caches system snapshots. One instance holds one
// cache; there are no per-caller variants.
type Service struct {
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics
	hub     events.Publisher

	ntm   NTMClient
	beads BeadsClient
	tools ToolHealthClient
	mail  MailReader

	mu        sync.Mutex
	cached    *SystemSnapshot
	fetchedAt time.Time
	hits      int64
	misses    int64
}

// NewService creates an aggregator with CLI and file backed collectors.
// Metrics may be nil; hub may be nil for a publish-free instance.
func NewService(cfg Config, logger *observability.Logger, metrics *observability.Metrics, hub events.Publisher) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CollectionTimeout <= 0 {
		cfg.CollectionTimeout = DefaultCollectionTimeout
	}
	if hub == nil {
		hub = events.NopPublisher{}
	}
	return &Service{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		hub:     hub,
		ntm:     NewNTMClient(),
		beads:   NewBeadsClient(),
		tools:   NewToolHealthClient(cfg.Cwd),
		mail:    NewMailReader(cfg.Cwd),
	}
}

// WithCollectors substitutes the four collectors (used by tests). Nil
// arguments keep the current collector.
func (s *Service) WithCollectors(ntm NTMClient, beads BeadsClient, tools ToolHealthClient, mail MailReader) *Service {
	if ntm != nil {
		s.ntm = ntm
	}
	if beads != nil {
		s.beads = beads
	}
	if tools != nil {
		s.tools = tools
	}
	if mail != nil {
		s.mail = mail
	}
	return s
}

// GetSnapshot returns the cached snapshot when fresh, collecting from all
// four sources in parallel otherwise. The second return value lists the
// per-source collection results of the generation that produced the
// snapshot; cache hits return nil results.
func (s *Service) GetSnapshot(ctx context.Context, opts GetOptions) (*SystemSnapshot, []CollectionResult) {
	s.mu.Lock()
	if !opts.BypassCache && s.cached != nil && time.Since(s.fetchedAt) < s.cfg.CacheTTL {
		snap := s.cached
		s.hits++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.SnapshotCacheCounter.WithLabelValues("hit").Inc()
		}
		return snap, nil
	}
	s.misses++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SnapshotCacheCounter.WithLabelValues("miss").Inc()
	}

	snap, results := s.collect(ctx)

	s.mu.Lock()
	s.cached = snap
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	s.hub.Publish(events.SnapshotChannel(), events.EventSnapshotPublished, map[string]any{
		"status":      snap.Summary.Status,
		"generatedAt": snap.Meta.GeneratedAt,
		"durationMs":  snap.Meta.GenerationDurationMs,
	}, nil)
	return snap, results
}

// collect runs all four sources in parallel, each under its own deadline.
// A failed source contributes its empty fallback; collection never fails
// as a whole.
func (s *Service) collect(ctx context.Context) (*SystemSnapshot, []CollectionResult) {
	start := time.Now()
	snap := &SystemSnapshot{}
	results := make([]CollectionResult, 4)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap.NTM, results[0] = collectSource(gctx, s, SourceNTM, s.ntm.Fetch, emptyNTM)
		return nil
	})
	g.Go(func() error {
		snap.Beads, results[1] = collectSource(gctx, s, SourceBeads, s.beads.Fetch, emptyBeads)
		return nil
	})
	g.Go(func() error {
		snap.Tools, results[2] = collectSource(gctx, s, SourceTools, s.tools.Fetch, emptyTools)
		return nil
	})
	g.Go(func() error {
		snap.AgentMail, results[3] = collectSource(gctx, s, SourceAgentMail, s.mail.Fetch, emptyAgentMail)
		return nil
	})
	_ = g.Wait()

	snap.Summary = s.summarize(snap, results)
	snap.Meta = Meta{
		SchemaVersion:        SchemaVersion,
		GeneratedAt:          time.Now(),
		GenerationDurationMs: time.Since(start).Milliseconds(),
	}
	return snap, results
}

// collectSource runs one fetch under the per-source deadline and folds a
// failure into the source's empty fallback shape.
func collectSource[T any](ctx context.Context, s *Service, source Source, fetch func(context.Context) (T, error), empty func(time.Time) T) (T, CollectionResult) {
	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.CollectionTimeout)
	value, err := fetch(fetchCtx)
	cancel()

	result := CollectionResult{Source: source, Success: err == nil, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		result.Error = err.Error()
		value = empty(time.Now())
		s.logger.Warn(ctx, "snapshot source failed",
			"source", string(source), "error", err, "latency_ms", result.LatencyMs)
	}

	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.metrics.CollectionCounter.WithLabelValues(string(source), outcome).Inc()
		s.metrics.CollectionDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())
	}
	return value, result
}

// summarize derives component statuses and folds them into the summary.
func (s *Service) summarize(snap *SystemSnapshot, results []CollectionResult) HealthSummary {
	bySource := map[Source]CollectionResult{}
	for _, r := range results {
		bySource[r.Source] = r
	}

	components := map[Source]Status{
		SourceNTM:       StatusUnknown,
		SourceBeads:     StatusUnknown,
		SourceTools:     StatusUnknown,
		SourceAgentMail: StatusUnknown,
	}

	if bySource[SourceNTM].Success {
		if snap.NTM.Available {
			components[SourceNTM] = StatusHealthy
		} else {
			components[SourceNTM] = StatusUnhealthy
		}
	}
	if bySource[SourceBeads].Success {
		if snap.Beads.BRAvailable || snap.Beads.BVAvailable {
			components[SourceBeads] = StatusHealthy
		} else {
			components[SourceBeads] = StatusUnhealthy
		}
	}
	if bySource[SourceTools].Success && snap.Tools.Status != "" {
		components[SourceTools] = snap.Tools.Status
	}
	if bySource[SourceAgentMail].Success {
		switch {
		case snap.AgentMail.Available && snap.AgentMail.Status != "":
			components[SourceAgentMail] = snap.AgentMail.Status
		case !snap.AgentMail.Available:
			components[SourceAgentMail] = StatusUnhealthy
		}
	}

	summary := HealthSummary{Components: components, Issues: []string{}}
	for _, r := range results {
		if !r.Success {
			summary.Issues = append(summary.Issues, fmt.Sprintf("%s: %s", r.Source, r.Error))
		}
	}
	summary.Status = FoldStatuses([]Status{
		components[SourceNTM], components[SourceBeads],
		components[SourceTools], components[SourceAgentMail],
	})
	return summary
}

// ClearCache drops the cached snapshot.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// GetCacheStats reports cache state and hit counters.
func (s *Service) GetCacheStats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := CacheStats{Cached: s.cached != nil, Hits: s.hits, Misses: s.misses}
	if s.cached != nil {
		stats.FetchedAt = s.fetchedAt
		stats.AgeMs = time.Since(s.fetchedAt).Milliseconds()
	}
	return stats
}
