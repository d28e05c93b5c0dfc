package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/opsgate/internal/events"
	"github.com/haasonsaas/opsgate/internal/observability"
)

// Environment variables controlling manifest resolution and cache TTL.
const (
	EnvManifestPath    = "ACFS_MANIFEST_PATH"
	EnvManifestPathAlt = "TOOL_REGISTRY_PATH"
	EnvManifestTTL     = "ACFS_MANIFEST_TTL_MS"
	EnvManifestTTLAlt  = "TOOL_REGISTRY_TTL_MS"
)

// DefaultManifestName is the manifest filename relative to the project root.
const DefaultManifestName = "acfs.manifest.yaml"

// DefaultCacheTTL is the registry cache lifetime when no override is set.
const DefaultCacheTTL = 60 * time.Second

// Config configures the registry service.
type Config struct {
	// ManifestPath overrides manifest resolution when non-empty.
	ManifestPath string

	// ProjectRoot anchors the default manifest path and relative overrides.
	// Defaults to the working directory.
	ProjectRoot string

	// CacheTTL is how long a loaded registry stays fresh. Environment
	// overrides (ACFS_MANIFEST_TTL_MS, TOOL_REGISTRY_TTL_MS) win over this.
	CacheTTL time.Duration
}

// DefaultConfig returns the registry defaults.
func DefaultConfig() Config {
	return Config{CacheTTL: DefaultCacheTTL}
}

// LoadOptions tune a single Load call.
type LoadOptions struct {
	// BypassCache skips the cache read but still refreshes the cache with
	// the load result.
	BypassCache bool

	// ThrowOnError returns a *LoadError instead of substituting the
	// fallback registry.
	ThrowOnError bool
}

// Registry is the loaded, immutable view of the tool catalog plus its
// provenance metadata.
type Registry struct {
	Manifest *Manifest
	Meta     Metadata
}

type cacheEntry struct {
	registry *Registry
	loadedAt time.Time
}

// Service loads, validates, and caches the tool manifest. Safe for
// concurrent use; the cache is keyed by resolved manifest path.
type Service struct {
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics
	bus     events.Publisher

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewService creates a registry service. Logger is required; metrics and bus
// may be nil (a nil bus becomes a NopPublisher).
func NewService(cfg Config, logger *observability.Logger, metrics *observability.Metrics, bus events.Publisher) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if bus == nil {
		bus = events.NopPublisher{}
	}
	return &Service{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		bus:     bus,
		cache:   map[string]cacheEntry{},
	}
}

// ResolvePath resolves the manifest path: explicit override, then
// ACFS_MANIFEST_PATH, then TOOL_REGISTRY_PATH, then the default manifest
// name relative to the project root.
func (s *Service) ResolvePath(override string) string {
	candidate := override
	if candidate == "" {
		candidate = os.Getenv(EnvManifestPath)
	}
	if candidate == "" {
		candidate = os.Getenv(EnvManifestPathAlt)
	}
	if candidate == "" {
		candidate = DefaultManifestName
	}
	if filepath.IsAbs(candidate) {
		return candidate
	}
	root := s.cfg.ProjectRoot
	if root == "" {
		root = "."
	}
	return filepath.Join(root, candidate)
}

// cacheTTL resolves the effective TTL, honoring env overrides in ms.
func (s *Service) cacheTTL() time.Duration {
	for _, key := range []string{EnvManifestTTL, EnvManifestTTLAlt} {
		if raw := os.Getenv(key); raw != "" {
			if ms, err := strconv.Atoi(raw); err == nil && ms >= 0 {
				return time.Duration(ms) * time.Millisecond
			}
		}
	}
	return s.cfg.CacheTTL
}

// Load returns the registry for the resolved manifest path, from cache when
// fresh. On any load failure the fallback registry substitutes (and is
// cached with its error category) unless opts.ThrowOnError is set.
func (s *Service) Load(ctx context.Context, opts LoadOptions) (*Registry, error) {
	path := s.ResolvePath(s.cfg.ManifestPath)
	ttl := s.cacheTTL()

	if !opts.BypassCache {
		s.mu.Lock()
		if entry, ok := s.cache[path]; ok && time.Since(entry.loadedAt) < ttl {
			s.mu.Unlock()
			return entry.registry, nil
		}
		s.mu.Unlock()
	}

	reg, loadErr := s.loadFromDisk(ctx, path)
	if loadErr != nil {
		if opts.ThrowOnError {
			return nil, loadErr
		}
		reg = s.fallback(ctx, path, loadErr)
	}

	if s.metrics != nil {
		s.metrics.RegistryLoadCounter.WithLabelValues(string(reg.Meta.RegistrySource), string(reg.Meta.ErrorCategory)).Inc()
	}
	s.bus.Publish(events.RegistryChannel(), events.EventRegistryLoaded, reg.Meta, nil)

	s.mu.Lock()
	s.cache[path] = cacheEntry{registry: reg, loadedAt: time.Now()}
	s.mu.Unlock()

	return reg, nil
}

// loadFromDisk reads, parses, and validates the manifest, mapping each
// failure mode to its error category.
func (s *Service) loadFromDisk(ctx context.Context, path string) (*Registry, *LoadError) {
	raw, err := os.ReadFile(path)
	if err != nil {
		category := ErrManifestRead
		if errors.Is(err, fs.ErrNotExist) {
			category = ErrManifestMissing
		}
		return nil, &LoadError{Category: category, Path: path, Err: err}
	}

	var manifest Manifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, &LoadError{Category: ErrManifestParse, Path: path, Err: err}
	}

	if issues := manifest.Validate(); len(issues) > 0 {
		s.logger.Warn(ctx, "manifest failed validation", "path", path, "issues", len(issues))
		return nil, &LoadError{Category: ErrManifestValidation, Path: path, Issues: issues}
	}

	hash := sha256.Sum256(raw)
	s.logger.Debug(ctx, "manifest loaded", "path", path, "tools", len(manifest.Tools))

	return &Registry{
		Manifest: &manifest,
		Meta: Metadata{
			ManifestPath:   path,
			ManifestHash:   hex.EncodeToString(hash[:]),
			SchemaVersion:  manifest.SchemaVersion,
			Source:         manifest.Source,
			GeneratedAt:    manifest.GeneratedAt,
			LoadedAt:       time.Now(),
			RegistrySource: SourceManifest,
		},
	}, nil
}

// fallback builds the substitute registry carrying the failure category.
func (s *Service) fallback(ctx context.Context, path string, loadErr *LoadError) *Registry {
	s.logger.Warn(ctx, "substituting fallback registry",
		"path", path, "category", string(loadErr.Category))

	issues := make([]string, 0, len(loadErr.Issues))
	for _, issue := range loadErr.Issues {
		issues = append(issues, issue.String())
	}

	manifest := FallbackRegistry()
	return &Registry{
		Manifest: manifest,
		Meta: Metadata{
			ManifestPath:   path,
			SchemaVersion:  manifest.SchemaVersion,
			Source:         manifest.Source,
			LoadedAt:       time.Now(),
			RegistrySource: SourceFallback,
			ErrorCategory:  loadErr.Category,
			UserMessage:    UserMessage(loadErr.Category),
			Issues:         issues,
		},
	}
}

// ClearCache drops every cached registry and publishes an invalidation
// event so subscribers re-query.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.cache = map[string]cacheEntry{}
	s.mu.Unlock()
	s.bus.Publish(events.RegistryChannel(), events.EventRegistryInvalidated, nil, nil)
}

// ListAll returns every tool in registry order.
func (r *Registry) ListAll() []ToolDefinition {
	out := make([]ToolDefinition, len(r.Manifest.Tools))
	copy(out, r.Manifest.Tools)
	return out
}

// ListAgents returns the agent-category tools in registry order.
func (r *Registry) ListAgents() []ToolDefinition {
	return r.listCategory(CategoryAgent)
}

// ListSetup returns the tool-category (setup) tools in registry order.
func (r *Registry) ListSetup() []ToolDefinition {
	return r.listCategory(CategoryTool)
}

func (r *Registry) listCategory(cat ToolCategory) []ToolDefinition {
	var out []ToolDefinition
	for _, t := range r.Manifest.Tools {
		if t.Category == cat {
			out = append(out, t)
		}
	}
	return out
}

// Get returns the tool with the given ID.
func (r *Registry) Get(id string) (*ToolDefinition, bool) {
	for i := range r.Manifest.Tools {
		if r.Manifest.Tools[i].ID == id {
			t := r.Manifest.Tools[i]
			return &t, true
		}
	}
	return nil, false
}

// GetRequired returns the required tools in registry order.
func (r *Registry) GetRequired() []ToolDefinition {
	return r.filter(IsRequired)
}

// GetRecommended returns the recommended tools in registry order.
func (r *Registry) GetRecommended() []ToolDefinition {
	return r.filter(IsRecommended)
}

// GetOptional returns the optional tools in registry order.
func (r *Registry) GetOptional() []ToolDefinition {
	return r.filter(IsOptional)
}

func (r *Registry) filter(pred func(*ToolDefinition) bool) []ToolDefinition {
	var out []ToolDefinition
	for _, t := range r.Manifest.Tools {
		if pred(&t) {
			out = append(out, t)
		}
	}
	return out
}

// CategorizeTools groups the catalog into requirement buckets.
func (r *Registry) CategorizeTools() Categorized {
	return CategorizeAll(r.Manifest.Tools)
}

// PhaseGroup is the ordered set of tools sharing one install phase.
type PhaseGroup struct {
	Phase int              `json:"phase"`
	Tools []ToolDefinition `json:"tools"`
}

// ToolsByPhase groups tools by phase (default bucket 999), phases ascending.
// Ties within a phase keep registry order.
func (r *Registry) ToolsByPhase() []PhaseGroup {
	buckets := map[int][]ToolDefinition{}
	for _, t := range r.Manifest.Tools {
		phase := t.EffectivePhase()
		buckets[phase] = append(buckets[phase], t)
	}

	phases := make([]int, 0, len(buckets))
	for phase := range buckets {
		phases = append(phases, phase)
	}
	sort.Ints(phases)

	out := make([]PhaseGroup, 0, len(phases))
	for _, phase := range phases {
		out = append(out, PhaseGroup{Phase: phase, Tools: buckets[phase]})
	}
	return out
}
