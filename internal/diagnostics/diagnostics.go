// Package diagnostics derives root-cause chains for unavailable tools by
// walking the declared dependency graph against live detection results. A
// tool that is down only because one of its dependencies is down is reported
// as a cascade failure pointing at the true root.
package diagnostics

import (
	"context"

	"github.com/haasonsaas/opsgate/internal/observability"
	"github.com/haasonsaas/opsgate/internal/probe"
	"github.com/haasonsaas/opsgate/internal/registry"
)

// ToolHealth is the per-tool diagnostic record.
type ToolHealth struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Available   bool   `json:"available"`

	// Reason and ReasonLabel carry the probe classification for unavailable
	// tools. Reason defaults to unknown when detection gave none.
	Reason      probe.UnavailabilityReason `json:"reason,omitempty"`
	ReasonLabel string                     `json:"reasonLabel,omitempty"`

	DependsOn  []string `json:"dependsOn"`
	DependedBy []string `json:"dependedBy"`

	// RootCausePath is ordered root-first and terminates with this tool.
	// Present only for unavailable tools.
	RootCausePath        []string `json:"rootCausePath,omitempty"`
	RootCauseExplanation string   `json:"rootCauseExplanation,omitempty"`
	IsCascadeFailure     bool     `json:"isCascadeFailure"`
}

// CascadeFailure names a tool whose unavailability is transitively caused by
// a deeper missing dependency.
type CascadeFailure struct {
	AffectedTool string   `json:"affectedTool"`
	RootCause    string   `json:"rootCause"`
	Path         []string `json:"path"`
}

// Summary aggregates a diagnostic run.
type Summary struct {
	Total       int      `json:"total"`
	Available   int      `json:"available"`
	Unavailable int      `json:"unavailable"`
	Cascades    int      `json:"cascades"`
	RootCauses  []string `json:"rootCauses"`
}

// Report is the full diagnostic output for one registry/detection pair.
type Report struct {
	Tools           []ToolHealth     `json:"tools"`
	CascadeFailures []CascadeFailure `json:"cascadeFailures"`
	Summary         Summary          `json:"summary"`
}

// Engine analyzes tool health. Stateless; safe for concurrent use.
type Engine struct {
	logger *observability.Logger
}

// NewEngine creates a diagnostics engine.
func NewEngine(logger *observability.Logger) *Engine {
	return &Engine{logger: logger}
}

// graph holds the indices built from one analysis input.
type graph struct {
	byID       map[string]*registry.ToolDefinition
	dependsOn  map[string][]string
	dependedBy map[string][]string
	available  map[string]bool
}

func buildGraph(tools []registry.ToolDefinition, detected []probe.DetectedCLI) *graph {
	g := &graph{
		byID:       make(map[string]*registry.ToolDefinition, len(tools)),
		dependsOn:  make(map[string][]string, len(tools)),
		dependedBy: make(map[string][]string, len(tools)),
		available:  make(map[string]bool, len(detected)*2),
	}

	for i := range tools {
		t := &tools[i]
		g.byID[t.ID] = t
		g.dependsOn[t.ID] = append([]string{}, t.Depends...)
		for _, dep := range t.Depends {
			g.dependedBy[dep] = append(g.dependedBy[dep], t.ID)
		}
	}

	// Detection results are keyed by executable name; index availability
	// under both the name and the matching tool id.
	byName := make(map[string]*registry.ToolDefinition, len(tools))
	for i := range tools {
		byName[tools[i].Name] = &tools[i]
	}
	for _, d := range detected {
		g.available[d.Name] = d.Available
		if t, ok := byName[d.Name]; ok {
			g.available[t.ID] = d.Available
		}
	}
	return g
}

// unavailable reports whether id is known and not available. Tools with no
// detection record are treated as available so they never become roots.
func (g *graph) unavailable(id string) bool {
	avail, ok := g.available[id]
	return ok && !avail
}

// rootPath walks from id through unavailable dependencies to the deepest
// unavailable ancestor. The visited set guards against cycles; on a cycle
// the walk stops at the current node. The returned path is root-first and
// ends with id.
func (g *graph) rootPath(id string) []string {
	visited := map[string]bool{}
	path := []string{}
	cur := id
	for !visited[cur] {
		visited[cur] = true
		path = append(path, cur)

		next := ""
		for _, dep := range g.dependsOn[cur] {
			if g.unavailable(dep) && !visited[dep] {
				next = dep
				break
			}
		}
		if next == "" {
			break
		}
		cur = next
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

func (g *graph) displayName(id string) string {
	if t, ok := g.byID[id]; ok {
		return t.EffectiveDisplayName()
	}
	return id
}

// Analyze produces a diagnostic report for the given tools and detections.
func (e *Engine) Analyze(ctx context.Context, tools []registry.ToolDefinition, detected []probe.DetectedCLI) *Report {
	g := buildGraph(tools, detected)

	reasonByName := make(map[string]probe.UnavailabilityReason, len(detected))
	for _, d := range detected {
		if !d.Available {
			reasonByName[d.Name] = d.UnavailabilityReason
		}
	}

	report := &Report{
		Tools:           make([]ToolHealth, 0, len(tools)),
		CascadeFailures: []CascadeFailure{},
	}
	seenRoots := map[string]bool{}

	for i := range tools {
		t := &tools[i]
		health := ToolHealth{
			ID:          t.ID,
			Name:        t.Name,
			DisplayName: t.EffectiveDisplayName(),
			Available:   !g.unavailable(t.ID) && !g.unavailable(t.Name),
			DependsOn:   g.dependsOn[t.ID],
			DependedBy:  g.dependedBy[t.ID],
		}
		if health.DependedBy == nil {
			health.DependedBy = []string{}
		}

		if !health.Available {
			reason := reasonByName[t.Name]
			if reason == "" {
				reason = probe.ReasonUnknown
			}
			health.Reason = reason
			health.ReasonLabel = reason.Label()

			path := g.rootPath(t.ID)
			health.RootCausePath = path
			root := path[0]
			if !seenRoots[root] {
				seenRoots[root] = true
				report.Summary.RootCauses = append(report.Summary.RootCauses, root)
			}

			if root != t.ID {
				health.IsCascadeFailure = true
				health.RootCauseExplanation = health.DisplayName +
					" is unavailable because " + g.displayName(root) + " is missing"
				report.CascadeFailures = append(report.CascadeFailures, CascadeFailure{
					AffectedTool: t.ID,
					RootCause:    root,
					Path:         path,
				})
			}
			report.Summary.Unavailable++
		} else {
			report.Summary.Available++
		}
		report.Summary.Total++
		report.Tools = append(report.Tools, health)
	}
	report.Summary.Cascades = len(report.CascadeFailures)

	if report.Summary.Unavailable > 0 {
		e.logger.Debug(ctx, "diagnostics computed",
			"unavailable", report.Summary.Unavailable,
			"cascades", report.Summary.Cascades)
	}
	return report
}

// ToolReport returns the diagnostic record for a single tool id, analyzing
// the same inputs as Analyze. The second return is false when id is unknown.
func (e *Engine) ToolReport(ctx context.Context, tools []registry.ToolDefinition, detected []probe.DetectedCLI, id string) (ToolHealth, bool) {
	report := e.Analyze(ctx, tools, detected)
	for _, h := range report.Tools {
		if h.ID == id {
			return h, true
		}
	}
	return ToolHealth{}, false
}
