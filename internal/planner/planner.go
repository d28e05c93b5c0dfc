// Package planner turns the tool registry plus detection results into an
// install plan: per-tool status, remediation steps, an executable install
// script for missing required tools, and an overall readiness verdict.
package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/opsgate/internal/probe"
	"github.com/haasonsaas/opsgate/internal/registry"
)

// EntryStatus is the per-tool plan outcome.
type EntryStatus string

const (
	StatusInstalled       EntryStatus = "installed"
	StatusMissing         EntryStatus = "missing"
	StatusOptionalMissing EntryStatus = "optional_missing"
	StatusError           EntryStatus = "error"
)

// Detection is the planner's view of one probed CLI. Err marks tools that
// were found but failed their probe, as opposed to being absent.
type Detection struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Err       string `json:"error,omitempty"`
}

// FromDetected converts probe results into planner detections. Tools the
// probe could not find at all stay "absent"; tools that were present but
// broken carry the classification label as an error.
func FromDetected(detected []probe.DetectedCLI) []Detection {
	out := make([]Detection, 0, len(detected))
	for _, d := range detected {
		det := Detection{Name: d.Name, Available: d.Available, Version: d.Version}
		if !d.Available {
			switch d.UnavailabilityReason {
			case probe.ReasonNotInstalled, probe.ReasonNotInPath, "":
				// absent, not errored
			default:
				det.Err = d.UnavailabilityReason.Label()
			}
		}
		out = append(out, det)
	}
	return out
}

// Definitions builds probe definitions for every registry tool, split into
// agent and setup-tool groups for DetectAll.
func Definitions(tools []registry.ToolDefinition) (agents, setup []probe.CLIDefinition) {
	for _, t := range tools {
		var verify []string
		var minVersion string
		if t.Verify != nil {
			verify = t.Verify.Command
			minVersion = t.Verify.MinVersion
		}
		def := probe.FromToolDefinition(t.Name, verify, minVersion, probe.Capabilities{})
		if t.Category == registry.CategoryAgent {
			agents = append(agents, def)
		} else {
			setup = append(setup, def)
		}
	}
	return agents, setup
}

// ToolPlanEntry is one row of the install plan.
type ToolPlanEntry struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	DisplayName    string      `json:"displayName"`
	Phase          int         `json:"phase"`
	Status         EntryStatus `json:"status"`
	Required       bool        `json:"required"`
	InstallCommand string      `json:"installCommand,omitempty"`
	DocsURL        string      `json:"docsUrl,omitempty"`
	Remediation    []string    `json:"remediation"`
	Version        string      `json:"version,omitempty"`
}

// Plan is the full install plan.
type Plan struct {
	Entries         []ToolPlanEntry `json:"entries"`
	Installed       int             `json:"installed"`
	MissingRequired int             `json:"missingRequired"`
	MissingOptional int             `json:"missingOptional"`
	Ready           bool            `json:"ready"`
	InstallScript   []string        `json:"installScript"`
	ComputedAt      time.Time       `json:"computedAt"`
}

// Readiness is the condensed readiness verdict derived from a plan.
type Readiness struct {
	Ready           bool      `json:"ready"`
	MissingRequired []string  `json:"missingRequired"`
	MissingOptional []string  `json:"missingOptional"`
	Recommendations []string  `json:"recommendations"`
	CheckedAt       time.Time `json:"checkedAt"`
}

// InstallCommand resolves the preferred install invocation for a tool:
// the verified installer first, then the first plain install spec.
func InstallCommand(t *registry.ToolDefinition) string {
	if vi := t.VerifiedInstall; vi != nil && vi.Runner != "" {
		return strings.TrimSpace(vi.Runner + " " + strings.Join(vi.Args, " "))
	}
	if len(t.Install) > 0 && t.Install[0].Command != "" {
		spec := t.Install[0]
		return strings.TrimSpace(spec.Command + " " + strings.Join(spec.Args, " "))
	}
	return ""
}

// manualURL is the fallback download location shown when a one-line install
// command is not enough.
func manualURL(t *registry.ToolDefinition) string {
	if vi := t.VerifiedInstall; vi != nil && vi.FallbackURL != "" {
		return vi.FallbackURL
	}
	if len(t.Install) > 0 {
		return t.Install[0].URL
	}
	return ""
}

// Remediation builds the ordered remediation steps for a tool. Empty steps
// are dropped; a tool with no actionable steps gets a single pointer at its
// documentation.
func Remediation(t *registry.ToolDefinition) []string {
	var steps []string
	if cmd := InstallCommand(t); cmd != "" {
		steps = append(steps, "Install: `"+cmd+"`")
	}
	if url := manualURL(t); url != "" {
		steps = append(steps, "Manual: "+url)
	}
	if t.DocsURL != "" {
		steps = append(steps, "Docs: "+t.DocsURL)
	}
	if t.Verify != nil && len(t.Verify.Command) > 0 {
		steps = append(steps, "Verify: `"+strings.Join(t.Verify.Command, " ")+"`")
	}
	if len(t.Install) > 0 {
		if t.Install[0].RequiresSudo {
			steps = append(steps, "requires sudo")
		}
		if t.Install[0].Mode == "interactive" {
			steps = append(steps, "interactive install (may need tmux)")
		}
	}
	if len(steps) == 0 {
		steps = append(steps, "See the documentation for "+t.EffectiveDisplayName()+" for install instructions")
	}
	return steps
}

// Build computes the install plan for the given tools and detections.
// Entries are sorted by phase ascending with registry order as tie-break.
func Build(tools []registry.ToolDefinition, detected []Detection) *Plan {
	byName := make(map[string]Detection, len(detected))
	for _, d := range detected {
		byName[d.Name] = d
	}

	ordered := make([]int, len(tools))
	for i := range ordered {
		ordered[i] = i
	}
	sort.SliceStable(ordered, func(a, b int) bool {
		return tools[ordered[a]].EffectivePhase() < tools[ordered[b]].EffectivePhase()
	})

	plan := &Plan{
		Entries:       make([]ToolPlanEntry, 0, len(tools)),
		InstallScript: []string{},
		ComputedAt:    time.Now(),
	}

	for _, idx := range ordered {
		t := &tools[idx]
		required := registry.IsRequired(t)

		entry := ToolPlanEntry{
			ID:          t.ID,
			Name:        t.Name,
			DisplayName: t.EffectiveDisplayName(),
			Phase:       t.EffectivePhase(),
			Required:    required,
			DocsURL:     t.DocsURL,
			Remediation: Remediation(t),
		}

		det, probed := byName[t.Name]
		switch {
		case probed && det.Available:
			entry.Status = StatusInstalled
			entry.Version = det.Version
			plan.Installed++
		case probed && det.Err != "":
			entry.Status = StatusError
			if required {
				plan.MissingRequired++
			}
		case required:
			entry.Status = StatusMissing
			plan.MissingRequired++
		default:
			entry.Status = StatusOptionalMissing
			plan.MissingOptional++
		}

		if entry.Status != StatusInstalled {
			entry.InstallCommand = InstallCommand(t)
		}
		if entry.Status == StatusMissing && entry.InstallCommand != "" {
			plan.InstallScript = append(plan.InstallScript,
				fmt.Sprintf("# %s (phase %d)", entry.DisplayName, entry.Phase),
				entry.InstallCommand)
		}

		plan.Entries = append(plan.Entries, entry)
	}

	plan.Ready = plan.MissingRequired == 0
	return plan
}

// FormatInstallScript renders the plan's install script as an executable
// bash script. With nothing to install it emits a single success comment.
func FormatInstallScript(plan *Plan) string {
	if len(plan.InstallScript) == 0 {
		return "# All required tools are already installed.\n"
	}

	var b strings.Builder
	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString("set -euo pipefail\n\n")
	for _, line := range plan.InstallScript {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\necho \"Tool installation complete.\"\n")
	return b.String()
}

// CheckReadiness condenses a plan into the readiness verdict served by the
// gateway. Missing tool names are listed in plan (phase) order.
func CheckReadiness(plan *Plan) *Readiness {
	r := &Readiness{
		Ready:           plan.Ready,
		MissingRequired: []string{},
		MissingOptional: []string{},
		CheckedAt:       time.Now(),
	}
	for _, e := range plan.Entries {
		switch e.Status {
		case StatusMissing:
			r.MissingRequired = append(r.MissingRequired, e.Name)
		case StatusError:
			if e.Required {
				r.MissingRequired = append(r.MissingRequired, e.Name)
			}
		case StatusOptionalMissing:
			r.MissingOptional = append(r.MissingOptional, e.Name)
		}
	}

	if len(r.MissingRequired) > 0 {
		r.Recommendations = append(r.Recommendations,
			"Install required tools: "+strings.Join(r.MissingRequired, ", "))
	}
	if len(r.MissingOptional) > 0 {
		r.Recommendations = append(r.Recommendations,
			"Optional tools not installed: "+strings.Join(r.MissingOptional, ", "))
	}
	return r
}
