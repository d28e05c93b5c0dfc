package diagnostics

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/opsgate/internal/observability"
	"github.com/haasonsaas/opsgate/internal/probe"
	"github.com/haasonsaas/opsgate/internal/registry"
)

func testEngine() *Engine {
	return NewEngine(observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard}))
}

func tool(id, name string, depends ...string) registry.ToolDefinition {
	return registry.ToolDefinition{ID: id, Name: name, Category: registry.CategoryTool, Depends: depends}
}

func up(name string) probe.DetectedCLI {
	return probe.DetectedCLI{Name: name, Available: true}
}

func down(name string, reason probe.UnavailabilityReason) probe.DetectedCLI {
	return probe.DetectedCLI{Name: name, Available: false, UnavailabilityReason: reason}
}

func TestAnalyzeAllAvailable(t *testing.T) {
	report := testEngine().Analyze(context.Background(),
		[]registry.ToolDefinition{tool("tools.tmux", "tmux"), tool("tools.ntm", "ntm", "tools.tmux")},
		[]probe.DetectedCLI{up("tmux"), up("ntm")},
	)

	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 2, report.Summary.Available)
	assert.Empty(t, report.CascadeFailures)
	for _, h := range report.Tools {
		assert.True(t, h.Available, h.ID)
		assert.Empty(t, h.RootCausePath)
	}
}

func TestAnalyzeCascadeFailure(t *testing.T) {
	report := testEngine().Analyze(context.Background(),
		[]registry.ToolDefinition{tool("tools.tmux", "tmux"), tool("tools.ntm", "ntm", "tools.tmux")},
		[]probe.DetectedCLI{
			down("tmux", probe.ReasonNotInstalled),
			down("ntm", probe.ReasonSpawnFailed),
		},
	)

	require.Len(t, report.CascadeFailures, 1)
	cascade := report.CascadeFailures[0]
	assert.Equal(t, "tools.ntm", cascade.AffectedTool)
	assert.Equal(t, "tools.tmux", cascade.RootCause)
	assert.Equal(t, []string{"tools.tmux", "tools.ntm"}, cascade.Path)

	var ntm ToolHealth
	for _, h := range report.Tools {
		if h.ID == "tools.ntm" {
			ntm = h
		}
	}
	assert.True(t, ntm.IsCascadeFailure)
	assert.Contains(t, ntm.RootCauseExplanation, "tmux")
	assert.Equal(t, []string{"tools.tmux", "tools.ntm"}, ntm.RootCausePath)
}

func TestAnalyzeIndependentFailureIsNotCascade(t *testing.T) {
	report := testEngine().Analyze(context.Background(),
		[]registry.ToolDefinition{tool("tools.tmux", "tmux"), tool("tools.ntm", "ntm", "tools.tmux")},
		[]probe.DetectedCLI{up("tmux"), down("ntm", probe.ReasonAuthRequired)},
	)

	assert.Empty(t, report.CascadeFailures)
	var ntm ToolHealth
	for _, h := range report.Tools {
		if h.ID == "tools.ntm" {
			ntm = h
		}
	}
	assert.False(t, ntm.IsCascadeFailure)
	assert.Equal(t, []string{"tools.ntm"}, ntm.RootCausePath)
	assert.Equal(t, probe.ReasonAuthRequired, ntm.Reason)
	assert.Equal(t, probe.ReasonAuthRequired.Label(), ntm.ReasonLabel)
}

func TestAnalyzeDeepChain(t *testing.T) {
	report := testEngine().Analyze(context.Background(),
		[]registry.ToolDefinition{
			tool("a", "a"),
			tool("b", "b", "a"),
			tool("c", "c", "b"),
		},
		[]probe.DetectedCLI{
			down("a", probe.ReasonNotInstalled),
			down("b", probe.ReasonUnknown),
			down("c", probe.ReasonUnknown),
		},
	)

	var c ToolHealth
	for _, h := range report.Tools {
		if h.ID == "c" {
			c = h
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, c.RootCausePath)
	assert.Equal(t, []string{"a"}, report.Summary.RootCauses)
	assert.Equal(t, 2, report.Summary.Cascades)
}

func TestAnalyzeCycleTerminates(t *testing.T) {
	report := testEngine().Analyze(context.Background(),
		[]registry.ToolDefinition{
			tool("x", "x", "y"),
			tool("y", "y", "x"),
		},
		[]probe.DetectedCLI{
			down("x", probe.ReasonUnknown),
			down("y", probe.ReasonUnknown),
		},
	)

	// The visited guard stops the walk; each path stays finite and ends
	// with the queried tool.
	for _, h := range report.Tools {
		require.NotEmpty(t, h.RootCausePath)
		assert.LessOrEqual(t, len(h.RootCausePath), 2)
		assert.Equal(t, h.ID, h.RootCausePath[len(h.RootCausePath)-1])
	}
}

func TestAnalyzeMissingDetectionTreatedAsAvailable(t *testing.T) {
	report := testEngine().Analyze(context.Background(),
		[]registry.ToolDefinition{tool("tools.tmux", "tmux"), tool("tools.ntm", "ntm", "tools.tmux")},
		[]probe.DetectedCLI{down("ntm", probe.ReasonUnknown)},
	)

	// tmux was never probed, so it cannot be a root cause.
	assert.Empty(t, report.CascadeFailures)
	assert.Equal(t, []string{"tools.ntm"}, report.Summary.RootCauses)
}

func TestAnalyzeDependedByIndex(t *testing.T) {
	report := testEngine().Analyze(context.Background(),
		[]registry.ToolDefinition{
			tool("tools.tmux", "tmux"),
			tool("tools.ntm", "ntm", "tools.tmux"),
			tool("tools.dcg", "dcg", "tools.tmux"),
		},
		[]probe.DetectedCLI{up("tmux"), up("ntm"), up("dcg")},
	)

	var tmux ToolHealth
	for _, h := range report.Tools {
		if h.ID == "tools.tmux" {
			tmux = h
		}
	}
	assert.ElementsMatch(t, []string{"tools.ntm", "tools.dcg"}, tmux.DependedBy)
	assert.Empty(t, tmux.DependsOn)
}

func TestToolReport(t *testing.T) {
	eng := testEngine()
	tools := []registry.ToolDefinition{tool("tools.tmux", "tmux"), tool("tools.ntm", "ntm", "tools.tmux")}
	detected := []probe.DetectedCLI{down("tmux", probe.ReasonNotInstalled), down("ntm", probe.ReasonUnknown)}

	health, ok := eng.ToolReport(context.Background(), tools, detected, "tools.ntm")
	require.True(t, ok)
	assert.True(t, health.IsCascadeFailure)

	_, ok = eng.ToolReport(context.Background(), tools, detected, "tools.ghost")
	assert.False(t, ok)
}
