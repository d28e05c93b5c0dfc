package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/opsgate/internal/planner"
	"github.com/haasonsaas/opsgate/internal/registry"
)

func doctorFixture() []registry.ToolDefinition {
	return []registry.ToolDefinition{
		{
			ID: "tools.dcg", Name: "dcg", Category: registry.CategoryTool,
			Tags:    []string{"critical"},
			Install: []registry.InstallSpec{{Command: "cargo", Args: []string{"install", "dcg"}}},
		},
		{
			ID: "tools.slb", Name: "slb", Category: registry.CategoryTool,
			Tags: []string{"critical"},
		},
	}
}

func TestDoctorReportListsRemediationPerEntry(t *testing.T) {
	detected := []planner.Detection{{Name: "slb", Available: true, Version: "1.2.0"}}
	plan := planner.Build(doctorFixture(), detected)
	readiness := planner.CheckReadiness(plan)
	require.False(t, readiness.Ready)

	var buf bytes.Buffer
	printDoctorReport(&buf, plan, readiness)

	out := buf.String()
	assert.Contains(t, out, "Fleet is NOT ready.")
	assert.Contains(t, out, "dcg (missing):")
	assert.Contains(t, out, "cargo install dcg")
	// Installed tools carry no remediation section.
	assert.NotContains(t, out, "slb (")
}

func TestDoctorReportReadyFleet(t *testing.T) {
	detected := []planner.Detection{
		{Name: "dcg", Available: true, Version: "0.4.0"},
		{Name: "slb", Available: true, Version: "1.2.0"},
	}
	plan := planner.Build(doctorFixture(), detected)
	readiness := planner.CheckReadiness(plan)
	require.True(t, readiness.Ready)

	var buf bytes.Buffer
	printDoctorReport(&buf, plan, readiness)
	assert.Contains(t, buf.String(), "Fleet is ready: all required tools are installed.")
}
