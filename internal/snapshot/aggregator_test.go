package snapshot

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/opsgate/internal/observability"
)

type fakeNTM struct {
	snap NTMSnapshot
	err  error
}

func (f fakeNTM) Fetch(context.Context) (NTMSnapshot, error) { return f.snap, f.err }

type fakeBeads struct {
	snap BeadsSnapshot
	err  error
}

func (f fakeBeads) Fetch(context.Context) (BeadsSnapshot, error) { return f.snap, f.err }

type fakeTools struct {
	snap  ToolHealthSnapshot
	err   error
	calls int
}

func (f *fakeTools) Fetch(context.Context) (ToolHealthSnapshot, error) {
	f.calls++
	return f.snap, f.err
}

type fakeMail struct {
	snap AgentMailSnapshot
	err  error
}

func (f fakeMail) Fetch(context.Context) (AgentMailSnapshot, error) { return f.snap, f.err }

func testService(ntm NTMClient, beads BeadsClient, tools ToolHealthClient, mail MailReader) *Service {
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	return NewService(DefaultConfig(), logger, nil, nil).WithCollectors(ntm, beads, tools, mail)
}

func healthyCollectors() (NTMClient, BeadsClient, *fakeTools, MailReader) {
	return fakeNTM{snap: NTMSnapshot{Available: true, Sessions: []NTMSession{{Name: "main"}}}},
		fakeBeads{snap: BeadsSnapshot{Available: true, BRAvailable: true, BVAvailable: true}},
		&fakeTools{snap: ToolHealthSnapshot{Available: true, Status: StatusHealthy}},
		fakeMail{snap: AgentMailSnapshot{Available: true, Status: StatusHealthy, Agents: []MailAgent{{Name: "gopher"}}}}
}

func TestGetSnapshotAllHealthy(t *testing.T) {
	ntm, beads, tools, mail := healthyCollectors()
	svc := testService(ntm, beads, tools, mail)

	snap, results := svc.GetSnapshot(context.Background(), GetOptions{})

	assert.Equal(t, StatusHealthy, snap.Summary.Status)
	assert.Empty(t, snap.Summary.Issues)
	assert.Equal(t, SchemaVersion, snap.Meta.SchemaVersion)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.Success, string(r.Source))
	}
}

func TestGetSnapshotPartialFailure(t *testing.T) {
	timeout := errors.New("context deadline exceeded")
	svc := testService(
		fakeNTM{err: timeout},
		fakeBeads{err: timeout},
		&fakeTools{snap: ToolHealthSnapshot{Available: true, Status: StatusDegraded,
			Tools: []WorkflowTool{{Name: "dcg", Installed: true}}}},
		fakeMail{err: timeout},
	)

	snap, results := svc.GetSnapshot(context.Background(), GetOptions{})

	assert.Equal(t, StatusDegraded, snap.Summary.Status)
	assert.Len(t, snap.Summary.Issues, 3)

	// Failed sources carry their empty fallback shapes.
	assert.False(t, snap.NTM.Available)
	assert.NotNil(t, snap.NTM.Sessions)
	assert.False(t, snap.Beads.Available)
	assert.False(t, snap.AgentMail.Available)

	// The surviving source is fully populated.
	assert.True(t, snap.Tools.Available)
	require.Len(t, snap.Tools.Tools, 1)

	failures := 0
	for _, r := range results {
		if !r.Success {
			failures++
			assert.NotEmpty(t, r.Error)
		}
	}
	assert.Equal(t, 3, failures)
}

func TestGetSnapshotUnavailableSourcesAreUnhealthy(t *testing.T) {
	svc := testService(
		fakeNTM{snap: NTMSnapshot{Available: false, Sessions: []NTMSession{}}},
		fakeBeads{snap: BeadsSnapshot{}},
		&fakeTools{snap: ToolHealthSnapshot{Available: true, Status: StatusHealthy}},
		fakeMail{snap: AgentMailSnapshot{Available: false, Status: StatusUnknown}},
	)

	snap, _ := svc.GetSnapshot(context.Background(), GetOptions{})

	assert.Equal(t, StatusUnhealthy, snap.Summary.Status)
	assert.Equal(t, StatusUnhealthy, snap.Summary.Components[SourceNTM])
	assert.Equal(t, StatusUnhealthy, snap.Summary.Components[SourceBeads])
	assert.Equal(t, StatusUnhealthy, snap.Summary.Components[SourceAgentMail])
}

func TestGetSnapshotCache(t *testing.T) {
	ntm, beads, tools, mail := healthyCollectors()
	svc := testService(ntm, beads, tools, mail)

	first, _ := svc.GetSnapshot(context.Background(), GetOptions{})
	second, results := svc.GetSnapshot(context.Background(), GetOptions{})

	assert.Same(t, first, second)
	assert.Nil(t, results)
	assert.Equal(t, 1, tools.calls)

	stats := svc.GetCacheStats()
	assert.True(t, stats.Cached)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestGetSnapshotBypassCache(t *testing.T) {
	ntm, beads, tools, mail := healthyCollectors()
	svc := testService(ntm, beads, tools, mail)

	svc.GetSnapshot(context.Background(), GetOptions{})
	svc.GetSnapshot(context.Background(), GetOptions{BypassCache: true})
	assert.Equal(t, 2, tools.calls)
}

func TestClearCache(t *testing.T) {
	ntm, beads, tools, mail := healthyCollectors()
	svc := testService(ntm, beads, tools, mail)

	svc.GetSnapshot(context.Background(), GetOptions{})
	svc.ClearCache()
	assert.False(t, svc.GetCacheStats().Cached)

	svc.GetSnapshot(context.Background(), GetOptions{})
	assert.Equal(t, 2, tools.calls)
}

func TestGetSnapshotGenerationMeta(t *testing.T) {
	ntm, beads, tools, mail := healthyCollectors()
	svc := testService(ntm, beads, tools, mail)

	before := time.Now()
	snap, _ := svc.GetSnapshot(context.Background(), GetOptions{})

	assert.False(t, snap.Meta.GeneratedAt.Before(before))
	assert.GreaterOrEqual(t, snap.Meta.GenerationDurationMs, int64(0))
}

func TestFoldStatuses(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"one unknown", []Status{StatusHealthy, StatusUnknown}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
		{"empty", nil, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldStatuses(tt.statuses))
		})
	}
}
