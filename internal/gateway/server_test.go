package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/opsgate/internal/contexthealth"
	"github.com/haasonsaas/opsgate/internal/diagnostics"
	"github.com/haasonsaas/opsgate/internal/events"
	"github.com/haasonsaas/opsgate/internal/maintenance"
	"github.com/haasonsaas/opsgate/internal/observability"
	"github.com/haasonsaas/opsgate/internal/probe"
	"github.com/haasonsaas/opsgate/internal/registry"
	"github.com/haasonsaas/opsgate/internal/snapshot"
)

const testManifest = `schemaVersion: "1.0.0"
tools:
  - id: agents.claude
    name: claude
    category: agent
    tags: [critical]
    verify:
      command: [claude, --version]
  - id: tools.dcg
    name: dcg
    category: tool
    tags: [critical]
    phase: 1
    install:
      - command: cargo
        args: [install, dcg]
    verify:
      command: [dcg, --version]
  - id: tools.bv
    name: bv
    category: tool
    optional: true
    phase: 1
    verify:
      command: [bv, --version]
`

type versionRunner struct{}

func (versionRunner) Run(ctx context.Context, path string, args []string) (probe.RunResult, error) {
	return probe.RunResult{Stdout: "v1.2.3", ExitCode: 0}, nil
}

func lookPathFor(available ...string) probe.LookPath {
	set := map[string]bool{}
	for _, name := range available {
		set[name] = true
	}
	return func(name string) (string, error) {
		if set[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("executable file not found in $PATH")
	}
}

type fakeNTM struct{ snap snapshot.NTMSnapshot }

func (f fakeNTM) Fetch(context.Context) (snapshot.NTMSnapshot, error) { return f.snap, nil }

type fakeBeads struct{ snap snapshot.BeadsSnapshot }

func (f fakeBeads) Fetch(context.Context) (snapshot.BeadsSnapshot, error) { return f.snap, nil }

type fakeTools struct{ snap snapshot.ToolHealthSnapshot }

func (f fakeTools) Fetch(context.Context) (snapshot.ToolHealthSnapshot, error) { return f.snap, nil }

type fakeMail struct{ snap snapshot.AgentMailSnapshot }

func (f fakeMail) Fetch(context.Context) (snapshot.AgentMailSnapshot, error) { return f.snap, nil }

type testEnv struct {
	server *Server
	http   *httptest.Server
	hub    *events.Hub
}

// newTestEnv builds a server over fakes: a temp-dir manifest with claude,
// dcg, and bv; a prober that finds the given executables; and healthy
// snapshot collectors.
func newTestEnv(t *testing.T, availableTools ...string) *testEnv {
	t.Helper()

	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	hubCfg := events.DefaultHubConfig()
	hubCfg.Metrics = metrics
	hub := events.NewHub(hubCfg)
	t.Cleanup(hub.Close)

	manifestPath := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(testManifest), 0o644))

	reg := registry.NewService(registry.Config{ManifestPath: manifestPath}, logger, metrics, hub)
	prober := probe.NewProber(probe.DefaultConfig(), logger, metrics).
		WithRunner(versionRunner{}).
		WithLookPath(lookPathFor(availableTools...))
	diag := diagnostics.NewEngine(logger)

	snapCfg := snapshot.Config{CacheTTL: time.Minute}
	snaps := snapshot.NewService(snapCfg, logger, metrics, hub).WithCollectors(
		fakeNTM{snap: snapshot.NTMSnapshot{Available: true, Sessions: []snapshot.NTMSession{}}},
		fakeBeads{snap: snapshot.BeadsSnapshot{Available: true, BRAvailable: true}},
		fakeTools{snap: snapshot.ToolHealthSnapshot{Available: true, Status: snapshot.StatusHealthy, Tools: []snapshot.WorkflowTool{}}},
		fakeMail{snap: snapshot.AgentMailSnapshot{Available: true, Status: snapshot.StatusHealthy, Agents: []snapshot.MailAgent{{Name: "alice"}}}},
	)

	healthCfg := contexthealth.DefaultConfig()
	healthCfg.AutoHealing = false
	health := contexthealth.NewService(healthCfg, logger, metrics, hub)

	maint := maintenance.NewCoordinator(logger, metrics)

	srv := NewServer(DefaultConfig(), logger, metrics, Deps{
		Registry:  reg,
		Prober:    prober,
		Diag:      diag,
		Snapshots: snaps,
		Health:    health,
		Maint:     maint,
		Hub:       hub,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, http: ts, hub: hub}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	return resp, decodeBodyMap(t, resp)
}

func (e *testEnv) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(e.http.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp, decodeBodyMap(t, resp)
}

func decodeBodyMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) == 0 {
		return nil
	}
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")
	resp, body := env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestReadyzAllInstalled(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")
	resp, body := env.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	readiness := body["readiness"].(map[string]any)
	assert.Equal(t, true, readiness["ready"])
}

func TestReadyzMissingRequired(t *testing.T) {
	env := newTestEnv(t, "claude", "bv")
	resp, body := env.get(t, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	readiness := body["readiness"].(map[string]any)
	assert.Equal(t, false, readiness["ready"])
	missing := readiness["missingRequired"].([]any)
	assert.Contains(t, missing, "dcg")
}

func TestListTools(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")
	resp, body := env.get(t, "/api/tools")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	meta := body["meta"].(map[string]any)
	assert.Equal(t, "manifest", meta["registrySource"])
	assert.NotNil(t, body["categorized"])
	assert.NotNil(t, body["phases"])
}

func TestGetToolNotFound(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")
	resp, body := env.get(t, "/api/tools/tools.nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "unknown tool")
}

func TestGetToolUnavailableUsesReasonStatus(t *testing.T) {
	env := newTestEnv(t, "claude", "bv")
	resp, body := env.get(t, "/api/tools/tools.dcg")
	// not_installed maps to 424 Failed Dependency on the wire.
	assert.Equal(t, http.StatusFailedDependency, resp.StatusCode)

	health := body["health"].(map[string]any)
	assert.Equal(t, false, health["available"])
	assert.Equal(t, "not_installed", health["reason"])
}

func TestInstallPlanScriptFormat(t *testing.T) {
	env := newTestEnv(t, "claude", "bv")
	resp, err := http.Get(env.http.URL + "/api/tools/plan?format=script")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	script := string(data)
	assert.Contains(t, script, "#!/usr/bin/env bash")
	assert.Contains(t, script, "cargo install dcg")
}

func TestDiagnosticsReport(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")
	resp, body := env.get(t, "/api/tools/diagnostics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(3), summary["total"])
	assert.Equal(t, float64(3), summary["available"])
}

func TestSnapshotAndCacheStats(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")

	resp, body := env.get(t, "/api/snapshot")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	snap := body["snapshot"].(map[string]any)
	summary := snap["summary"].(map[string]any)
	assert.Equal(t, "healthy", summary["status"])
	// The first fetch is a miss and carries collection results.
	assert.NotNil(t, body["collection"])

	// Second fetch is served from cache without collection results.
	_, body = env.get(t, "/api/snapshot")
	assert.Nil(t, body["collection"])

	resp, stats := env.get(t, "/api/snapshot/cache")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, stats["cached"])
	assert.Equal(t, float64(1), stats["hits"])
	assert.Equal(t, float64(1), stats["misses"])
}

func TestContextSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")

	resp, state := env.post(t, "/api/context/sess-1", map[string]any{"maxTokens": 1000})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(1000), state["maxTokens"])

	resp, _ = env.post(t, "/api/context/sess-1/messages", map[string]any{
		"role": "user", "content": strings.Repeat("hello there ", 20),
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, health := env.get(t, "/api/context/sess-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health["status"])

	resp, body := env.get(t, "/api/context/ghost")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "ghost")
}

func TestContextRotateConflicts(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")

	resp, _ := env.post(t, "/api/context/sess-2", map[string]any{"maxTokens": 1000})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, result := env.post(t, "/api/context/sess-2/rotate", map[string]any{"reason": "manual"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, result["newSessionId"])

	// Writes to a rotated session conflict.
	resp, _ = env.post(t, "/api/context/sess-2/messages", map[string]any{"role": "user", "content": "late"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// So does rotating it again.
	resp, _ = env.post(t, "/api/context/sess-2/rotate", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestContextUnregister(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")

	resp, _ := env.post(t, "/api/context/sess-3", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, env.http.URL+"/api/context/sess-3", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	resp, _ = env.get(t, "/api/context/sess-3")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMaintenanceAdmission(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")

	resp, _ := env.post(t, "/api/maintenance/enter", map[string]any{"reason": "migration", "actor": "ops"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Non-exempt routes are rejected while in maintenance.
	resp, body := env.get(t, "/api/tools")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "maintenance")
	assert.Contains(t, body["error"], "migration")

	// Health and maintenance control stay reachable.
	resp, _ = env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, state := env.get(t, "/api/maintenance")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "maintenance", state["mode"])

	resp, _ = env.post(t, "/api/maintenance/exit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.get(t, "/api/tools")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDrainingAdvertisesRetryAfter(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")

	resp, _ := env.post(t, "/api/maintenance/drain", map[string]any{"deadlineSeconds": 30})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.get(t, "/api/tools")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "draining")
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestDrainRequiresDeadline(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")
	resp, _ := env.post(t, "/api/maintenance/drain", map[string]any{"reason": "no deadline"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")

	resp, err := http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}

func TestRefreshClearsCaches(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")

	env.get(t, "/api/snapshot")
	resp, _ := env.post(t, "/api/tools/refresh", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, stats := env.get(t, "/api/snapshot/cache")
	assert.Equal(t, false, stats["cached"])
}

func TestWebsocketEventBridge(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/events?channel=sweeps"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	env.hub.Publish(events.SweepChannel(), events.EventSweepCompleted,
		map[string]any{"job": "snapshot_refresh"}, nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventSweepCompleted, ev.Type)
}

func TestWebsocketRejectsBadChannel(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")

	resp, err := http.Get(env.http.URL + "/ws/events?channel=session")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocketReplay(t *testing.T) {
	env := newTestEnv(t, "claude", "dcg", "bv")

	env.hub.Publish(events.SweepChannel(), events.EventSweepCompleted,
		map[string]any{"job": "backlog_prune"}, nil)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/events?channel=sweeps&replay=10"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventSweepCompleted, ev.Type)
}
