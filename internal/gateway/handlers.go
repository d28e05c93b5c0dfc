package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haasonsaas/opsgate/internal/contexthealth"
	"github.com/haasonsaas/opsgate/internal/maintenance"
	"github.com/haasonsaas/opsgate/internal/planner"
	"github.com/haasonsaas/opsgate/internal/probe"
	"github.com/haasonsaas/opsgate/internal/registry"
	"github.com/haasonsaas/opsgate/internal/snapshot"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// detectAll probes every tool in the registry and returns the registry
// alongside the detection results.
func (s *Server) detectAll(r *http.Request) (*registry.Registry, []probe.DetectedCLI) {
	reg, _ := s.registry.Load(r.Context(), registry.LoadOptions{})
	agents, tools := planner.Definitions(reg.Manifest.Tools)
	snap := s.prober.DetectAll(r.Context(), agents, tools)
	detected := append(append([]probe.DetectedCLI{}, snap.Agents...), snap.Tools...)
	return reg, detected
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	reg, detected := s.detectAll(r)
	plan := planner.Build(reg.Manifest.Tools, planner.FromDetected(detected))
	readiness := planner.CheckReadiness(plan)

	status := http.StatusOK
	if !readiness.Ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]any{
		"readiness": readiness,
		"registry":  reg.Meta,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry.Load(r.Context(), registry.LoadOptions{})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"meta":        reg.Meta,
		"categorized": reg.CategorizeTools(),
		"phases":      reg.ToolsByPhase(),
	})
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reg, detected := s.detectAll(r)

	tool, ok := reg.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown tool: "+id)
		return
	}

	health, _ := s.diag.ToolReport(r.Context(), reg.Manifest.Tools, detected, id)
	if !health.Available && health.Reason != "" {
		info := health.Reason.Info()
		s.writeJSON(w, info.HTTPStatus, map[string]any{
			"tool":       tool,
			"health":     health,
			"reasonInfo": info,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"tool":   tool,
		"health": health,
	})
}

func (s *Server) handleInstallPlan(w http.ResponseWriter, r *http.Request) {
	reg, detected := s.detectAll(r)
	plan := planner.Build(reg.Manifest.Tools, planner.FromDetected(detected))

	if r.URL.Query().Get("format") == "script" {
		w.Header().Set("Content-Type", "text/x-shellscript")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(planner.FormatInstallScript(plan)))
		return
	}
	s.writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	reg, detected := s.detectAll(r)
	report := s.diag.Analyze(r.Context(), reg.Manifest.Tools, detected)
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRefreshTools(w http.ResponseWriter, r *http.Request) {
	s.registry.ClearCache()
	s.prober.ClearCache()
	s.snapshots.ClearCache()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "caches cleared"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	opts := snapshot.GetOptions{BypassCache: r.URL.Query().Get("refresh") == "1"}
	snap, results := s.snapshots.GetSnapshot(r.Context(), opts)
	resp := map[string]any{"snapshot": snap}
	if results != nil {
		resp["collection"] = results
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSnapshotCache(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshots.GetCacheStats())
}

type registerSessionRequest struct {
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

func (s *Server) handleRegisterSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req registerSessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state := s.health.RegisterSession(id, contexthealth.RegisterOptions{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	})
	s.writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleUnregisterSession(w http.ResponseWriter, r *http.Request) {
	s.health.UnregisterSession(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContextHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.health.CheckHealth(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeContextError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, health)
}

type addMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req addMessageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Role == "" || req.Content == "" {
		s.writeError(w, http.StatusBadRequest, "role and content are required")
		return
	}
	if err := s.health.AddMessage(id, contexthealth.Message{Role: req.Role, Content: req.Content}); err != nil {
		s.writeContextError(w, err)
		return
	}
	state, _ := s.health.Session(id)
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"currentTokens": state.CurrentTokens,
		"messages":      len(state.Messages),
	})
}

type compactRequest struct {
	Strategy        string  `json:"strategy,omitempty"`
	TargetReduction float64 `json:"targetReduction,omitempty"`
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req compactRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.health.Compact(r.Context(), id, contexthealth.CompactOptions{
		Strategy:        contexthealth.CompactionStrategy(req.Strategy),
		TargetReduction: req.TargetReduction,
	})
	if err != nil {
		s.writeContextError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type rotateRequest struct {
	Reason      string   `json:"reason,omitempty"`
	ActiveBeads []string `json:"activeBeads,omitempty"`
	MemoryRules []string `json:"memoryRules,omitempty"`
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req rotateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.health.Rotate(r.Context(), id, contexthealth.RotateOptions{
		Reason:      req.Reason,
		ActiveBeads: req.ActiveBeads,
		MemoryRules: req.MemoryRules,
	})
	if err != nil {
		s.writeContextError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// writeContextError maps context-health errors onto HTTP statuses.
func (s *Server) writeContextError(w http.ResponseWriter, err error) {
	var notFound *contexthealth.SessionNotFoundError
	var rotation *contexthealth.RotationError
	var summarization *contexthealth.SummarizationError
	switch {
	case errors.As(err, &notFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &rotation):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &summarization):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, contexthealth.ErrSessionRotated):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type maintenanceRequest struct {
	Reason          string `json:"reason,omitempty"`
	Actor           string `json:"actor,omitempty"`
	DeadlineSeconds int    `json:"deadlineSeconds,omitempty"`
}

func (s *Server) handleMaintenanceState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.maint.GetState())
}

func (s *Server) handleEnterMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state := s.maint.EnterMaintenance(maintenanceOptions(req))
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStartDraining(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.maint.StartDraining(maintenanceOptions(req))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleExitMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.maint.ExitMaintenance(maintenanceOptions(req)))
}

func maintenanceOptions(req maintenanceRequest) maintenance.Options {
	return maintenance.Options{
		Reason:          req.Reason,
		Actor:           req.Actor,
		DeadlineSeconds: req.DeadlineSeconds,
	}
}

// decodeBody decodes an optional JSON body. An empty body is fine.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}
