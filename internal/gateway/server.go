// Package gateway is the HTTP surface of the operator gateway: readiness
// and tool queries, snapshot and context-health endpoints, maintenance
// control, Prometheus metrics, and a websocket bridge onto the event hub.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/opsgate/internal/contexthealth"
	"github.com/haasonsaas/opsgate/internal/diagnostics"
	"github.com/haasonsaas/opsgate/internal/events"
	"github.com/haasonsaas/opsgate/internal/maintenance"
	"github.com/haasonsaas/opsgate/internal/observability"
	"github.com/haasonsaas/opsgate/internal/probe"
	"github.com/haasonsaas/opsgate/internal/registry"
	"github.com/haasonsaas/opsgate/internal/snapshot"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address. Defaults to ":8600".
	Addr string

	// ReadTimeout and WriteTimeout bound request handling.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ShutdownGrace bounds graceful shutdown.
	ShutdownGrace time.Duration
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8600",
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  30 * time.Second,
		ShutdownGrace: 10 * time.Second,
	}
}

// Server wires the gateway components behind HTTP handlers.
type Server struct {
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics

	registry  *registry.Service
	prober    *probe.Prober
	diag      *diagnostics.Engine
	snapshots *snapshot.Service
	health    *contexthealth.Service
	maint     *maintenance.Coordinator
	hub       *events.Hub

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// Deps collects the component handles the server serves.
type Deps struct {
	Registry  *registry.Service
	Prober    *probe.Prober
	Diag      *diagnostics.Engine
	Snapshots *snapshot.Service
	Health    *contexthealth.Service
	Maint     *maintenance.Coordinator
	Hub       *events.Hub
}

// NewServer creates the gateway server.
func NewServer(cfg Config, logger *observability.Logger, metrics *observability.Metrics, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultConfig().ShutdownGrace
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		registry:  deps.Registry,
		prober:    deps.Prober,
		diag:      deps.Diag,
		snapshots: deps.Snapshots,
		health:    deps.Health,
		maint:     deps.Maint,
		hub:       deps.Hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler builds the route table with the admission middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("GET /api/tools/plan", s.handleInstallPlan)
	mux.HandleFunc("GET /api/tools/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("GET /api/tools/{id}", s.handleGetTool)
	mux.HandleFunc("POST /api/tools/refresh", s.handleRefreshTools)

	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/snapshot/cache", s.handleSnapshotCache)

	mux.HandleFunc("POST /api/context/{id}", s.handleRegisterSession)
	mux.HandleFunc("GET /api/context/{id}", s.handleContextHealth)
	mux.HandleFunc("POST /api/context/{id}/messages", s.handleAddMessage)
	mux.HandleFunc("POST /api/context/{id}/compact", s.handleCompact)
	mux.HandleFunc("POST /api/context/{id}/rotate", s.handleRotate)
	mux.HandleFunc("DELETE /api/context/{id}", s.handleUnregisterSession)

	mux.HandleFunc("GET /api/maintenance", s.handleMaintenanceState)
	mux.HandleFunc("POST /api/maintenance/enter", s.handleEnterMaintenance)
	mux.HandleFunc("POST /api/maintenance/drain", s.handleStartDraining)
	mux.HandleFunc("POST /api/maintenance/exit", s.handleExitMaintenance)

	mux.HandleFunc("GET /ws/events", s.handleEvents)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.admissionMiddleware(s.requestIDMiddleware(mux))
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "gateway listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error(nil, "response encoding failed", "error", err)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Retryable *bool  `json:"retryable,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeReasonError maps an unavailability reason onto its wire-stable
// status, label, and retryability.
func (s *Server) writeReasonError(w http.ResponseWriter, reason probe.UnavailabilityReason) {
	info := reason.Info()
	retryable := info.Retryable
	s.writeJSON(w, info.HTTPStatus, errorResponse{
		Error:     info.Label,
		Reason:    string(reason),
		Retryable: &retryable,
	})
}
