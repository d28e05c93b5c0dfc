package gateway

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/opsgate/internal/maintenance"
	"github.com/haasonsaas/opsgate/internal/observability"
)

// exemptPaths stay reachable in every maintenance mode so operators can
// observe and recover the process.
func exempt(path string) bool {
	switch {
	case path == "/healthz", path == "/metrics":
		return true
	case strings.HasPrefix(path, "/api/maintenance"):
		return true
	}
	return false
}

// admissionMiddleware rejects requests while the process is in maintenance
// or draining, advertising Retry-After when a drain deadline exists, and
// tracks the in-flight counter for admitted requests.
func (s *Server) admissionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.maint == nil || exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		state := s.maint.GetState()
		if state.Mode != maintenance.ModeRunning {
			if state.RetryAfterSeconds != nil {
				w.Header().Set("Retry-After", strconv.FormatInt(*state.RetryAfterSeconds, 10))
			}
			msg := "gateway is in maintenance mode"
			if state.Mode == maintenance.ModeDraining {
				msg = "gateway is draining"
			}
			if state.Reason != "" {
				msg += ": " + state.Reason
			}
			s.writeError(w, http.StatusServiceUnavailable, msg)
			return
		}

		s.maint.RequestStarted()
		defer s.maint.RequestFinished()
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags each request with an id for log correlation.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := observability.AddRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
