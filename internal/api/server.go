// Package api provides the HTTP server of the reference stats gateway.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/edugame/xpsync/internal/app/engagement"
	"github.com/edugame/xpsync/internal/health"
	"github.com/edugame/xpsync/internal/infra/gateway"
)

// Server is the stats gateway HTTP API server.
type Server struct {
	svc            *engagement.Service
	checker        *health.Checker // nil: /health always reports ok
	metricsEnabled bool
	logger         *log.Entry
}

// NewServer creates a new API server.
func NewServer(svc *engagement.Service) *Server {
	return &Server{svc: svc, logger: log.WithField("component", "api")}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealthChecker backs /health with periodic checks.
func (s *Server) SetHealthChecker(c *health.Checker) { s.checker = c }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.requestLogger)

	r.Get(gateway.PathHealth, s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get(gateway.PathProfile, s.handleProfile)
		r.Post(gateway.PathXP, s.handleAddXP)
		r.Post(gateway.PathStreakFreeze, s.handleStreakFreeze)
		r.Get(gateway.PathDashboard, s.handleDashboard)
		r.Get(gateway.PathAchievements, s.handleAchievements)

		r.Get(gateway.PathChallenges, s.handleListChallenges)
		r.Post(gateway.PathChallenges+"/{id}/submit", s.handleSubmitChallenge)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.checker.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.checker.Statuses(),
	})
}

// requestLogger logs each request at debug level with chi's request id.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with a machine-readable code.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
		"code":  code,
	})
}
