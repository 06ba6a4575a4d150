// Package api wires HTTP handlers for the orchestrator service.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"site-orchestrator/internal/config"
	"site-orchestrator/internal/jobs"
	"site-orchestrator/internal/ratelimit"
	"site-orchestrator/internal/runlog"
	"site-orchestrator/internal/telemetry"
	"site-orchestrator/internal/tenant"
)

// RunLister reads back recent run records for the ops endpoint.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]runlog.Record, error)
}

// Server holds the request-path collaborators.
type Server struct {
	cfg      config.Config
	runner   *runlog.Runner
	resolver *tenant.Resolver
	limiter  *ratelimit.Limiter
	registry *jobs.Registry
	runs     RunLister
}

// New constructs the API server. runs may be nil when the record store is
// unavailable.
func New(cfg config.Config, runner *runlog.Runner, resolver *tenant.Resolver, limiter *ratelimit.Limiter, registry *jobs.Registry, runs RunLister) *Server {
	return &Server{
		cfg:      cfg,
		runner:   runner,
		resolver: resolver,
		limiter:  limiter,
		registry: registry,
		runs:     runs,
	}
}

// Router builds the HTTP router. The tenant pipeline and rate limiter gate
// every route except health and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.resolver.Pipeline(s.cfg.Production(), s.cfg.AllowedOrigins))
		r.Use(ratelimit.Middleware(s.limiter, s.cfg.RateLimitWindow, s.cfg.RateLimitMax, ratelimit.ScopedIP("general")))

		r.Get("/", s.handleSiteInfo)

		r.Route("/api", func(r chi.Router) {
			r.Route("/cron", func(r chi.Router) {
				r.Use(ratelimit.Middleware(s.limiter, s.cfg.CronWindow, s.cfg.CronMax, ratelimit.ScopedIP("cron")))
				jobOpts := runlog.Options{
					MaxDuration: s.cfg.JobMaxDuration,
					Margin:      s.cfg.JobMargin,
				}
				for _, job := range s.registry.All() {
					opts := jobOpts
					opts.Category = job.Category
					body := job.Body
					handler := s.runner.WithRunLog(job.Name, opts, func(ctx context.Context, h *runlog.Handle, _ *http.Request) (map[string]any, error) {
						return body(ctx, h)
					})
					r.Get("/"+job.Name, handler)
					r.Post("/"+job.Name, handler)
				}
			})

			r.Get("/runs", s.handleRecentRuns)
		})
	})

	return r
}

// handleSiteInfo echoes the resolved tenant, the minimal downstream consumer
// of the pipeline's context stamping.
func (s *Server) handleSiteInfo(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		http.Error(w, "tenant not resolved", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"siteId":   tc.SiteID,
		"siteName": tc.SiteName,
		"locale":   tc.Locale,
		"hostname": tc.Hostname,
		"isRTL":    tc.IsRTL,
	})
}

// handleRecentRuns lists recent run records, gated the same way as the
// trigger endpoints since records may carry error detail.
func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	if !s.runner.Authorize(w, r) {
		return
	}
	if s.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "run store unavailable"})
		return
	}
	records, err := s.runs.RecentRuns(r.Context(), 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": records})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
