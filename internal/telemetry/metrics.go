package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	RunsStarted      = prometheus.NewCounter(prometheus.CounterOpts{Name: "orchestrator_runs_started_total", Help: "Job runs started"})
	RunsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "orchestrator_runs_completed_total", Help: "Job runs that finished all work"})
	RunsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "orchestrator_runs_failed_total", Help: "Job runs that ended in failure"})
	RunsTimedOut     = prometheus.NewCounter(prometheus.CounterOpts{Name: "orchestrator_runs_timed_out_total", Help: "Job runs that hit the wall-clock budget"})
	FetchRetries     = prometheus.NewCounter(prometheus.CounterOpts{Name: "orchestrator_fetch_retries_total", Help: "Outbound fetch attempts that were retried"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "orchestrator_rate_limit_rejects_total", Help: "Requests rejected by the rate limiter"})
	SitesProcessed   = prometheus.NewCounter(prometheus.CounterOpts{Name: "orchestrator_sites_processed_total", Help: "Per-site units of work attempted"})
	SitesSkipped     = prometheus.NewCounter(prometheus.CounterOpts{Name: "orchestrator_sites_skipped_total", Help: "Per-site units of work skipped on budget expiry"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			RunsStarted,
			RunsCompleted,
			RunsFailed,
			RunsTimedOut,
			FetchRetries,
			RateLimitRejects,
			SitesProcessed,
			SitesSkipped,
		)
	})
	return promhttp.Handler()
}
