package runlog

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WithRunLog returns a trigger handler for one job. The handler authorizes the
// caller against the shared secret, executes the body under run logging, and
// renders the JSON outcome. The response status code derives only from whether
// the body errored; a run that cooperatively timed out still returns 200 with
// timedOut true, since partial completion is a successful-degraded outcome.
func (r *Runner) WithRunLog(job string, opts Options, body func(ctx context.Context, h *Handle, req *http.Request) (map[string]any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !r.Authorize(w, req) {
			return
		}

		rec, err := r.Run(req.Context(), job, opts, func(ctx context.Context, h *Handle) (map[string]any, error) {
			return body(ctx, h, req)
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success":    false,
				"job":        job,
				"error":      err.Error(),
				"durationMs": rec.DurationMS,
			})
			return
		}

		payload := map[string]any{
			"success":    true,
			"job":        job,
			"status":     rec.Status,
			"durationMs": rec.DurationMS,
			"items": map[string]any{
				"processed": rec.ItemsProcessed,
				"succeeded": rec.ItemsSucceeded,
				"failed":    rec.ItemsFailed,
			},
			"sites": map[string]any{
				"processed": rec.SitesProcessed,
				"skipped":   rec.SitesSkipped,
			},
			"timedOut": rec.TimedOut,
		}
		// Job-specific summary keys are spread into the response without
		// overriding the reserved envelope keys.
		for k, v := range rec.Summary {
			if _, reserved := payload[k]; !reserved {
				payload[k] = v
			}
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

// Authorize enforces the shared-secret gate, writing the rejection response
// itself. With no secret configured the endpoint fails closed in production
// and is open (with a warning) in dev.
func (r *Runner) Authorize(w http.ResponseWriter, req *http.Request) bool {
	if r.secret == "" {
		if r.production {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"success": false,
				"error":   "trigger secret not configured",
			})
			return false
		}
		log.Warn().Str("path", req.URL.Path).Msg("trigger secret not configured, allowing unauthenticated trigger in dev")
		return true
	}

	got := req.Header.Get("Authorization")
	want := "Bearer " + r.secret
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "unauthorized",
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
