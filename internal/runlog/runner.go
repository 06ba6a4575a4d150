// Package runlog wraps job executions: it opens a run record at start, hands
// the body a progress handle, and closes the record with timing, counters,
// per-site outcomes, and error detail. Persistence and notification are
// best-effort; job correctness never depends on observability infrastructure.
package runlog

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"site-orchestrator/internal/deadline"
	"site-orchestrator/internal/telemetry"
)

// Body is one job's work. It reports progress through the Handle and returns
// a job-specific summary merged into the persisted record and HTTP response.
type Body func(ctx context.Context, h *Handle) (map[string]any, error)

// Options tune one job registration.
type Options struct {
	Category    string
	MaxDuration time.Duration
	Margin      time.Duration
}

// Runner executes job bodies under run logging. Store, notifier, and archiver
// may each be nil; a nil collaborator simply disables that concern.
type Runner struct {
	store      Store
	notifier   Notifier
	archiver   Archiver
	secret     string
	production bool
}

// New constructs a Runner. secret gates the HTTP trigger endpoints; production
// controls the fail-closed behavior when no secret is configured.
func New(store Store, notifier Notifier, archiver Archiver, secret string, production bool) *Runner {
	return &Runner{
		store:      store,
		notifier:   notifier,
		archiver:   archiver,
		secret:     secret,
		production: production,
	}
}

// Run executes one job invocation end to end and returns the terminal record
// along with the body's error, if any. The record's status is failed when the
// body errored, but a latched timeout wins regardless of how the body exited.
func (r *Runner) Run(ctx context.Context, job string, opts Options, body Body) (*Record, error) {
	start := time.Now()
	dl := deadline.New(opts.Margin, opts.MaxDuration)
	h := newHandle(dl)

	rec := &Record{
		ID:        uuid.New().String(),
		Job:       job,
		Category:  opts.Category,
		Status:    StatusRunning,
		StartedAt: start,
	}

	telemetry.RunsStarted.Inc()
	created := false
	if r.store != nil {
		if err := r.store.CreateRun(ctx, rec); err != nil {
			log.Warn().Str("job", job).Err(err).Msg("run record creation failed, continuing unlogged")
		} else {
			created = true
		}
	}

	summary, stack, err := runBody(ctx, h, body)

	completedAt := time.Now()
	rec.CompletedAt = &completedAt
	rec.DurationMS = completedAt.Sub(start).Milliseconds()
	rec.Summary = summary
	h.snapshot(rec)

	rec.Status = StatusCompleted
	if err != nil {
		rec.Status = StatusFailed
		msg := err.Error()
		rec.ErrorMessage = &msg
		if stack != "" {
			rec.ErrorStack = &stack
		}
		r.notifyFailure(job, err)
	}
	if rec.TimedOut {
		rec.Status = StatusTimedOut
	}

	switch rec.Status {
	case StatusCompleted:
		telemetry.RunsCompleted.Inc()
	case StatusFailed:
		telemetry.RunsFailed.Inc()
	case StatusTimedOut:
		telemetry.RunsTimedOut.Inc()
	}

	if created {
		if err := r.store.CompleteRun(ctx, rec); err != nil {
			log.Warn().Str("job", job).Str("run_id", rec.ID).Err(err).Msg("run record update failed")
		}
	}
	r.archive(rec)

	evt := log.Info()
	if err != nil {
		evt = log.Error().Err(err)
	}
	evt.Str("job", job).Str("run_id", rec.ID).Str("status", rec.Status).
		Int64("duration_ms", rec.DurationMS).
		Int("items", rec.ItemsProcessed).
		Int("sites", len(rec.SitesProcessed)).
		Int("skipped", len(rec.SitesSkipped)).
		Msg("run finished")

	return rec, err
}

// runBody invokes the body, converting a panic into an error with its stack
// so the wrapper can record it like any other failure.
func runBody(ctx context.Context, h *Handle, body Body) (summary map[string]any, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack = string(debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	summary, err = body(ctx, h)
	return summary, "", err
}

// notifyFailure invokes the external hook detached from the run's control
// flow. Its errors are logged and discarded so they cannot mask the failure.
func (r *Runner) notifyFailure(job string, jobErr error) {
	if r.notifier == nil {
		return
	}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Debug().Str("job", job).Interface("panic", rec).Msg("failure notifier panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.notifier.NotifyFailure(ctx, job, jobErr); err != nil {
			log.Debug().Str("job", job).Err(err).Msg("failure notification failed")
		}
	}()
}

// archive exports the terminal record in the background, best-effort.
func (r *Runner) archive(rec *Record) {
	if r.archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.archiver.ArchiveRun(ctx, rec); err != nil {
			log.Debug().Str("run_id", rec.ID).Err(err).Msg("run archive failed")
		}
	}()
}
