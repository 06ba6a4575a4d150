// Package trigger runs registered jobs on cron schedules inside the server
// process.
package trigger

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"site-orchestrator/internal/jobs"
	"site-orchestrator/internal/runlog"
)

// Scheduler invokes scheduled jobs through the run recorder's direct path, so
// cron-triggered and HTTP-triggered runs produce identical records.
type Scheduler struct {
	cron   *cron.Cron
	runner *runlog.Runner
	opts   runlog.Options
}

// New builds a scheduler over the runner.
func New(runner *runlog.Runner, opts runlog.Options) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		opts:   opts,
	}
}

// Add registers a job's schedule. Jobs with an empty schedule are skipped.
func (s *Scheduler) Add(job jobs.Job) error {
	if job.Schedule == "" {
		return nil
	}
	opts := s.opts
	opts.Category = job.Category
	_, err := s.cron.AddFunc(job.Schedule, func() {
		log.Info().Str("job", job.Name).Str("schedule", job.Schedule).Msg("cron trigger")
		_, _ = s.runner.Run(context.Background(), job.Name, opts, job.Body)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Schedule, err)
	}
	return nil
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that is done once in-flight
// runs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
