package runlog

import (
	"context"
	"time"
)

// Run statuses. A record transitions running to exactly one terminal status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimedOut  = "timed_out"
)

// Record is the persisted audit trail of one job execution.
type Record struct {
	ID             string         `json:"id"`
	Job            string         `json:"job"`
	Category       string         `json:"category"`
	Status         string         `json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
	ItemsProcessed int            `json:"items_processed"`
	ItemsSucceeded int            `json:"items_succeeded"`
	ItemsFailed    int            `json:"items_failed"`
	SitesProcessed []string       `json:"sites_processed"`
	SitesSkipped   []string       `json:"sites_skipped"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	ErrorStack     *string        `json:"error_stack,omitempty"`
	Summary        map[string]any `json:"result_summary,omitempty"`
	TimedOut       bool           `json:"timed_out"`
}

// Store persists run records. Both operations are best-effort sinks: the
// runner logs and continues when they fail, so a storage outage degrades
// observability but never blocks job execution.
type Store interface {
	CreateRun(ctx context.Context, rec *Record) error
	CompleteRun(ctx context.Context, rec *Record) error
}

// Notifier is invoked when a run fails. The contract is fire-and-forget:
// errors from the notifier are discarded so they cannot mask the original
// failure.
type Notifier interface {
	NotifyFailure(ctx context.Context, job string, jobErr error) error
}

// Archiver exports a completed record for long-term retention.
type Archiver interface {
	ArchiveRun(ctx context.Context, rec *Record) error
}
