// Package store persists run records in Postgres.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"site-orchestrator/internal/runlog"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateRun inserts a running record at job start.
func (s *Store) CreateRun(ctx context.Context, rec *runlog.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id, job, category, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.Job, rec.Category, rec.Status, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// CompleteRun updates a record to its terminal state with counters and detail.
func (s *Store) CompleteRun(ctx context.Context, rec *runlog.Record) error {
	var summaryJSON []byte
	if rec.Summary != nil {
		var err error
		summaryJSON, err = json.Marshal(rec.Summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE runs
		SET status = $2,
		    completed_at = $3,
		    duration_ms = $4,
		    items_processed = $5,
		    items_succeeded = $6,
		    items_failed = $7,
		    sites_processed = $8,
		    sites_skipped = $9,
		    error_message = $10,
		    error_stack = $11,
		    result_summary = $12,
		    timed_out = $13
		WHERE id = $1
	`, rec.ID, rec.Status, rec.CompletedAt, rec.DurationMS,
		rec.ItemsProcessed, rec.ItemsSucceeded, rec.ItemsFailed,
		rec.SitesProcessed, rec.SitesSkipped,
		rec.ErrorMessage, rec.ErrorStack, summaryJSON, rec.TimedOut)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest records for operational inspection.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]runlog.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, job, category, status, started_at, completed_at, duration_ms,
		       items_processed, items_succeeded, items_failed,
		       sites_processed, sites_skipped,
		       error_message, error_stack, result_summary, timed_out
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []runlog.Record
	for rows.Next() {
		var rec runlog.Record
		var errMsg, errStack pgtype.Text
		var summaryJSON []byte
		if err := rows.Scan(&rec.ID, &rec.Job, &rec.Category, &rec.Status,
			&rec.StartedAt, &rec.CompletedAt, &rec.DurationMS,
			&rec.ItemsProcessed, &rec.ItemsSucceeded, &rec.ItemsFailed,
			&rec.SitesProcessed, &rec.SitesSkipped,
			&errMsg, &errStack, &summaryJSON, &rec.TimedOut); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.ErrorMessage = textPtr(errMsg)
		rec.ErrorStack = textPtr(errStack)
		if len(summaryJSON) > 0 {
			if err := json.Unmarshal(summaryJSON, &rec.Summary); err != nil {
				return nil, fmt.Errorf("unmarshal summary: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
