package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nlrail-data/pkg/disruptions/models"
)

// Run statuses recorded in ingest_runs
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunTracker records ETL run bookkeeping and supplies the incremental
// fetch anchor for the next cycle
type RunTracker struct {
	db *DB
}

func NewRunTracker(db *DB) *RunTracker {
	return &RunTracker{db: db}
}

// LastSuccessfulRun returns the most recent succeeded run, or nil when
// no run has succeeded yet (first ever invocation)
func (rt *RunTracker) LastSuccessfulRun(ctx context.Context) (*models.IngestRun, error) {
	query := `
		SELECT run_id, started_at, finished_at, status, fetched_count, valid_count, rejected_count, upserted_count, error_message
		FROM ingest_runs
		WHERE status = $1
		ORDER BY started_at DESC
		LIMIT 1
	`

	var run models.IngestRun
	err := rt.db.conn.QueryRowContext(ctx, query, RunStatusSucceeded).Scan(
		&run.RunID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.FetchedCount,
		&run.ValidCount,
		&run.RejectedCount,
		&run.UpsertedCount,
		&run.ErrorMessage,
	)

	if err == sql.ErrNoRows {
		rt.db.logger.Info("No successful run found in database")
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("querying last successful run: %w", err)
	}

	rt.db.logger.Debug("Found last successful run",
		"run_id", run.RunID,
		"started_at", run.StartedAt)

	return &run, nil
}

// BeginRun inserts a new running row and returns its id
func (rt *RunTracker) BeginRun(ctx context.Context, startedAt time.Time) (int, error) {
	var runID int
	query := `
		INSERT INTO ingest_runs (started_at, status)
		VALUES ($1, $2)
		RETURNING run_id
	`

	err := rt.db.conn.QueryRowContext(ctx, query, startedAt, RunStatusRunning).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("creating run: %w", err)
	}

	rt.db.logger.Info("Started ingest run", "run_id", runID)
	return runID, nil
}

// CompleteRun marks a run as succeeded and stores its counters
func (rt *RunTracker) CompleteRun(ctx context.Context, runID int, fetched, valid, rejected, upserted int) error {
	query := `
		UPDATE ingest_runs
		SET finished_at = now(), status = $2, fetched_count = $3, valid_count = $4, rejected_count = $5, upserted_count = $6
		WHERE run_id = $1
	`

	result, err := rt.db.conn.ExecContext(ctx, query, runID, RunStatusSucceeded, fetched, valid, rejected, upserted)
	if err != nil {
		return fmt.Errorf("completing run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %d not found", runID)
	}

	rt.db.logger.Info("Completed ingest run",
		"run_id", runID,
		"fetched", fetched,
		"valid", valid,
		"rejected", rejected,
		"upserted", upserted)

	return nil
}

// FailRun marks a run as failed with its error message
func (rt *RunTracker) FailRun(ctx context.Context, runID int, cause error) error {
	query := `
		UPDATE ingest_runs
		SET finished_at = now(), status = $2, error_message = $3
		WHERE run_id = $1
	`

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	if _, err := rt.db.conn.ExecContext(ctx, query, runID, RunStatusFailed, msg); err != nil {
		return fmt.Errorf("failing run: %w", err)
	}

	rt.db.logger.Warn("Marked ingest run as failed", "run_id", runID, "cause", msg)
	return nil
}
