package db

import (
	"context"
	"fmt"
)

// schemaStatements are applied in order on startup. Everything is
// IF NOT EXISTS / OR REPLACE so repeated runs are harmless.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS raw_disruptions (
		disruption_id TEXT PRIMARY KEY,
		raw_payload   JSONB NOT NULL,
		fetched_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS disruptions (
		disruption_id     TEXT PRIMARY KEY REFERENCES raw_disruptions (disruption_id),
		type              TEXT NOT NULL,
		title             TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		start_time        TIMESTAMPTZ NOT NULL,
		end_time          TIMESTAMPTZ,
		duration_minutes  INTEGER,
		impact_level      INTEGER NOT NULL CHECK (impact_level BETWEEN 1 AND 5),
		affected_stations TEXT NOT NULL DEFAULT '',
		is_resolved       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_disruptions_start_time ON disruptions (start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_disruptions_type ON disruptions (type)`,
	`CREATE TABLE IF NOT EXISTS stations (
		station_code TEXT PRIMARY KEY,
		station_name TEXT NOT NULL,
		country      TEXT NOT NULL DEFAULT '',
		latitude     DOUBLE PRECISION,
		longitude    DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS daily_stats (
		stat_date             DATE PRIMARY KEY,
		total_disruptions     INTEGER NOT NULL,
		avg_duration_minutes  REAL,
		max_duration_minutes  INTEGER,
		most_affected_station TEXT,
		peak_hour             INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS ingest_runs (
		run_id         SERIAL PRIMARY KEY,
		started_at     TIMESTAMPTZ NOT NULL,
		finished_at    TIMESTAMPTZ,
		status         TEXT NOT NULL,
		fetched_count  INTEGER NOT NULL DEFAULT 0,
		valid_count    INTEGER NOT NULL DEFAULT 0,
		rejected_count INTEGER NOT NULL DEFAULT 0,
		upserted_count INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE OR REPLACE VIEW active_disruptions AS
		SELECT disruption_id, type, title, start_time, end_time, impact_level, affected_stations
		FROM disruptions
		WHERE NOT is_resolved
		  AND (end_time IS NULL OR end_time > now())
		ORDER BY impact_level DESC, start_time ASC`,
	`CREATE OR REPLACE VIEW station_disruption_stats AS
		SELECT s.station_code,
		       s.station_name,
		       COUNT(d.disruption_id)     AS disruption_count,
		       AVG(d.duration_minutes)    AS avg_duration_minutes
		FROM stations s
		LEFT JOIN disruptions d
		  ON d.affected_stations ~ ('(^|,)' || s.station_code || '(,|$)')
		GROUP BY s.station_code, s.station_name`,
}

// EnsureSchema creates the tables and views if they do not exist yet
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement: %w", err)
		}
	}
	db.logger.Debug("Schema ensured", "statements", len(schemaStatements))
	return nil
}
