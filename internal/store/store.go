package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nlrail-data/internal/common/db"
	"github.com/nlrail-data/internal/common/logger"
	"github.com/nlrail-data/pkg/disruptions/models"
)

// Store owns the writes against the persistent schema. Batch writes
// run inside a caller-owned transaction so a failed run leaves nothing
// behind.
type Store struct {
	db     *db.DB
	logger logger.Logger
}

func New(database *db.DB) *Store {
	return &Store{
		db:     database,
		logger: database.Logger(),
	}
}

// InsertRaw appends the immutable raw payload, ignoring records whose
// id is already present. Raw rows are never updated after insert.
func (s *Store) InsertRaw(ctx context.Context, tx *sql.Tx, raw models.RawDisruption) error {
	query := `
		INSERT INTO raw_disruptions (disruption_id, raw_payload, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (disruption_id) DO NOTHING
	`

	if _, err := tx.ExecContext(ctx, query, raw.DisruptionID, raw.RawPayload, raw.FetchedAt); err != nil {
		return fmt.Errorf("inserting raw disruption %s: %w", raw.DisruptionID, err)
	}
	return nil
}

// UpsertDisruption inserts a new projection row or updates the mutable
// fields of an existing one. Writes carrying no change are suppressed
// so re-running with identical data leaves updated_at untouched.
// Returns true when a row was actually written.
func (s *Store) UpsertDisruption(ctx context.Context, tx *sql.Tx, d models.Disruption) (bool, error) {
	query := `
		INSERT INTO disruptions (
			disruption_id, type, title, description, start_time, end_time,
			duration_minutes, impact_level, affected_stations, is_resolved,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (disruption_id) DO UPDATE
		SET is_resolved      = EXCLUDED.is_resolved,
		    end_time         = EXCLUDED.end_time,
		    duration_minutes = EXCLUDED.duration_minutes,
		    impact_level     = EXCLUDED.impact_level,
		    updated_at       = now()
		WHERE (disruptions.is_resolved, disruptions.end_time, disruptions.duration_minutes, disruptions.impact_level)
		      IS DISTINCT FROM
		      (EXCLUDED.is_resolved, EXCLUDED.end_time, EXCLUDED.duration_minutes, EXCLUDED.impact_level)
	`

	result, err := tx.ExecContext(ctx, query,
		d.DisruptionID,
		d.Type,
		d.Title,
		d.Description,
		d.StartTime,
		nullTime(d.EndTime),
		nullInt(d.DurationMinutes),
		d.ImpactLevel,
		d.AffectedStations,
		d.IsResolved,
	)
	if err != nil {
		return false, fmt.Errorf("upserting disruption %s: %w", d.DisruptionID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	return rows > 0, nil
}

// RecomputeDailyStats replaces the rollup row for the given calendar
// date, derived solely from disruptions whose start_time falls on it.
// Dates with no disruptions end up with no row.
func (s *Store) RecomputeDailyStats(ctx context.Context, tx *sql.Tx, date time.Time) error {
	day := date.Format("2006-01-02")

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_stats WHERE stat_date = $1`, day); err != nil {
		return fmt.Errorf("clearing daily stats for %s: %w", day, err)
	}

	query := `
		INSERT INTO daily_stats (
			stat_date, total_disruptions, avg_duration_minutes,
			max_duration_minutes, most_affected_station, peak_hour
		)
		SELECT $1::date,
		       COUNT(*),
		       AVG(duration_minutes),
		       MAX(duration_minutes),
		       (
		           SELECT code
		           FROM disruptions d2,
		                unnest(string_to_array(d2.affected_stations, ',')) AS code
		           WHERE d2.start_time::date = $1::date
		             AND d2.affected_stations <> ''
		           GROUP BY code
		           ORDER BY COUNT(*) DESC, code
		           LIMIT 1
		       ),
		       (
		           SELECT EXTRACT(HOUR FROM d3.start_time)::int AS hour
		           FROM disruptions d3
		           WHERE d3.start_time::date = $1::date
		           GROUP BY hour
		           ORDER BY COUNT(*) DESC, hour
		           LIMIT 1
		       )
		FROM disruptions d
		WHERE d.start_time::date = $1::date
		HAVING COUNT(*) > 0
	`

	if _, err := tx.ExecContext(ctx, query, day); err != nil {
		return fmt.Errorf("recomputing daily stats for %s: %w", day, err)
	}

	s.logger.Debug("Recomputed daily stats", "date", day)
	return nil
}

// ReadDailyStat returns the rollup row for the given calendar date,
// or nil when the date has no disruptions
func (s *Store) ReadDailyStat(ctx context.Context, date time.Time) (*models.DailyStat, error) {
	day := date.Format("2006-01-02")

	query := `
		SELECT stat_date, total_disruptions, avg_duration_minutes,
		       max_duration_minutes, most_affected_station, peak_hour
		FROM daily_stats
		WHERE stat_date = $1
	`

	var stat models.DailyStat
	var avgDuration sql.NullFloat64
	var maxDuration, peakHour sql.NullInt64
	var station sql.NullString

	err := s.db.DB().QueryRowContext(ctx, query, day).Scan(
		&stat.StatDate,
		&stat.TotalDisruptions,
		&avgDuration,
		&maxDuration,
		&station,
		&peakHour,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading daily stats for %s: %w", day, err)
	}

	stat.AvgDurationMinutes = avgDuration.Float64
	stat.MaxDurationMinutes = int(maxDuration.Int64)
	stat.MostAffectedStation = station.String
	stat.PeakHour = int(peakHour.Int64)

	return &stat, nil
}

// CountStations reports how many reference stations exist
func (s *Store) CountStations(ctx context.Context) (int, error) {
	var count int
	err := s.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM stations`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting stations: %w", err)
	}
	return count, nil
}

// SeedStations loads the static station reference table. Existing
// codes are left alone; the table is seeded once and rarely updated.
func (s *Store) SeedStations(ctx context.Context, stations []models.Station) (int, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO stations (station_code, station_name, country, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (station_code) DO NOTHING
	`

	inserted := 0
	for _, station := range stations {
		result, err := tx.ExecContext(ctx, query,
			station.StationCode,
			station.StationName,
			station.Country,
			station.Latitude,
			station.Longitude,
		)
		if err != nil {
			return 0, fmt.Errorf("seeding station %s: %w", station.StationCode, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("getting rows affected: %w", err)
		}
		inserted += int(rows)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Info("Seeded stations", "inserted", inserted, "total", len(stations))
	return inserted, nil
}

// PruneRawPayloads deletes raw payloads fetched more than
// retentionDays ago. Retention 0 disables pruning entirely. Rows still
// referenced by a live disruption are kept to preserve the foreign key.
func (s *Store) PruneRawPayloads(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	query := `
		DELETE FROM raw_disruptions r
		WHERE r.fetched_at < now() - ($1 * INTERVAL '1 day')
		  AND NOT EXISTS (
		      SELECT 1 FROM disruptions d WHERE d.disruption_id = r.disruption_id
		  )
	`

	result, err := s.db.DB().ExecContext(ctx, query, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("pruning raw payloads: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return deleted, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
