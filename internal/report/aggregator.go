package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/nlrail-data/internal/common/db"
	"github.com/nlrail-data/internal/common/logger"
	"github.com/nlrail-data/internal/ingest/transform"
)

// Aggregator exposes the parameterized analytical reads. Everything
// here is side-effect-free; no method mutates state.
type Aggregator struct {
	db     *db.DB
	logger logger.Logger
}

func New(database *db.DB) *Aggregator {
	return &Aggregator{
		db:     database,
		logger: database.Logger(),
	}
}

// builder returns a squirrel statement builder with Postgres placeholders
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// RollingTypeTotal is one (date, type) cell with its trailing-window total
type RollingTypeTotal struct {
	Date               time.Time
	Type               string
	IncidentCount      int
	AvgDurationMinutes sql.NullFloat64
	RollingTotal       int
}

// RollingTotalsByType returns per-type daily incident counts over the
// trailing lookback, each with its rolling windowDays-day total. The
// rolling total for a date covers that date and the preceding
// windowDays-1 calendar days, gaps included.
func (a *Aggregator) RollingTotalsByType(ctx context.Context, windowDays, lookbackDays int) ([]RollingTypeTotal, error) {
	if windowDays < 1 || lookbackDays < 1 {
		return nil, fmt.Errorf("window and lookback must be at least one day")
	}

	// The frame offset must be a literal, so the validated ints are
	// formatted in; all data values stay parameterized.
	query := fmt.Sprintf(`
		WITH daily AS (
			SELECT start_time::date AS day,
			       type,
			       COUNT(*)              AS incident_count,
			       AVG(duration_minutes) AS avg_duration_minutes
			FROM disruptions
			WHERE start_time >= now() - INTERVAL '%d days'
			GROUP BY day, type
		)
		SELECT day,
		       type,
		       incident_count,
		       avg_duration_minutes,
		       SUM(incident_count) OVER (
		           PARTITION BY type
		           ORDER BY day
		           RANGE BETWEEN INTERVAL '%d days' PRECEDING AND CURRENT ROW
		       ) AS rolling_total
		FROM daily
		ORDER BY day DESC, incident_count DESC
	`, lookbackDays, windowDays-1)

	rows, err := a.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying rolling totals: %w", err)
	}
	defer rows.Close()

	var totals []RollingTypeTotal
	for rows.Next() {
		var t RollingTypeTotal
		if err := rows.Scan(&t.Date, &t.Type, &t.IncidentCount, &t.AvgDurationMinutes, &t.RollingTotal); err != nil {
			return nil, fmt.Errorf("scanning rolling total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rolling totals: %w", err)
	}

	return totals, nil
}

// StationPercentile ranks one station by incident count
type StationPercentile struct {
	StationCode     string
	DisruptionCount int
	Percentile      float64
}

// StationPercentiles returns every affected station with its incident
// count and PERCENT_RANK position, most problematic first
func (a *Aggregator) StationPercentiles(ctx context.Context) ([]StationPercentile, error) {
	query := `
		SELECT code AS station_code,
		       COUNT(*) AS disruption_count,
		       PERCENT_RANK() OVER (ORDER BY COUNT(*)) AS severity_percentile
		FROM disruptions,
		     unnest(string_to_array(affected_stations, ',')) AS code
		WHERE affected_stations <> ''
		GROUP BY code
		ORDER BY disruption_count DESC, code
	`

	rows, err := a.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying station percentiles: %w", err)
	}
	defer rows.Close()

	var stations []StationPercentile
	for rows.Next() {
		var s StationPercentile
		if err := rows.Scan(&s.StationCode, &s.DisruptionCount, &s.Percentile); err != nil {
			return nil, fmt.Errorf("scanning station percentile: %w", err)
		}
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating station percentiles: %w", err)
	}

	return stations, nil
}

// CalamityShare is the per-date share of calamity disruptions
type CalamityShare struct {
	Date            time.Time
	IncidentCount   int
	CalamityCount   int
	CalamityRatePct float64
}

// CalamityRatePerDay returns, for each date in the trailing lookback,
// the percentage of that day's disruptions that are calamities
func (a *Aggregator) CalamityRatePerDay(ctx context.Context, lookbackDays int) ([]CalamityShare, error) {
	if lookbackDays < 1 {
		return nil, fmt.Errorf("lookback must be at least one day")
	}

	query := `
		SELECT start_time::date AS day,
		       COUNT(*) AS incident_count,
		       SUM(CASE WHEN type = $1 THEN 1 ELSE 0 END) AS calamity_count,
		       ROUND(
		           100.0 * SUM(CASE WHEN type = $1 THEN 1 ELSE 0 END) / COUNT(*),
		           2
		       ) AS calamity_rate_pct
		FROM disruptions
		WHERE start_time >= now() - ($2 * INTERVAL '1 day')
		GROUP BY day
		ORDER BY day DESC
	`

	rows, err := a.db.DB().QueryContext(ctx, query, transform.TypeCalamity, lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("querying calamity rates: %w", err)
	}
	defer rows.Close()

	var shares []CalamityShare
	for rows.Next() {
		var s CalamityShare
		if err := rows.Scan(&s.Date, &s.IncidentCount, &s.CalamityCount, &s.CalamityRatePct); err != nil {
			return nil, fmt.Errorf("scanning calamity rate: %w", err)
		}
		shares = append(shares, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating calamity rates: %w", err)
	}

	return shares, nil
}

// DayOverDay compares a date against the preceding day
type DayOverDay struct {
	Date          time.Time
	Count         int
	PreviousCount int
	Delta         int
	PercentChange float64
}

// DayOverDayDelta returns the incident count for the given date, the
// count for the day before, and their delta and percent change.
// Percent change against an empty previous day is reported as zero.
func (a *Aggregator) DayOverDayDelta(ctx context.Context, date time.Time) (*DayOverDay, error) {
	day := date.Format("2006-01-02")

	count, err := a.countOnDate(ctx, day)
	if err != nil {
		return nil, err
	}

	previousDay := date.AddDate(0, 0, -1).Format("2006-01-02")
	previousCount, err := a.countOnDate(ctx, previousDay)
	if err != nil {
		return nil, err
	}

	result := &DayOverDay{
		Date:          date,
		Count:         count,
		PreviousCount: previousCount,
		Delta:         count - previousCount,
	}
	if previousCount > 0 {
		result.PercentChange = 100.0 * float64(count-previousCount) / float64(previousCount)
	}

	return result, nil
}

func (a *Aggregator) countOnDate(ctx context.Context, day string) (int, error) {
	query, args, err := builder().
		Select("COUNT(*)").
		From("disruptions").
		Where("start_time::date = ?::date", day).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := a.db.DB().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting disruptions on %s: %w", day, err)
	}
	return count, nil
}

// HourCount is one hour-of-day bucket
type HourCount struct {
	Hour  int
	Count int
}

// PeakHours ranks hours of the day by incident count over the trailing
// lookback window, busiest hour first
func (a *Aggregator) PeakHours(ctx context.Context, lookbackDays int) ([]HourCount, error) {
	if lookbackDays < 1 {
		return nil, fmt.Errorf("lookback must be at least one day")
	}

	query, args, err := builder().
		Select("EXTRACT(HOUR FROM start_time)::int AS hour", "COUNT(*) AS incident_count").
		From("disruptions").
		Where("start_time >= now() - (? * INTERVAL '1 day')", lookbackDays).
		GroupBy("hour").
		OrderBy("incident_count DESC", "hour ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building peak hours query: %w", err)
	}

	rows, err := a.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying peak hours: %w", err)
	}
	defer rows.Close()

	var hours []HourCount
	for rows.Next() {
		var h HourCount
		if err := rows.Scan(&h.Hour, &h.Count); err != nil {
			return nil, fmt.Errorf("scanning peak hour: %w", err)
		}
		hours = append(hours, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating peak hours: %w", err)
	}

	return hours, nil
}
