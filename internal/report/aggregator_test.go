package report

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlrail-data/internal/common/db"
	"github.com/nlrail-data/internal/common/logger"
)

func newMockAggregator(t *testing.T) (*Aggregator, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return New(db.Wrap(conn, logger.New(io.Discard))), mock
}

func TestRollingTotalsByType(t *testing.T) {
	a, mock := newMockAggregator(t)

	day2 := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	day1 := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"day", "type", "incident_count", "avg_duration_minutes", "rolling_total"}).
		AddRow(day2, "disruption", 3, 95.5, 5).
		AddRow(day1, "disruption", 2, 120.0, 2).
		AddRow(day1, "maintenance", 1, nil, 1)

	mock.ExpectQuery("SUM\\(incident_count\\) OVER").WillReturnRows(rows)

	totals, err := a.RollingTotalsByType(context.Background(), 7, 30)
	require.NoError(t, err)
	require.Len(t, totals, 3)

	// The rolling total for a date is the sum of daily counts for that
	// date and the preceding window
	assert.Equal(t, 5, totals[0].RollingTotal)
	assert.Equal(t, totals[0].RollingTotal, totals[0].IncidentCount+totals[1].IncidentCount)
	assert.False(t, totals[2].AvgDurationMinutes.Valid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollingTotalsRejectsBadWindow(t *testing.T) {
	a, _ := newMockAggregator(t)

	_, err := a.RollingTotalsByType(context.Background(), 0, 30)
	assert.Error(t, err)

	_, err = a.RollingTotalsByType(context.Background(), 7, 0)
	assert.Error(t, err)
}

func TestStationPercentiles(t *testing.T) {
	a, mock := newMockAggregator(t)

	rows := sqlmock.NewRows([]string{"station_code", "disruption_count", "severity_percentile"}).
		AddRow("UT", 14, 1.0).
		AddRow("ASD", 9, 0.5).
		AddRow("RTD", 2, 0.0)

	mock.ExpectQuery("PERCENT_RANK").WillReturnRows(rows)

	stations, err := a.StationPercentiles(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 3)
	assert.Equal(t, "UT", stations[0].StationCode)
	assert.Equal(t, 1.0, stations[0].Percentile)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalamityRatePerDay(t *testing.T) {
	a, mock := newMockAggregator(t)

	rows := sqlmock.NewRows([]string{"day", "incident_count", "calamity_count", "calamity_rate_pct"}).
		AddRow(time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), 8, 2, 25.0).
		AddRow(time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC), 5, 0, 0.0)

	mock.ExpectQuery("SUM\\(CASE WHEN type").
		WithArgs("calamity", 30).
		WillReturnRows(rows)

	shares, err := a.CalamityRatePerDay(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, shares, 2)

	assert.Equal(t, 8, shares[0].IncidentCount)
	assert.Equal(t, 2, shares[0].CalamityCount)
	assert.InDelta(t, 25.0, shares[0].CalamityRatePct, 0.001)
	assert.Zero(t, shares[1].CalamityRatePct)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalamityRatePerDayRejectsBadLookback(t *testing.T) {
	a, _ := newMockAggregator(t)

	_, err := a.CalamityRatePerDay(context.Background(), 0)
	assert.Error(t, err)
}

func TestDayOverDayDelta(t *testing.T) {
	a, mock := newMockAggregator(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("2026-08-20").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("2026-08-19").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	result, err := a.DayOverDayDelta(context.Background(), time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 6, result.Count)
	assert.Equal(t, 4, result.PreviousCount)
	assert.Equal(t, 2, result.Delta)
	assert.InDelta(t, 50.0, result.PercentChange, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDayOverDayDeltaEmptyPreviousDay(t *testing.T) {
	a, mock := newMockAggregator(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("2026-08-20").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("2026-08-19").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	result, err := a.DayOverDayDelta(context.Background(), time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Delta)
	assert.Zero(t, result.PercentChange, "percent change against an empty day reports zero")
}

func TestPeakHours(t *testing.T) {
	a, mock := newMockAggregator(t)

	rows := sqlmock.NewRows([]string{"hour", "incident_count"}).
		AddRow(8, 11).
		AddRow(17, 9).
		AddRow(2, 1)

	mock.ExpectQuery("EXTRACT\\(HOUR FROM start_time\\)").
		WithArgs(30).
		WillReturnRows(rows)

	hours, err := a.PeakHours(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, hours, 3)
	assert.Equal(t, HourCount{Hour: 8, Count: 11}, hours[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}
