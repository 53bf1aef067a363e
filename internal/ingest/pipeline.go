package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nlrail-data/internal/common/config"
	"github.com/nlrail-data/internal/common/db"
	"github.com/nlrail-data/internal/common/logger"
	"github.com/nlrail-data/internal/ingest/transform"
	"github.com/nlrail-data/internal/ingest/validate"
	"github.com/nlrail-data/internal/store"
	"github.com/nlrail-data/pkg/disruptions/models"
)

// Fetcher is the slice of the API client the pipeline needs
type Fetcher interface {
	FetchDisruptions(ctx context.Context, since *time.Time) ([]json.RawMessage, error)
	FetchStations(ctx context.Context) ([]models.APIStation, error)
}

// Pipeline runs one sequential extract-transform-load cycle. All
// writes for a batch happen inside a single transaction; a store
// failure rolls the whole batch back.
type Pipeline struct {
	client    Fetcher
	validator *validate.Validator
	store     *store.Store
	runs      *db.RunTracker
	database  *db.DB
	config    config.PipelineConfig
	logger    logger.Logger

	now func() time.Time
}

func NewPipeline(
	client Fetcher,
	database *db.DB,
	cfg config.PipelineConfig,
	log logger.Logger,
) *Pipeline {
	return &Pipeline{
		client:    client,
		validator: validate.New(log),
		store:     store.New(database),
		runs:      db.NewRunTracker(database),
		database:  database,
		config:    cfg,
		logger:    log,
		now:       time.Now,
	}
}

// RunSummary reports what one cycle did
type RunSummary struct {
	RunID    int
	Fetched  int
	Valid    int
	Rejected int
	Upserted int
}

// Run executes one full cycle: fetch, validate, clean, upsert, and
// recompute daily stats for every affected date
func (p *Pipeline) Run(ctx context.Context) (*RunSummary, error) {
	startedAt := p.now()

	if err := p.seedStationsIfEmpty(ctx); err != nil {
		// Reference data is a convenience; ingest still proceeds
		p.logger.Warn("Station seeding skipped", "error", err)
	}

	since, err := p.fetchAnchor(ctx, startedAt)
	if err != nil {
		return nil, err
	}

	runID, err := p.runs.BeginRun(ctx, startedAt)
	if err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}

	summary, err := p.execute(ctx, runID, since)
	if err != nil {
		if failErr := p.runs.FailRun(ctx, runID, err); failErr != nil {
			p.logger.Error("Failed to record run failure", "run_id", runID, "error", failErr)
		}
		return nil, err
	}

	if err := p.runs.CompleteRun(ctx, runID, summary.Fetched, summary.Valid, summary.Rejected, summary.Upserted); err != nil {
		// The batch is already committed; a bookkeeping failure must not
		// turn a successful cycle into a failed one. The next run falls
		// back to the last recorded anchor and the upsert absorbs the
		// wider re-fetch.
		p.logger.Error("Failed to record run completion", "run_id", runID, "error", err)
	}

	if p.config.RawRetentionDays > 0 {
		deleted, err := p.store.PruneRawPayloads(ctx, p.config.RawRetentionDays)
		if err != nil {
			p.logger.Warn("Raw payload pruning failed", "error", err)
		} else if deleted > 0 {
			p.logger.Info("Pruned raw payloads", "deleted", deleted, "retention_days", p.config.RawRetentionDays)
		}
	}

	return summary, nil
}

func (p *Pipeline) execute(ctx context.Context, runID int, since *time.Time) (*RunSummary, error) {
	records, err := p.client.FetchDisruptions(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("fetch stage: %w", err)
	}

	valid, rejected := p.validator.Partition(records)

	summary := &RunSummary{
		RunID:    runID,
		Fetched:  len(records),
		Valid:    len(valid),
		Rejected: len(rejected),
	}

	fetchedAt := p.now()

	tx, err := p.database.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	affectedDates := map[string]time.Time{}

	for _, record := range valid {
		cleaned := transform.Clean(record.Record, fetchedAt)

		raw := models.RawDisruption{
			DisruptionID: cleaned.DisruptionID,
			RawPayload:   record.Raw,
			FetchedAt:    fetchedAt,
		}
		if err := p.store.InsertRaw(ctx, tx, raw); err != nil {
			return nil, fmt.Errorf("store stage: %w", err)
		}

		written, err := p.store.UpsertDisruption(ctx, tx, cleaned)
		if err != nil {
			return nil, fmt.Errorf("store stage: %w", err)
		}
		if written {
			summary.Upserted++
			day := cleaned.StartTime.Format("2006-01-02")
			affectedDates[day] = cleaned.StartTime
		}
	}

	// Trailing backfill catches updates to disruptions that started
	// on earlier days (late resolutions shifting duration and impact)
	for i := 0; i < p.config.StatsBackfillDays; i++ {
		d := fetchedAt.AddDate(0, 0, -i)
		affectedDates[d.Format("2006-01-02")] = d
	}

	for _, date := range affectedDates {
		if err := p.store.RecomputeDailyStats(ctx, tx, date); err != nil {
			return nil, fmt.Errorf("aggregate stage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing batch: %w", err)
	}

	p.logger.Info("Batch committed",
		"run_id", runID,
		"fetched", summary.Fetched,
		"valid", summary.Valid,
		"rejected", summary.Rejected,
		"upserted", summary.Upserted,
		"dates_recomputed", len(affectedDates))

	return summary, nil
}

// fetchAnchor picks the incremental `since` bound: the start of the
// last successful run, or the configured lookback on the first run
func (p *Pipeline) fetchAnchor(ctx context.Context, startedAt time.Time) (*time.Time, error) {
	lastRun, err := p.runs.LastSuccessfulRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving fetch anchor: %w", err)
	}

	if lastRun != nil {
		since := lastRun.StartedAt
		p.logger.Debug("Incremental fetch", "since", since)
		return &since, nil
	}

	if p.config.FetchLookback > 0 {
		since := startedAt.Add(-p.config.FetchLookback)
		p.logger.Info("First run, using configured lookback", "since", since)
		return &since, nil
	}

	return nil, nil
}

func (p *Pipeline) seedStationsIfEmpty(ctx context.Context) error {
	count, err := p.store.CountStations(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	apiStations, err := p.client.FetchStations(ctx)
	if err != nil {
		return err
	}

	stations := make([]models.Station, 0, len(apiStations))
	for _, s := range apiStations {
		stations = append(stations, models.Station{
			StationCode: s.Code,
			StationName: s.Name,
			Country:     s.Country,
			Latitude:    s.Latitude,
			Longitude:   s.Longitude,
		})
	}

	_, err = p.store.SeedStations(ctx, stations)
	return err
}
