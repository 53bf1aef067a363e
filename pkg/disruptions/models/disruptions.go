package models

import (
	"time"
)

// APIDisruption is the raw record shape returned by the disruption-listing
// endpoint. Timestamps go through CustomTime so a single malformed record
// fails its own unmarshal instead of the whole batch.
type APIDisruption struct {
	ID          string            `json:"id" validate:"required"`
	Type        string            `json:"type" validate:"required"`
	Title       string            `json:"title" validate:"required,min=6"`
	Description string            `json:"description"`
	Start       CustomTime        `json:"start"`
	End         *CustomTime       `json:"end"`
	IsActive    bool              `json:"isActive"`
	Routes      []APIRouteStation `json:"routes"`
}

// APIRouteStation is one affected station inside a disruption record
type APIRouteStation struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// APIStation is one entry of the static station-listing endpoint,
// used to seed the stations reference table
type APIStation struct {
	Code      string  `json:"code" validate:"required"`
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Disruption is the normalized projection persisted in the disruptions table.
// EndTime and DurationMinutes are nil for ongoing disruptions.
type Disruption struct {
	DisruptionID     string
	Type             string
	Title            string
	Description      string
	StartTime        time.Time
	EndTime          *time.Time
	DurationMinutes  *int
	ImpactLevel      int
	AffectedStations string // comma-delimited station codes
	IsResolved       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RawDisruption is the immutable append-only record kept for replay
type RawDisruption struct {
	DisruptionID string
	RawPayload   []byte
	FetchedAt    time.Time
}

// Station is the static reference entity, seeded once
type Station struct {
	StationCode string
	StationName string
	Country     string
	Latitude    float64
	Longitude   float64
}

// DailyStat is one fully recomputable rollup row per calendar date
type DailyStat struct {
	StatDate            time.Time
	TotalDisruptions    int
	AvgDurationMinutes  float64
	MaxDurationMinutes  int
	MostAffectedStation string
	PeakHour            int
}

// IngestRun records the outcome of one ETL cycle
type IngestRun struct {
	RunID         int
	StartedAt     time.Time
	FinishedAt    time.Time
	Status        string
	FetchedCount  int
	ValidCount    int
	RejectedCount int
	UpsertedCount int
	ErrorMessage  string
}
