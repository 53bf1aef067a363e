package transform

import (
	"strings"
	"time"

	"github.com/nlrail-data/pkg/disruptions/models"
)

// Disruption types with dedicated impact tiers
const (
	TypeCalamity    = "calamity"
	TypeMaintenance = "maintenance"
	TypeDisruption  = "disruption"
)

// Clean maps a validated API record to the normalized row. Pure
// function, no I/O; now is passed in so rows are reproducible.
func Clean(record models.APIDisruption, now time.Time) models.Disruption {
	disruptionType := strings.ToLower(strings.TrimSpace(record.Type))

	var endTime *time.Time
	var duration *int
	if record.End != nil && !record.End.IsZero() {
		t := record.End.Time
		endTime = &t
		minutes := int(t.Sub(record.Start.Time).Minutes())
		duration = &minutes
	}

	return models.Disruption{
		DisruptionID:     record.ID,
		Type:             disruptionType,
		Title:            strings.TrimSpace(record.Title),
		Description:      strings.TrimSpace(record.Description),
		StartTime:        record.Start.Time,
		EndTime:          endTime,
		DurationMinutes:  duration,
		ImpactLevel:      ImpactLevel(disruptionType, duration),
		AffectedStations: flattenStations(record.Routes),
		IsResolved:       !record.IsActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ImpactLevel derives the 1-5 severity score from type and duration.
// A nil duration (ongoing disruption) degrades duration-dependent
// types to their lower tier.
func ImpactLevel(disruptionType string, durationMinutes *int) int {
	switch disruptionType {
	case TypeCalamity:
		return 5
	case TypeMaintenance:
		if durationMinutes != nil && *durationMinutes > 240 {
			return 4
		}
		return 3
	case TypeDisruption:
		if durationMinutes != nil && *durationMinutes > 120 {
			return 4
		}
		return 3
	default:
		return 2
	}
}

// flattenStations joins the affected station codes into the canonical
// comma-delimited form
func flattenStations(routes []models.APIRouteStation) string {
	if len(routes) == 0 {
		return ""
	}

	codes := make([]string, 0, len(routes))
	for _, route := range routes {
		code := strings.TrimSpace(route.Code)
		if code != "" {
			codes = append(codes, code)
		}
	}
	return strings.Join(codes, ",")
}
