package validate

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/nlrail-data/internal/common/logger"
	"github.com/nlrail-data/pkg/disruptions/models"
)

// ValidRecord pairs a typed record with the raw payload it was decoded
// from, so the store can keep the original bytes for replay
type ValidRecord struct {
	Record models.APIDisruption
	Raw    json.RawMessage
}

// Rejection describes one excluded record. DisruptionID is empty when
// the payload was too broken to recover an id from.
type Rejection struct {
	DisruptionID string
	Reason       string
}

// Validator checks raw records against the minimal schema and
// partitions them into valid and rejected subsets. A malformed record
// never aborts the batch.
type Validator struct {
	validate *validator.Validate
	logger   logger.Logger
}

func New(log logger.Logger) *Validator {
	return &Validator{
		validate: validator.New(),
		logger:   log,
	}
}

// Partition splits the raw records into valid and rejected subsets,
// logging each rejection with its reason
func (v *Validator) Partition(records []json.RawMessage) ([]ValidRecord, []Rejection) {
	valid := make([]ValidRecord, 0, len(records))
	var rejected []Rejection

	for i, raw := range records {
		record, err := v.check(raw)
		if err != nil {
			rejection := Rejection{
				DisruptionID: probeID(raw),
				Reason:       err.Error(),
			}
			v.logger.Warn("Rejected disruption record",
				"index", i,
				"disruption_id", rejection.DisruptionID,
				"reason", rejection.Reason)
			rejected = append(rejected, rejection)
			continue
		}

		valid = append(valid, ValidRecord{Record: *record, Raw: raw})
	}

	v.logger.Info("Validated batch",
		"total", len(records),
		"valid", len(valid),
		"rejected", len(rejected))

	return valid, rejected
}

func (v *Validator) check(raw json.RawMessage) (*models.APIDisruption, error) {
	var record models.APIDisruption
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}

	if err := v.validate.Struct(&record); err != nil {
		return nil, fmt.Errorf("schema check: %w", err)
	}

	if record.Start.IsZero() {
		return nil, fmt.Errorf("missing or unparseable start timestamp")
	}

	if record.End != nil && !record.End.IsZero() && record.End.Time.Before(record.Start.Time) {
		return nil, fmt.Errorf("end timestamp precedes start")
	}

	return &record, nil
}

// probeID tries to recover the record id from an otherwise malformed
// payload, for diagnostics
func probeID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.ID
}
