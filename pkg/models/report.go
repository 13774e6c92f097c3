package models

import "time"

// QualityReport is the auditable summary computed independently over the raw
// input and the committed output of a run. It is regenerated every run and
// never merged with a prior report.
type QualityReport struct {
	RunID       string    `json:"run_id"`
	Dataset     string    `json:"dataset"` // "input" or "output"
	GeneratedAt time.Time `json:"generated_at"`

	SchemaChecks    []SchemaCheck    `json:"schema_checks"`
	RangeChecks     []RangeCheck     `json:"range_checks"`
	SensorCoverage  []SensorCoverage `json:"sensor_coverage"`
	AnomalyProfiles []AnomalyProfile `json:"anomaly_profiles"`
	MissingProfiles []MissingProfile `json:"missing_profiles"`
}

// SchemaCheck is the pass/fail conformance result for one column
type SchemaCheck struct {
	Column string `json:"column"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RangeCheck counts values outside the plausible physical bounds for one
// reading type
type RangeCheck struct {
	ReadingType ReadingType `json:"reading_type"`
	Total       int         `json:"total"`
	OutOfRange  int         `json:"out_of_range"`
}

// GapRange is a contiguous run of missing hourly slots, inclusive on both
// ends
type GapRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Hours returns the number of hourly slots covered by the gap
func (g GapRange) Hours() int {
	return int(g.End.Sub(g.Start)/time.Hour) + 1
}

// SensorCoverage summarises hourly time coverage for one sensor over the
// span [min observed, max observed]
type SensorCoverage struct {
	SensorID      string     `json:"sensor_id"`
	ObservedHours int        `json:"observed_hours"`
	ExpectedHours int        `json:"expected_hours"`
	MissingHours  int        `json:"missing_hours"`
	Gaps          []GapRange `json:"gaps"`
}

// AnomalyProfile gives the anomaly rate for one reading type
type AnomalyProfile struct {
	ReadingType ReadingType `json:"reading_type"`
	Total       int         `json:"total"`
	Anomalies   int         `json:"anomalies"`
	PctAnomaly  float64     `json:"pct_anomaly"`
}

// MissingProfile gives the share of missing hourly slots for one reading type
type MissingProfile struct {
	ReadingType ReadingType `json:"reading_type"`
	Expected    int         `json:"expected"`
	Missing     int         `json:"missing"`
	PctMissing  float64     `json:"pct_missing"`
}

// RunSummary aggregates the per-batch outcomes of one pipeline invocation
type RunSummary struct {
	RunID             string        `json:"run_id"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	FilesFound        int           `json:"files_found"`
	BatchesCommitted  int           `json:"batches_committed"`
	BatchesSkipped    int           `json:"batches_skipped"`
	RecordsIngested   int           `json:"records_ingested"`
	RecordsWritten    int           `json:"records_written"`
	DuplicatesRemoved int           `json:"duplicates_removed"`
	OutliersRemoved   int           `json:"outliers_removed"`
	NullKeysDropped   int           `json:"null_keys_dropped"`
	MissingValues     int           `json:"missing_values"`
	BatteryFilled     int           `json:"battery_filled"`
	CalibrationMisses int           `json:"calibration_misses"`
}
