package models

import (
	"fmt"
	"time"
)

// ReadingType identifies the physical quantity a sensor reports
type ReadingType string

const (
	ReadingTemperature    ReadingType = "temperature"
	ReadingHumidity       ReadingType = "humidity"
	ReadingSoilMoisture   ReadingType = "soil_moisture"
	ReadingLightIntensity ReadingType = "light_intensity"
)

// KnownReadingTypes lists every reading type accepted at the batch boundary
var KnownReadingTypes = []ReadingType{
	ReadingTemperature,
	ReadingHumidity,
	ReadingSoilMoisture,
	ReadingLightIntensity,
}

// IsValid reports whether the reading type is one of the known enum values
func (rt ReadingType) IsValid() bool {
	for _, known := range KnownReadingTypes {
		if rt == known {
			return true
		}
	}
	return false
}

// Reading is a single timestamped sensor observation. Timestamps are assumed
// hourly-aligned; (SensorID, Timestamp, ReadingType) is the natural key and
// duplicates on it must be resolved, never silently retained.
type Reading struct {
	SensorID      string      `json:"sensor_id"`
	Timestamp     time.Time   `json:"timestamp"`
	ReadingType   ReadingType `json:"reading_type"`
	Value         float64     `json:"value"`
	BatteryLevel  float64     `json:"battery_level"`
	RawFileOrigin string      `json:"raw_file_origin"`
}

// NaturalKey uniquely identifies a reading within a batch
type NaturalKey struct {
	SensorID    string
	Timestamp   time.Time
	ReadingType ReadingType
}

// Key returns the reading's natural key
func (r Reading) Key() NaturalKey {
	return NaturalKey{
		SensorID:    r.SensorID,
		Timestamp:   r.Timestamp,
		ReadingType: r.ReadingType,
	}
}

// String renders the key for logs and error details
func (k NaturalKey) String() string {
	return fmt.Sprintf("%s/%s@%s", k.SensorID, k.ReadingType, k.Timestamp.UTC().Format(time.RFC3339))
}

// ProcessedReading is a reading after cleaning, calibration and derivation.
// This is the unit written to partitioned storage.
type ProcessedReading struct {
	Reading

	CalibratedValue float64 `json:"calibrated_value"`
	DailyAvg        float64 `json:"daily_avg"`
	Rolling7dAvg    float64 `json:"rolling_7d_avg"`
	IsAnomaly       bool    `json:"is_anomaly"`
	IsImputed       bool    `json:"is_imputed"`
}

// Date returns the calendar date the reading belongs to, in UTC
func (r Reading) Date() time.Time {
	return r.Timestamp.UTC().Truncate(24 * time.Hour)
}

// Batch is the unit of ingestion: the readings extracted from one source
// file, tagged with the date derived from the filename. A batch is never
// mutated after commit.
type Batch struct {
	BatchID    string    `json:"batch_id"`
	SourceFile string    `json:"source_file"`
	BatchDate  time.Time `json:"batch_date"`
	Readings   []Reading `json:"readings"`
}

// CalibrationProfile holds the per-sensor (offset, scale) pair applied as
// value' = (value + offset) * scale. Immutable reference data.
type CalibrationProfile struct {
	SensorID    string      `json:"sensor_id,omitempty"`
	ReadingType ReadingType `json:"reading_type,omitempty"`
	Offset      float64     `json:"offset"`
	Scale       float64     `json:"scale"`
}

// IdentityProfile is the fallback applied when no profile matches and
// calibration is not mandatory
var IdentityProfile = CalibrationProfile{Offset: 0, Scale: 1}

// Apply returns the calibrated value
func (p CalibrationProfile) Apply(value float64) float64 {
	return (value + p.Offset) * p.Scale
}

// CheckpointRecord ties a committed batch to its commit metadata
type CheckpointRecord struct {
	BatchID    string    `json:"batch_id"`
	CommitTime time.Time `json:"commit_time"`
	RunID      string    `json:"run_id,omitempty"`
	Partitions []string  `json:"partitions,omitempty"`
}

// ValueRange is the plausible physical bound for a reading type
type ValueRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether v lies inside the range, inclusive
func (vr ValueRange) Contains(v float64) bool {
	return v >= vr.Low && v <= vr.High
}

// DefaultValueRanges are the physical bounds used for range validation and
// anomaly flagging when the configuration does not override them
var DefaultValueRanges = map[ReadingType]ValueRange{
	ReadingTemperature:    {Low: 0, High: 50},
	ReadingHumidity:       {Low: 10, High: 100},
	ReadingSoilMoisture:   {Low: 0, High: 60},
	ReadingLightIntensity: {Low: 0, High: 1000},
}
