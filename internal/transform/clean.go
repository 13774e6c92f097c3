package transform

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/pkg/models"
)

// CleanResult carries the counts the quality report needs alongside the
// surviving readings
type CleanResult struct {
	Readings        []models.Reading
	NullKeysDropped int
	MissingValues   int
	BatteryFilled   int
}

// Cleaner drops readings that cannot be keyed or valued and normalizes the
// battery column
type Cleaner struct {
	logger *logrus.Logger
}

// NewCleaner creates a cleaner
func NewCleaner(logger *logrus.Logger) *Cleaner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Cleaner{logger: logger}
}

// Clean removes readings with an empty sensor ID or zero timestamp (they
// cannot participate in the natural key) and readings with a missing value.
// Missing values are never fabricated into the stream; they surface in the
// quality report instead. An unknown battery level is set to -1.
func (c *Cleaner) Clean(readings []models.Reading) CleanResult {
	result := CleanResult{Readings: make([]models.Reading, 0, len(readings))}

	for _, r := range readings {
		if r.SensorID == "" || r.Timestamp.IsZero() {
			result.NullKeysDropped++
			continue
		}
		if math.IsNaN(r.Value) {
			result.MissingValues++
			continue
		}
		if math.IsNaN(r.BatteryLevel) {
			r.BatteryLevel = -1
			result.BatteryFilled++
		}
		result.Readings = append(result.Readings, r)
	}

	if result.NullKeysDropped > 0 || result.MissingValues > 0 {
		c.logger.WithFields(logrus.Fields{
			"null_keys":      result.NullKeysDropped,
			"missing_values": result.MissingValues,
		}).Info("Dropped unkeyable or valueless readings")
	}

	return result
}
