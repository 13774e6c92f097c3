package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/agripipe/pkg/models"
)

func hourly(day, hour int) time.Time {
	return time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC)
}

func TestDetectGapsSingleRange(t *testing.T) {
	observed := []time.Time{
		hourly(15, 0), hourly(15, 1), hourly(15, 2),
		// 03:00 and 04:00 missing
		hourly(15, 5), hourly(15, 6),
	}

	gaps := DetectGaps(observed)
	require.Len(t, gaps, 1)
	assert.Equal(t, hourly(15, 3), gaps[0].Start)
	assert.Equal(t, hourly(15, 4).Add(59*time.Minute), gaps[0].End)
	assert.Equal(t, 2, gaps[0].Hours())
}

func TestDetectGapsMultipleRanges(t *testing.T) {
	observed := []time.Time{
		hourly(15, 0), hourly(15, 2), hourly(15, 3), hourly(15, 6),
	}

	gaps := DetectGaps(observed)
	require.Len(t, gaps, 2)
	assert.Equal(t, hourly(15, 1), gaps[0].Start)
	assert.Equal(t, 1, gaps[0].Hours())
	assert.Equal(t, hourly(15, 4), gaps[1].Start)
	assert.Equal(t, 2, gaps[1].Hours())
}

func TestDetectGapsNoneWhenContiguous(t *testing.T) {
	observed := []time.Time{hourly(15, 0), hourly(15, 1), hourly(15, 2)}
	assert.Empty(t, DetectGaps(observed))
	assert.Nil(t, DetectGaps(nil))
}

func TestDetectGapsIgnoresSubHourJitter(t *testing.T) {
	// Two readings inside the same hour fill a single slot.
	observed := []time.Time{
		hourly(15, 0),
		hourly(15, 0).Add(30 * time.Minute),
		hourly(15, 2),
	}

	gaps := DetectGaps(observed)
	require.Len(t, gaps, 1)
	assert.Equal(t, hourly(15, 1), gaps[0].Start)
	assert.Equal(t, 1, gaps[0].Hours())
}

func TestCoverageForSensors(t *testing.T) {
	readings := []models.Reading{
		{SensorID: "field-02", Timestamp: hourly(15, 0), ReadingType: models.ReadingTemperature},
		{SensorID: "field-01", Timestamp: hourly(15, 0), ReadingType: models.ReadingTemperature},
		{SensorID: "field-01", Timestamp: hourly(15, 3), ReadingType: models.ReadingTemperature},
	}

	coverage := CoverageForSensors(readings)
	require.Len(t, coverage, 2)
	assert.Equal(t, "field-01", coverage[0].SensorID)
	assert.Equal(t, "field-02", coverage[1].SensorID)

	first := coverage[0]
	assert.Equal(t, 2, first.ObservedHours)
	assert.Equal(t, 4, first.ExpectedHours)
	assert.Equal(t, 2, first.MissingHours)
	require.Len(t, first.Gaps, 1)
	assert.Equal(t, 2, first.Gaps[0].Hours())
}
