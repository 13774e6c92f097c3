package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/agripipe/pkg/models"
)

func dayReading(day int, value float64) models.Reading {
	return models.Reading{
		SensorID:     "field-01",
		Timestamp:    time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC),
		ReadingType:  models.ReadingTemperature,
		Value:        value,
		BatteryLevel: 90,
	}
}

func TestDeriveDailyAverage(t *testing.T) {
	readings := []models.Reading{
		dayReading(1, 10),
		dayReading(1, 30),
	}
	readings[1].Timestamp = readings[1].Timestamp.Add(2 * time.Hour)

	processed := NewDeriver(7, models.DefaultValueRanges, nil).Derive(readings, readings)
	require.Len(t, processed, 2)
	assert.Equal(t, 20.0, processed[0].DailyAvg)
	assert.Equal(t, 20.0, processed[1].DailyAvg)
}

func TestDeriveRollingWindowOverSevenDays(t *testing.T) {
	var readings []models.Reading
	for day := 1; day <= 7; day++ {
		readings = append(readings, dayReading(day, float64(day)*10))
	}

	processed := NewDeriver(7, models.DefaultValueRanges, nil).Derive(readings, readings)
	require.Len(t, processed, 7)

	// Day 7 averages the full window 10..70.
	last := processed[6]
	assert.Equal(t, 7, last.Timestamp.Day())
	assert.InDelta(t, 40.0, last.Rolling7dAvg, 1e-9)

	// Day 3 only sees three observed days.
	third := processed[2]
	assert.InDelta(t, 20.0, third.Rolling7dAvg, 1e-9)
}

func TestDeriveRollingSkipsUnobservedDays(t *testing.T) {
	readings := []models.Reading{
		dayReading(1, 10),
		dayReading(2, 20),
		dayReading(3, 30),
		dayReading(5, 50),
	}

	processed := NewDeriver(7, models.DefaultValueRanges, nil).Derive(readings, readings)
	require.Len(t, processed, 4)

	// Day 4 has no observations: it is absent from the window mean, not
	// counted as zero.
	assert.InDelta(t, 27.5, processed[3].Rolling7dAvg, 1e-9)
}

func TestDeriveFlagsAnomaliesWithoutRemoving(t *testing.T) {
	raw := []models.Reading{
		dayReading(1, 20),
		dayReading(2, 55),
	}

	processed := NewDeriver(7, models.DefaultValueRanges, nil).Derive(raw, raw)
	require.Len(t, processed, 2)
	assert.False(t, processed[0].IsAnomaly)
	assert.True(t, processed[1].IsAnomaly)
}

func TestDerivePreservesRawValueAlongsideCalibrated(t *testing.T) {
	raw := []models.Reading{dayReading(1, 20)}
	calibrated := []models.Reading{dayReading(1, 23)}

	processed := NewDeriver(7, models.DefaultValueRanges, nil).Derive(raw, calibrated)
	require.Len(t, processed, 1)
	assert.Equal(t, 20.0, processed[0].Value)
	assert.Equal(t, 23.0, processed[0].CalibratedValue)
	assert.False(t, processed[0].IsImputed)
}
