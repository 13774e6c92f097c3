package transform

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/agripipe/pkg/models"
)

func reading(sensor string, hour int, rt models.ReadingType, value float64) models.Reading {
	return models.Reading{
		SensorID:      sensor,
		Timestamp:     time.Date(2024, 3, 15, hour, 0, 0, 0, time.UTC),
		ReadingType:   rt,
		Value:         value,
		BatteryLevel:  90,
		RawFileOrigin: "data/raw/2024-03-15.csv",
	}
}

func TestCleanDropsNullKeys(t *testing.T) {
	noSensor := reading("", 0, models.ReadingTemperature, 20)
	noTimestamp := reading("field-01", 0, models.ReadingTemperature, 20)
	noTimestamp.Timestamp = time.Time{}
	ok := reading("field-01", 1, models.ReadingTemperature, 20)

	result := NewCleaner(nil).Clean([]models.Reading{noSensor, noTimestamp, ok})
	require.Len(t, result.Readings, 1)
	assert.Equal(t, 2, result.NullKeysDropped)
	assert.Equal(t, "field-01", result.Readings[0].SensorID)
}

func TestCleanDropsMissingValuesWithoutImputing(t *testing.T) {
	missing := reading("field-01", 0, models.ReadingTemperature, math.NaN())
	ok := reading("field-01", 1, models.ReadingTemperature, 20)

	result := NewCleaner(nil).Clean([]models.Reading{missing, ok})
	require.Len(t, result.Readings, 1)
	assert.Equal(t, 1, result.MissingValues)
	assert.Equal(t, 20.0, result.Readings[0].Value)
}

func TestCleanFillsMissingBattery(t *testing.T) {
	r := reading("field-01", 0, models.ReadingTemperature, 20)
	r.BatteryLevel = math.NaN()

	result := NewCleaner(nil).Clean([]models.Reading{r})
	require.Len(t, result.Readings, 1)
	assert.Equal(t, -1.0, result.Readings[0].BatteryLevel)
	assert.Equal(t, 1, result.BatteryFilled)
}
