package calibration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

func calReading(sensor string, rt models.ReadingType, value float64) models.Reading {
	return models.Reading{
		SensorID:    sensor,
		Timestamp:   time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC),
		ReadingType: rt,
		Value:       value,
	}
}

func TestLookupTiers(t *testing.T) {
	n := NewNormalizer([]models.CalibrationProfile{
		{SensorID: "field-01", ReadingType: models.ReadingTemperature, Offset: 1, Scale: 2},
		{SensorID: "field-01", Offset: 3, Scale: 1},
		{ReadingType: models.ReadingHumidity, Offset: 0, Scale: 0.5},
	}, false, nil)

	p, ok := n.Lookup("field-01", models.ReadingTemperature)
	require.True(t, ok)
	assert.Equal(t, 2.0, p.Scale)

	// Sensor-wide profile covers types without a dedicated entry.
	p, ok = n.Lookup("field-01", models.ReadingSoilMoisture)
	require.True(t, ok)
	assert.Equal(t, 3.0, p.Offset)

	// Type default covers unknown sensors.
	p, ok = n.Lookup("field-99", models.ReadingHumidity)
	require.True(t, ok)
	assert.Equal(t, 0.5, p.Scale)

	// Nothing matches: identity.
	p, ok = n.Lookup("field-99", models.ReadingTemperature)
	assert.False(t, ok)
	assert.Equal(t, models.IdentityProfile, p)
}

func TestApplyOffsetThenScale(t *testing.T) {
	n := NewNormalizer([]models.CalibrationProfile{
		{SensorID: "field-01", ReadingType: models.ReadingTemperature, Offset: 2, Scale: 1.5},
	}, false, nil)

	out, err := n.Apply([]models.Reading{calReading("field-01", models.ReadingTemperature, 10)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 18.0, out[0].Value)
}

func TestApplyIdentityFallbackCounted(t *testing.T) {
	n := NewNormalizer(nil, false, nil)

	out, err := n.Apply([]models.Reading{
		calReading("field-01", models.ReadingTemperature, 10),
		calReading("field-01", models.ReadingHumidity, 50),
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, out[0].Value)
	assert.Equal(t, map[string]int{"field-01": 2}, n.FallbackCounts())
}

func TestApplyMandatoryMissFails(t *testing.T) {
	n := NewNormalizer(nil, true, nil)

	_, err := n.Apply([]models.Reading{calReading("field-01", models.ReadingTemperature, 10)})
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeCalibration))
	assert.False(t, errors.IsRunFatal(err))
}

func TestVerifyScopedToMandatory(t *testing.T) {
	readings := []models.Reading{calReading("field-01", models.ReadingTemperature, 10)}

	assert.NoError(t, NewNormalizer(nil, false, nil).Verify(readings))

	err := NewNormalizer(nil, true, nil).Verify(readings)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeCalibration))

	covered := NewNormalizer([]models.CalibrationProfile{
		{ReadingType: models.ReadingTemperature, Offset: 0, Scale: 1.1},
	}, true, nil)
	assert.NoError(t, covered.Verify(readings))
}

func TestLoadRejectsZeroScale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"sensor_id":"field-01","offset":1,"scale":0}]`), 0o644))

	_, err := Load(path, false, nil)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeCalibration))
}

func TestLoadMissingFileOptionalVsMandatory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")

	n, err := Load(path, false, nil)
	require.NoError(t, err)
	_, ok := n.Lookup("field-01", models.ReadingTemperature)
	assert.False(t, ok)

	_, err = Load(path, true, nil)
	require.Error(t, err)
}
