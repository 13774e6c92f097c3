package quality

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/agripipe/pkg/models"
)

func qReading(sensor string, hour int, rt models.ReadingType, value float64) models.Reading {
	return models.Reading{
		SensorID:     sensor,
		Timestamp:    time.Date(2024, 3, 15, hour, 0, 0, 0, time.UTC),
		ReadingType:  rt,
		Value:        value,
		BatteryLevel: 90,
	}
}

func TestReportInputCountsRangeViolations(t *testing.T) {
	readings := []models.Reading{
		qReading("field-01", 0, models.ReadingTemperature, 20),
		qReading("field-01", 1, models.ReadingTemperature, 60),
		qReading("field-01", 2, models.ReadingHumidity, 55),
	}

	report := NewReporter(models.DefaultValueRanges, nil).ReportInput("run-1", readings, nil)
	assert.Equal(t, "input", report.Dataset)

	byType := make(map[models.ReadingType]models.RangeCheck)
	for _, c := range report.RangeChecks {
		byType[c.ReadingType] = c
	}
	assert.Equal(t, 2, byType[models.ReadingTemperature].Total)
	assert.Equal(t, 1, byType[models.ReadingTemperature].OutOfRange)
	assert.Equal(t, 0, byType[models.ReadingHumidity].OutOfRange)
}

func TestReportInputCountsRemovedOutliersAsAnomalies(t *testing.T) {
	// 30.0 is inside the physical temperature bounds, so only the outlier
	// removal knows it was anomalous.
	inlier := qReading("field-01", 0, models.ReadingTemperature, 20)
	outlier := qReading("field-01", 1, models.ReadingTemperature, 30)

	report := NewReporter(models.DefaultValueRanges, nil).
		ReportInput("run-1", []models.Reading{inlier, outlier}, []models.Reading{outlier})

	require.Len(t, report.AnomalyProfiles, 1)
	p := report.AnomalyProfiles[0]
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, 1, p.Anomalies)
	assert.InDelta(t, 50.0, p.PctAnomaly, 1e-9)
}

func TestReportInputFlagsSchemaViolations(t *testing.T) {
	bad := qReading("", 0, models.ReadingTemperature, math.NaN())

	report := NewReporter(models.DefaultValueRanges, nil).ReportInput("run-1", []models.Reading{bad}, nil)

	byColumn := make(map[string]models.SchemaCheck)
	for _, c := range report.SchemaChecks {
		byColumn[c.Column] = c
	}
	assert.False(t, byColumn["sensor_id"].Passed)
	assert.False(t, byColumn["value"].Passed)
	assert.True(t, byColumn["timestamp"].Passed)
}

func TestReportOutputUsesCalibratedValuesAndFlags(t *testing.T) {
	processed := []models.ProcessedReading{
		{
			Reading:         qReading("field-01", 0, models.ReadingTemperature, 48),
			CalibratedValue: 52,
			IsAnomaly:       true,
		},
		{
			Reading:         qReading("field-01", 1, models.ReadingTemperature, 20),
			CalibratedValue: 22,
		},
	}

	report := NewReporter(models.DefaultValueRanges, nil).ReportOutput("run-1", processed)
	assert.Equal(t, "output", report.Dataset)

	require.Len(t, report.RangeChecks, 1)
	assert.Equal(t, 1, report.RangeChecks[0].OutOfRange)

	require.Len(t, report.AnomalyProfiles, 1)
	assert.Equal(t, 1, report.AnomalyProfiles[0].Anomalies)
}

func TestReportMissingProfiles(t *testing.T) {
	readings := []models.Reading{
		qReading("field-01", 0, models.ReadingTemperature, 20),
		qReading("field-01", 3, models.ReadingTemperature, 21),
	}

	report := NewReporter(models.DefaultValueRanges, nil).ReportInput("run-1", readings, nil)
	require.Len(t, report.MissingProfiles, 1)

	p := report.MissingProfiles[0]
	assert.Equal(t, 4, p.Expected)
	assert.Equal(t, 2, p.Missing)
	assert.InDelta(t, 50.0, p.PctMissing, 1e-9)
}

func TestWriteCSVFlatLayout(t *testing.T) {
	readings := []models.Reading{
		qReading("field-01", 0, models.ReadingTemperature, 20),
		qReading("field-01", 3, models.ReadingTemperature, 21),
	}
	report := NewReporter(models.DefaultValueRanges, nil).ReportInput("run-1", readings, nil)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, reportHeader, rows[0])

	var gapRow []string
	for _, row := range rows[1:] {
		assert.Equal(t, "run-1", row[0])
		assert.Equal(t, "input", row[1])
		if row[2] == "coverage" && row[4] == "gap" {
			gapRow = row
		}
	}
	require.NotNil(t, gapRow)
	assert.Equal(t, "2024-03-15T01:00:00Z/2024-03-15T02:59:00Z", gapRow[5])
	assert.Equal(t, "2h", gapRow[6])
}

func TestWriteCSVFileReplacesPriorReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_quality_report.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale contents"), 0o644))

	report := NewReporter(models.DefaultValueRanges, nil).
		ReportInput("run-2", []models.Reading{qReading("field-01", 0, models.ReadingTemperature, 20)}, nil)
	require.NoError(t, WriteCSVFile(path, report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
	assert.Contains(t, string(data), "run-2")
}
