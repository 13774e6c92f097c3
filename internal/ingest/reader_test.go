package ingest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

const sampleCSV = `sensor_id,timestamp,reading_type,value,battery_level
field-01,2024-03-15T00:00:00Z,temperature,21.5,87
field-01,2024-03-15T01:00:00Z,temperature,,87
field-02,2024-03-15 01:00:00,soil_moisture,33.1,
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractDate(t *testing.T) {
	date, err := ExtractDate("data/raw/2024-03-15.csv")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", date.Format("2006-01-02"))

	date, err = ExtractDate("field_2024-03-15_export.csv.gz")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", date.Format("2006-01-02"))

	_, err = ExtractDate("readings_latest.csv")
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeIngestion))
}

func TestListSourceFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2024-03-16.csv", sampleCSV)
	writeFile(t, dir, "2024-03-15.csv", sampleCSV)
	writeFile(t, dir, "notes.txt", "not a batch")

	files, err := NewReader(dir, nil).ListSourceFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "2024-03-15.csv", filepath.Base(files[0]))
	assert.Equal(t, "2024-03-16.csv", filepath.Base(files[1]))
}

func TestReadRawPlainCSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "2024-03-15.csv", sampleCSV)

	raw, err := NewReader(dir, nil).ReadRaw(path)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15.csv", raw.BatchID)
	assert.Equal(t, "2024-03-15", raw.BatchDate.Format("2006-01-02"))
	assert.Equal(t, []string{"sensor_id", "timestamp", "reading_type", "value", "battery_level"}, raw.Columns)
	assert.Len(t, raw.Rows, 3)
}

func TestReadRawGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2024-03-15.csv.gz")

	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	raw, err := NewReader(dir, nil).ReadRaw(path)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15.csv.gz", raw.BatchID)
	assert.Len(t, raw.Rows, 3)
}

func TestDecodeTypesReadings(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "2024-03-15.csv", sampleCSV)

	raw, err := NewReader(dir, nil).ReadRaw(path)
	require.NoError(t, err)

	batch, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, batch.Readings, 3)

	first := batch.Readings[0]
	assert.Equal(t, "field-01", first.SensorID)
	assert.Equal(t, models.ReadingTemperature, first.ReadingType)
	assert.Equal(t, 21.5, first.Value)
	assert.Equal(t, 87.0, first.BatteryLevel)
	assert.Equal(t, path, first.RawFileOrigin)

	// Empty numeric cells surface as NaN for the cleaning stage.
	assert.True(t, math.IsNaN(batch.Readings[1].Value))
	assert.True(t, math.IsNaN(batch.Readings[2].BatteryLevel))

	// The space-separated timestamp layout is accepted and normalized to UTC.
	assert.Equal(t, 1, batch.Readings[2].Timestamp.Hour())
}
