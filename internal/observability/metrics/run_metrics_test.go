package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMetricsTextfileExport(t *testing.T) {
	m := NewRunMetrics(nil)
	m.BatchCommitted()
	m.BatchCommitted()
	m.BatchSkipped()
	m.ReadingsIngested(42)
	m.ReadingsWritten(40)
	m.DuplicatesResolved(1)
	m.OutliersRemoved(1)
	m.MissingValues(2)
	m.BatteryFilled(4)
	m.CalibrationFallback("field-01", 3)
	m.PartitionsWritten(2)
	m.SetRunDuration(1.5)

	path := filepath.Join(t.TempDir(), "agripipe.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `agripipe_batches_total{outcome="committed"} 2`)
	assert.Contains(t, out, `agripipe_batches_total{outcome="skipped"} 1`)
	assert.Contains(t, out, "agripipe_readings_ingested_total 42")
	assert.Contains(t, out, "agripipe_missing_values_total 2")
	assert.Contains(t, out, "agripipe_battery_filled_total 4")
	assert.Contains(t, out, `agripipe_calibration_fallbacks_total{sensor_id="field-01"} 3`)
	assert.Contains(t, out, "agripipe_run_duration_seconds 1.5")
}

func TestRunMetricsRegistriesAreIndependent(t *testing.T) {
	a := NewRunMetrics(nil)
	b := NewRunMetrics(nil)
	a.BatchCommitted()

	path := filepath.Join(t.TempDir(), "b.prom")
	require.NoError(t, b.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `outcome="committed"} 1`)
}
