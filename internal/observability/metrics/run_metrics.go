package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// RunMetrics collects per-invocation pipeline counters on a private
// Prometheus registry. The pipeline is a single-shot batch process, so the
// registry is dumped to a textfile at run end (for the node_exporter
// textfile collector) instead of being served over HTTP.
type RunMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry

	batchesTotal       *prometheus.CounterVec
	readingsIngested   prometheus.Counter
	readingsWritten    prometheus.Counter
	duplicatesResolved prometheus.Counter
	outliersRemoved    prometheus.Counter
	nullKeysDropped    prometheus.Counter
	missingValues      prometheus.Counter
	batteryFilled      prometheus.Counter
	calibrationMisses  *prometheus.CounterVec
	partitionsWritten  prometheus.Counter
	runDuration        prometheus.Gauge
}

// NewRunMetrics creates the run metrics set
func NewRunMetrics(logger *logrus.Logger) *RunMetrics {
	if logger == nil {
		logger = logrus.New()
	}

	registry := prometheus.NewRegistry()
	m := &RunMetrics{
		logger:   logger,
		registry: registry,
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agripipe",
			Name:      "batches_total",
			Help:      "Batches seen by the run, by outcome",
		}, []string{"outcome"}),
		readingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agripipe",
			Name:      "readings_ingested_total",
			Help:      "Raw readings admitted past schema validation",
		}),
		readingsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agripipe",
			Name:      "readings_written_total",
			Help:      "Processed readings committed to partitioned storage",
		}),
		duplicatesResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agripipe",
			Name:      "duplicates_resolved_total",
			Help:      "Natural-key duplicates resolved during cleaning",
		}),
		outliersRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agripipe",
			Name:      "outliers_removed_total",
			Help:      "Readings removed by z-score outlier detection",
		}),
		nullKeysDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agripipe",
			Name:      "null_keys_dropped_total",
			Help:      "Readings dropped for an unusable natural key",
		}),
		missingValues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agripipe",
			Name:      "missing_values_total",
			Help:      "Readings dropped for a missing value, reported but never imputed",
		}),
		batteryFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agripipe",
			Name:      "battery_filled_total",
			Help:      "Readings whose unknown battery level was set to the -1 sentinel",
		}),
		calibrationMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agripipe",
			Name:      "calibration_fallbacks_total",
			Help:      "Readings calibrated with the identity fallback, by sensor",
		}, []string{"sensor_id"}),
		partitionsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agripipe",
			Name:      "partitions_written_total",
			Help:      "Output partitions committed",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agripipe",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the run",
		}),
	}

	registry.MustRegister(
		m.batchesTotal,
		m.readingsIngested,
		m.readingsWritten,
		m.duplicatesResolved,
		m.outliersRemoved,
		m.nullKeysDropped,
		m.missingValues,
		m.batteryFilled,
		m.calibrationMisses,
		m.partitionsWritten,
		m.runDuration,
	)

	return m
}

// BatchCommitted records a successfully committed batch
func (m *RunMetrics) BatchCommitted() { m.batchesTotal.WithLabelValues("committed").Inc() }

// BatchSkipped records a batch skipped for the given reason
func (m *RunMetrics) BatchSkipped() { m.batchesTotal.WithLabelValues("skipped").Inc() }

// BatchAlreadyProcessed records a batch gated out by the checkpoint
func (m *RunMetrics) BatchAlreadyProcessed() { m.batchesTotal.WithLabelValues("checkpointed").Inc() }

// ReadingsIngested adds admitted raw readings
func (m *RunMetrics) ReadingsIngested(n int) { m.readingsIngested.Add(float64(n)) }

// ReadingsWritten adds committed processed readings
func (m *RunMetrics) ReadingsWritten(n int) { m.readingsWritten.Add(float64(n)) }

// DuplicatesResolved adds resolved natural-key duplicates
func (m *RunMetrics) DuplicatesResolved(n int) { m.duplicatesResolved.Add(float64(n)) }

// OutliersRemoved adds removed statistical outliers
func (m *RunMetrics) OutliersRemoved(n int) { m.outliersRemoved.Add(float64(n)) }

// NullKeysDropped adds dropped unkeyable readings
func (m *RunMetrics) NullKeysDropped(n int) { m.nullKeysDropped.Add(float64(n)) }

// MissingValues adds readings dropped for a missing value
func (m *RunMetrics) MissingValues(n int) { m.missingValues.Add(float64(n)) }

// BatteryFilled adds readings with a backfilled battery sentinel
func (m *RunMetrics) BatteryFilled(n int) { m.batteryFilled.Add(float64(n)) }

// CalibrationFallback adds identity-calibration fallbacks for a sensor
func (m *RunMetrics) CalibrationFallback(sensorID string, n int) {
	m.calibrationMisses.WithLabelValues(sensorID).Add(float64(n))
}

// PartitionsWritten adds committed partitions
func (m *RunMetrics) PartitionsWritten(n int) { m.partitionsWritten.Add(float64(n)) }

// SetRunDuration records the run's wall-clock duration
func (m *RunMetrics) SetRunDuration(seconds float64) { m.runDuration.Set(seconds) }

// WriteTextfile dumps the registry in the Prometheus text exposition format
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return err
	}
	m.logger.WithField("path", path).Debug("Run metrics written")
	return nil
}
