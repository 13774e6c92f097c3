package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/internal/calibration"
	"github.com/fieldsense/agripipe/internal/checkpoint"
	"github.com/fieldsense/agripipe/internal/checkpoint/pgstore"
	"github.com/fieldsense/agripipe/internal/checkpoint/redisstore"
	"github.com/fieldsense/agripipe/internal/config"
	"github.com/fieldsense/agripipe/internal/ingest"
	"github.com/fieldsense/agripipe/internal/observability/metrics"
	"github.com/fieldsense/agripipe/internal/quality"
	"github.com/fieldsense/agripipe/internal/schema"
	"github.com/fieldsense/agripipe/internal/storage"
	"github.com/fieldsense/agripipe/internal/storage/file"
	"github.com/fieldsense/agripipe/internal/storage/influx"
	"github.com/fieldsense/agripipe/internal/storage/s3"
	"github.com/fieldsense/agripipe/internal/transform"
	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// Pipeline runs one ingestion pass: discover raw batch files, admit the ones
// the checkpoint has not seen, transform the admitted readings as a single
// working set, commit partitions, and only then record each batch as
// processed. Batch-scoped failures skip the batch; checkpoint and storage
// failures abort the run.
type Pipeline struct {
	config  *config.Config
	logger  *logrus.Logger
	metrics *metrics.RunMetrics
}

// New creates a pipeline for one invocation
func New(cfg *config.Config, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
	}
	return &Pipeline{
		config:  cfg,
		logger:  logger,
		metrics: metrics.NewRunMetrics(logger),
	}
}

// Run executes the full pass and returns its summary. The returned error is
// non-nil only for run-fatal conditions; per-batch failures are reflected in
// the summary and the logs.
func (p *Pipeline) Run(ctx context.Context) (*models.RunSummary, error) {
	runID := uuid.New().String()
	start := time.Now()

	summary := &models.RunSummary{
		RunID:     runID,
		StartedAt: start.UTC(),
	}

	logger := p.logger.WithField("run_id", runID)
	logger.WithField("raw_data_path", p.config.RawDataPath).Info("Starting ingestion run")

	store, err := p.newCheckpointStore()
	if err != nil {
		return summary, err
	}
	tracker, err := checkpoint.NewTracker(store, p.logger)
	if err != nil {
		return summary, err
	}

	sink, err := p.newSink()
	if err != nil {
		return summary, err
	}
	defer sink.Close()

	var mirror *influx.Mirror
	if p.config.Storage.InfluxEnabled {
		mirror, err = influx.NewMirror(&influx.MirrorConfig{
			URL:    p.config.Storage.InfluxURL,
			Token:  p.config.Storage.InfluxToken,
			Org:    p.config.Storage.InfluxOrg,
			Bucket: p.config.Storage.InfluxBucket,
		}, p.logger)
		if err != nil {
			return summary, err
		}
		defer mirror.Close()
	}

	normalizer, err := calibration.Load(p.config.Calibration.ProfilePath, p.config.Calibration.Mandatory, p.logger)
	if err != nil {
		return summary, err
	}

	admitted, rawInput, err := p.admitBatches(tracker, normalizer, summary)
	if err != nil {
		return summary, err
	}
	if len(admitted) == 0 {
		logger.Info("No new batches to process, leaving prior output and report untouched")
		p.finish(summary, start)
		return summary, nil
	}

	processed, removedOutliers, err := p.transform(normalizer, rawInput, summary)
	if err != nil {
		return summary, err
	}

	if err := p.commit(ctx, sink, mirror, tracker, admitted, processed, runID, summary); err != nil {
		return summary, err
	}

	if err := p.report(runID, rawInput, removedOutliers, processed); err != nil {
		return summary, err
	}

	p.finish(summary, start)
	logger.WithFields(logrus.Fields{
		"batches_committed":  summary.BatchesCommitted,
		"batches_skipped":    summary.BatchesSkipped,
		"records_ingested":   summary.RecordsIngested,
		"records_written":    summary.RecordsWritten,
		"duplicates_removed": summary.DuplicatesRemoved,
		"outliers_removed":   summary.OutliersRemoved,
		"duration":           summary.Duration.String(),
	}).Info("Ingestion run complete")

	return summary, nil
}

// admitBatches walks the raw directory in filename order and returns the
// batches that pass checkpoint gating, schema validation, decoding, and,
// when calibration is mandatory, the calibration coverage check. A failing
// batch is logged and skipped without touching the checkpoint; only
// run-fatal errors propagate.
func (p *Pipeline) admitBatches(tracker *checkpoint.Tracker, normalizer *calibration.Normalizer, summary *models.RunSummary) ([]*models.Batch, []models.Reading, error) {
	reader := ingest.NewReader(p.config.RawDataPath, p.logger)
	validator := schema.NewValidator(p.logger)

	files, err := reader.ListSourceFiles()
	if err != nil {
		return nil, nil, err
	}
	summary.FilesFound = len(files)

	var (
		admitted []*models.Batch
		readings []models.Reading
	)
	for _, path := range files {
		batchID := filepath.Base(path)
		if tracker.IsProcessed(batchID) {
			p.logger.WithField("batch_id", batchID).Debug("Batch already processed, skipping")
			p.metrics.BatchAlreadyProcessed()
			summary.BatchesSkipped++
			continue
		}

		raw, err := reader.ReadRaw(path)
		if err != nil {
			if errors.IsRunFatal(err) {
				return nil, nil, err
			}
			p.logger.WithError(err).WithField("file", path).Warn("Skipping unreadable batch file")
			p.metrics.BatchSkipped()
			summary.BatchesSkipped++
			continue
		}

		if err := validator.Validate(raw); err != nil {
			p.logger.WithError(err).WithField("batch_id", raw.BatchID).Warn("Batch failed schema validation")
			p.metrics.BatchSkipped()
			summary.BatchesSkipped++
			continue
		}

		batch, err := ingest.Decode(raw)
		if err != nil {
			p.logger.WithError(err).WithField("batch_id", raw.BatchID).Warn("Batch failed decoding")
			p.metrics.BatchSkipped()
			summary.BatchesSkipped++
			continue
		}

		if err := normalizer.Verify(batch.Readings); err != nil {
			p.logger.WithError(err).WithField("batch_id", raw.BatchID).Warn("Batch lacks mandatory calibration coverage")
			p.metrics.BatchSkipped()
			summary.BatchesSkipped++
			continue
		}

		admitted = append(admitted, batch)
		readings = append(readings, batch.Readings...)
	}

	summary.RecordsIngested = len(readings)
	p.metrics.ReadingsIngested(len(readings))
	return admitted, readings, nil
}

// transform runs the admitted readings through cleaning, deduplication,
// outlier removal, calibration, and metric derivation as one working set, so
// duplicates across batch files collapse and rolling windows see every
// admitted day.
func (p *Pipeline) transform(normalizer *calibration.Normalizer, readings []models.Reading, summary *models.RunSummary) ([]models.ProcessedReading, []models.Reading, error) {
	ranges := p.config.ValueRanges()

	cleaned := transform.NewCleaner(p.logger).Clean(readings)
	summary.NullKeysDropped = cleaned.NullKeysDropped
	summary.MissingValues = cleaned.MissingValues
	summary.BatteryFilled = cleaned.BatteryFilled
	p.metrics.NullKeysDropped(cleaned.NullKeysDropped)
	p.metrics.MissingValues(cleaned.MissingValues)
	p.metrics.BatteryFilled(cleaned.BatteryFilled)

	deduped, duplicates := transform.NewDeduplicator(ranges, p.logger).Deduplicate(cleaned.Readings)
	summary.DuplicatesRemoved = duplicates
	p.metrics.DuplicatesResolved(duplicates)

	handler := transform.NewOutlierHandler(p.config.Transform.ZScoreThreshold, p.config.Transform.MinSampleCount, p.logger)
	kept, outliers := handler.Remove(deduped)
	summary.OutliersRemoved = len(outliers)
	p.metrics.OutliersRemoved(len(outliers))

	calibrated, err := normalizer.Apply(kept)
	if err != nil {
		return nil, nil, err
	}
	for sensorID, n := range normalizer.FallbackCounts() {
		p.metrics.CalibrationFallback(sensorID, n)
		summary.CalibrationMisses += n
	}

	deriver := transform.NewDeriver(p.config.Transform.RollingWindow, ranges, p.logger)
	processed := deriver.Derive(kept, calibrated)
	return processed, outliers, nil
}

// commit writes all partitions first and marks each admitted batch as
// processed only afterwards, so a storage failure leaves the checkpoint
// untouched and the run safely repeatable.
func (p *Pipeline) commit(ctx context.Context, sink storage.PartitionSink, mirror *influx.Mirror, tracker *checkpoint.Tracker, admitted []*models.Batch, processed []models.ProcessedReading, runID string, summary *models.RunSummary) error {
	writeCtx := ctx
	if p.config.Storage.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, p.config.Storage.WriteTimeout)
		defer cancel()
	}

	partitions, err := sink.Write(writeCtx, processed)
	if err != nil {
		return err
	}
	summary.RecordsWritten = len(processed)
	p.metrics.ReadingsWritten(len(processed))
	p.metrics.PartitionsWritten(len(partitions))

	commitTime := time.Now().UTC()
	for _, batch := range admitted {
		if err := tracker.MarkProcessed(batch.BatchID, commitTime, runID, partitions); err != nil {
			return err
		}
		p.metrics.BatchCommitted()
		summary.BatchesCommitted++
	}

	if mirror != nil {
		if err := mirror.Write(writeCtx, processed); err != nil {
			// The mirror is not the system of record; the run stays committed.
			p.logger.WithError(err).Warn("InfluxDB mirror write failed")
		}
	}

	return nil
}

// report regenerates the quality report over the raw input and the committed
// output, replacing any prior report file
func (p *Pipeline) report(runID string, rawInput, removedOutliers []models.Reading, processed []models.ProcessedReading) error {
	reporter := quality.NewReporter(p.config.ValueRanges(), p.logger)
	input := reporter.ReportInput(runID, rawInput, removedOutliers)
	output := reporter.ReportOutput(runID, processed)

	if err := quality.WriteCSVFile(p.config.ReportPath, input, output); err != nil {
		return err
	}
	p.logger.WithField("path", p.config.ReportPath).Info("Quality report written")
	return nil
}

func (p *Pipeline) finish(summary *models.RunSummary, start time.Time) {
	summary.Duration = time.Since(start)
	p.metrics.SetRunDuration(summary.Duration.Seconds())

	if p.config.MetricsPath != "" {
		if err := p.metrics.WriteTextfile(p.config.MetricsPath); err != nil {
			p.logger.WithError(err).Warn("Failed to export run metrics")
		}
	}
}

func (p *Pipeline) newCheckpointStore() (checkpoint.Store, error) {
	switch p.config.Checkpoint.Backend {
	case "redis":
		return redisstore.New(&redisstore.Config{
			Addr:     p.config.Checkpoint.RedisAddr,
			Password: p.config.Checkpoint.RedisPassword,
			DB:       p.config.Checkpoint.RedisDB,
			Key:      p.config.Checkpoint.RedisKey,
		}, p.logger)
	case "postgres":
		return pgstore.New(&pgstore.Config{
			DSN:   p.config.Checkpoint.PostgresDSN,
			Table: p.config.Checkpoint.PostgresTable,
		}, p.logger)
	default:
		return checkpoint.NewFileStore(p.config.Checkpoint.Path), nil
	}
}

func (p *Pipeline) newSink() (storage.PartitionSink, error) {
	switch p.config.Storage.Backend {
	case "s3":
		return s3.NewSink(&s3.SinkConfig{
			Region:            p.config.Storage.S3Region,
			Bucket:            p.config.Storage.S3Bucket,
			Prefix:            p.config.Storage.S3Prefix,
			Compression:       p.config.Storage.Compression,
			PartitionBySensor: p.config.Storage.PartitionBySensor,
			Overwrite:         p.config.Storage.Overwrite,
			TimeZone:          p.config.Transform.OutputTimeZone,
		}, p.logger)
	default:
		return file.NewSink(&file.SinkConfig{
			BasePath:          p.config.ProcessedDataPath,
			Compression:       p.config.Storage.Compression,
			PartitionBySensor: p.config.Storage.PartitionBySensor,
			Overwrite:         p.config.Storage.Overwrite,
			TimeZone:          p.config.Transform.OutputTimeZone,
		}, p.logger)
	}
}
