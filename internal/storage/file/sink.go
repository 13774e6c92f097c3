package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/internal/storage"
	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// SinkConfig configures the local partitioned sink
type SinkConfig struct {
	BasePath          string `json:"base_path"`
	Compression       string `json:"compression"` // "gzip", "zstd", "none"
	PartitionBySensor bool   `json:"partition_by_sensor"`
	Overwrite         bool   `json:"overwrite"`
	TimeZone          string `json:"timezone"`
}

// Sink writes block-compressed CSV partition files under a local root,
// laid out date-first with an optional sensor subdivision. Writes are
// create-new: a partition committed by a prior run is never silently
// replaced.
type Sink struct {
	config *SinkConfig
	loc    *time.Location
	logger *logrus.Logger
}

// NewSink creates a file partition sink
func NewSink(config *SinkConfig, logger *logrus.Logger) (*Sink, error) {
	if config == nil || config.BasePath == "" {
		return nil, errors.NewStorageError(errors.CodeWriteFailed, "file sink requires a base path")
	}
	if logger == nil {
		logger = logrus.New()
	}

	loc := time.UTC
	if config.TimeZone != "" {
		parsed, err := time.LoadLocation(config.TimeZone)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage,
				errors.CodeWriteFailed, fmt.Sprintf("invalid output timezone %q", config.TimeZone))
		}
		loc = parsed
	}

	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot create output root %s", config.BasePath))
	}

	return &Sink{config: config, loc: loc, logger: logger}, nil
}

// Write commits the readings, one compressed file per partition. It fails
// with a partition conflict before writing anything when any target
// partition already exists and overwrite is off, so a conflicting run
// leaves no partial output behind.
func (s *Sink) Write(ctx context.Context, readings []models.ProcessedReading) ([]string, error) {
	partitions := storage.Split(readings, s.config.PartitionBySensor)

	if !s.config.Overwrite {
		for _, p := range partitions {
			committed, err := s.partitionCommitted(p)
			if err != nil {
				return nil, err
			}
			if committed {
				return nil, errors.NewPartitionConflictError(p.Name())
			}
		}
	}

	written := make([]string, 0, len(partitions))
	for _, p := range partitions {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		if err := s.writePartition(p); err != nil {
			return written, err
		}
		written = append(written, p.Name())
	}

	s.logger.WithFields(logrus.Fields{
		"partitions": len(written),
		"records":    len(readings),
		"base_path":  s.config.BasePath,
	}).Info("Partitions committed")

	return written, nil
}

// partitionCommitted reports whether the partition holds a committed data
// file. An empty directory left by an interrupted write is not a conflict;
// only the renamed readings.csv counts, under any compression extension.
func (s *Sink) partitionCommitted(p storage.Partition) (bool, error) {
	dir := filepath.Join(s.config.BasePath, filepath.FromSlash(p.Name()))
	matches, err := filepath.Glob(filepath.Join(dir, "readings.csv*"))
	if err != nil {
		return false, errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot inspect partition %s", p.Name()))
	}
	return len(matches) > 0, nil
}

func (s *Sink) writePartition(p storage.Partition) error {
	dir := filepath.Join(s.config.BasePath, filepath.FromSlash(p.Name()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot create partition directory %s", dir))
	}

	// Write to a temp file first; the rename is the commit point.
	tmp, err := os.CreateTemp(dir, ".readings-*.tmp")
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot create partition file in %s", dir))
	}
	tmpPath := tmp.Name()

	compressor, ext, err := storage.Compressor(s.config.Compression, tmp)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := storage.EncodeCSV(compressor, p.Rows, s.loc); err != nil {
		compressor.Close()
		tmp.Close()
		os.Remove(tmpPath)
		return errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot encode partition %s", p.Name()))
	}
	if err := compressor.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot finish compression for partition %s", p.Name()))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot flush partition %s", p.Name()))
	}

	final := filepath.Join(dir, "readings.csv"+ext)
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot commit partition file %s", final))
	}

	return nil
}

// Close is a no-op for the file sink
func (s *Sink) Close() error { return nil }
