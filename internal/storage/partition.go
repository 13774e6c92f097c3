package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// PartitionSink persists processed readings into a partitioned layout keyed
// by date and optionally sensor. Implementations must refuse to silently
// overwrite a committed partition.
type PartitionSink interface {
	// Write commits the readings and returns the partition names written
	Write(ctx context.Context, readings []models.ProcessedReading) ([]string, error)

	// Close releases any held resources
	Close() error
}

// Partition is one physical output grouping
type Partition struct {
	Date     time.Time
	SensorID string
	Rows     []models.ProcessedReading
}

// Name returns the partition's relative path fragment, hive-style
func (p Partition) Name() string {
	name := "date=" + p.Date.Format("2006-01-02")
	if p.SensorID != "" {
		name += "/sensor_id=" + p.SensorID
	}
	return name
}

// Split groups processed readings into partitions by date and, when
// bySensor is set, by sensor. Partitions and their rows are ordered
// deterministically.
func Split(readings []models.ProcessedReading, bySensor bool) []Partition {
	type key struct {
		date   time.Time
		sensor string
	}

	groups := make(map[key][]models.ProcessedReading)
	for _, r := range readings {
		k := key{date: r.Date()}
		if bySensor {
			k.sensor = r.SensorID
		}
		groups[k] = append(groups[k], r)
	}

	partitions := make([]Partition, 0, len(groups))
	for k, rows := range groups {
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].SensorID != rows[j].SensorID {
				return rows[i].SensorID < rows[j].SensorID
			}
			if rows[i].ReadingType != rows[j].ReadingType {
				return rows[i].ReadingType < rows[j].ReadingType
			}
			return rows[i].Timestamp.Before(rows[j].Timestamp)
		})
		partitions = append(partitions, Partition{Date: k.date, SensorID: k.sensor, Rows: rows})
	}

	sort.Slice(partitions, func(i, j int) bool {
		if !partitions[i].Date.Equal(partitions[j].Date) {
			return partitions[i].Date.Before(partitions[j].Date)
		}
		return partitions[i].SensorID < partitions[j].SensorID
	})

	return partitions
}

// partitionColumns is the column layout of every partition file
var partitionColumns = []string{
	"sensor_id", "timestamp", "reading_type", "value", "battery_level",
	"raw_file_origin", "calibrated_value", "daily_avg", "rolling_7d_avg",
	"is_anomaly", "is_imputed",
}

// EncodeCSV writes partition rows as CSV with timestamps rendered in the
// given zone
func EncodeCSV(w io.Writer, rows []models.ProcessedReading, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(partitionColumns); err != nil {
		return fmt.Errorf("failed to write partition header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.SensorID,
			r.Timestamp.In(loc).Format(time.RFC3339),
			string(r.ReadingType),
			formatFloat(r.Value),
			formatFloat(r.BatteryLevel),
			r.RawFileOrigin,
			formatFloat(r.CalibratedValue),
			formatFloat(r.DailyAvg),
			formatFloat(r.Rolling7dAvg),
			strconv.FormatBool(r.IsAnomaly),
			strconv.FormatBool(r.IsImputed),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write partition row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CodecExt returns the partition filename extension for a compression codec.
// It lets callers derive object names without constructing a writer.
func CodecExt(codec string) (string, error) {
	switch codec {
	case "gzip":
		return ".gz", nil
	case "zstd":
		return ".zst", nil
	case "none", "":
		return "", nil
	default:
		return "", errors.NewStorageError(errors.CodeWriteFailed,
			fmt.Sprintf("unsupported compression codec %q", codec))
	}
}

// Compressor wraps a writer with the configured block compression codec and
// reports the filename extension for it
func Compressor(codec string, w io.Writer) (io.WriteCloser, string, error) {
	ext, err := CodecExt(codec)
	if err != nil {
		return nil, "", err
	}
	switch codec {
	case "gzip":
		return gzip.NewWriter(w), ext, nil
	case "zstd":
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, "", errors.WrapError(err, errors.ErrorTypeStorage,
				errors.CodeWriteFailed, "cannot initialize zstd writer")
		}
		return zw, ext, nil
	default:
		return nopWriteCloser{w}, ext, nil
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
