package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/internal/schema"
	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// filenameDate matches CSV source files whose name encodes the batch date,
// e.g. 2023-07-30.csv, 2023-07-30.csv.gz or field_2023-07-30_export.csv
var filenameDate = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}).*\.csv(\.gz)?$`)

// Reader discovers raw source files and turns them into batches
type Reader struct {
	dataPath string
	logger   *logrus.Logger
}

// NewReader creates a batch reader over the given raw data directory
func NewReader(dataPath string, logger *logrus.Logger) *Reader {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reader{dataPath: dataPath, logger: logger}
}

// ExtractDate derives the batch date from a source filename. Files whose
// names do not encode a date are not ingestible.
func ExtractDate(path string) (time.Time, error) {
	m := filenameDate.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return time.Time{}, errors.NewIngestionError(errors.CodeInvalidFilename,
			fmt.Sprintf("filename %q does not encode a batch date", filepath.Base(path)))
	}
	date, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return time.Time{}, errors.NewIngestionError(errors.CodeInvalidFilename,
			fmt.Sprintf("filename %q encodes an invalid date", filepath.Base(path)))
	}
	return date.UTC(), nil
}

// ListSourceFiles returns every ingestible file under the raw data path,
// sorted by name so batches are processed in date order
func (r *Reader) ListSourceFiles() ([]string, error) {
	entries, err := os.ReadDir(r.dataPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeIngestion,
			errors.CodeFileUnreadable, fmt.Sprintf("cannot list raw data path %s", r.dataPath))
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !filenameDate.MatchString(entry.Name()) {
			r.logger.WithField("file", entry.Name()).Debug("Skipping non-batch file")
			continue
		}
		files = append(files, filepath.Join(r.dataPath, entry.Name()))
	}

	sort.Strings(files)
	return files, nil
}

// ReadRaw reads one source file into its undecoded form. Gzip-compressed
// files are decompressed transparently.
func (r *Reader) ReadRaw(path string) (*models.RawBatch, error) {
	date, err := ExtractDate(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeIngestion,
			errors.CodeFileUnreadable, fmt.Sprintf("cannot open %s", path))
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeIngestion,
				errors.CodeFileUnreadable, fmt.Sprintf("cannot decompress %s", path))
		}
		defer gz.Close()
		reader = gz
	}

	cr := csv.NewReader(reader)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeIngestion,
			errors.CodeFileUnreadable, fmt.Sprintf("cannot parse %s", path))
	}
	if len(records) == 0 {
		return nil, errors.NewSchemaError(errors.CodeEmptyBatch,
			fmt.Sprintf("%s contains no header row", path))
	}

	return &models.RawBatch{
		BatchID:    filepath.Base(path),
		SourceFile: path,
		BatchDate:  date,
		Columns:    records[0],
		Rows:       records[1:],
	}, nil
}

// Decode converts a schema-validated raw batch into typed readings. Rows
// with unparseable cells were already rejected by validation; empty value
// cells become NaN so the cleaning stage can see them.
func Decode(raw *models.RawBatch) (*models.Batch, error) {
	idx := make(map[string]int, len(raw.Columns))
	for i, c := range raw.Columns {
		idx[c] = i
	}

	cell := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	readings := make([]models.Reading, 0, len(raw.Rows))
	for _, row := range raw.Rows {
		reading := models.Reading{
			SensorID:      cell(row, "sensor_id"),
			ReadingType:   models.ReadingType(cell(row, "reading_type")),
			RawFileOrigin: raw.SourceFile,
		}

		if ts := cell(row, "timestamp"); ts != "" {
			parsed, err := schema.ParseTimestamp(ts)
			if err != nil {
				return nil, errors.NewSchemaError(errors.CodeInvalidColumnType,
					fmt.Sprintf("unparseable timestamp %q survived validation", ts))
			}
			reading.Timestamp = parsed.UTC()
		}

		reading.Value = parseFloatOrNaN(cell(row, "value"))
		reading.BatteryLevel = parseFloatOrNaN(cell(row, "battery_level"))

		readings = append(readings, reading)
	}

	return &models.Batch{
		BatchID:    raw.BatchID,
		SourceFile: raw.SourceFile,
		BatchDate:  raw.BatchDate,
		Readings:   readings,
	}, nil
}

func parseFloatOrNaN(cell string) float64 {
	if cell == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
