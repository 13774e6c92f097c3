package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// ColumnType is the expected type of a contract column
type ColumnType string

const (
	ColumnString    ColumnType = "string"
	ColumnTimestamp ColumnType = "timestamp"
	ColumnNumeric   ColumnType = "numeric"
	ColumnEnum      ColumnType = "enum"
)

// Column is one entry of the schema contract
type Column struct {
	Name string
	Type ColumnType
}

// Contract is the fixed column contract checked once at batch admission.
// Downstream stages assume it holds and never re-check.
var Contract = []Column{
	{Name: "sensor_id", Type: ColumnString},
	{Name: "timestamp", Type: ColumnTimestamp},
	{Name: "reading_type", Type: ColumnEnum},
	{Name: "value", Type: ColumnNumeric},
	{Name: "battery_level", Type: ColumnNumeric},
}

// timestampLayouts are accepted on input; output is always RFC 3339
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Validator checks a raw batch against the schema contract. It is a pure
// check: the batch is returned unchanged on success and rejected whole on
// failure.
type Validator struct {
	logger *logrus.Logger
}

// NewValidator creates a schema validator
func NewValidator(logger *logrus.Logger) *Validator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Validator{logger: logger}
}

// Validate verifies every contract column is present with a parseable type
// and that reading_type carries only known enum values. The returned error
// names every offending column, not just the first.
func (v *Validator) Validate(raw *models.RawBatch) error {
	if raw == nil || len(raw.Rows) == 0 {
		return errors.NewSchemaError(errors.CodeEmptyBatch, "batch contains no readings")
	}

	var offending []string
	columnMissing := false

	indexes := make(map[string]int, len(Contract))
	for _, col := range Contract {
		idx := raw.ColumnIndex(col.Name)
		if idx < 0 {
			offending = append(offending, fmt.Sprintf("%s: missing", col.Name))
			columnMissing = true
			continue
		}
		indexes[col.Name] = idx
	}

	for _, col := range Contract {
		idx, ok := indexes[col.Name]
		if !ok {
			continue
		}
		if detail := v.checkColumn(raw, col, idx); detail != "" {
			offending = append(offending, fmt.Sprintf("%s: %s", col.Name, detail))
		}
	}

	if len(offending) > 0 {
		v.logger.WithFields(logrus.Fields{
			"batch_id": raw.BatchID,
			"columns":  offending,
		}).Warn("Batch rejected by schema validation")

		code := errors.CodeInvalidColumnType
		if columnMissing {
			code = errors.CodeMissingColumn
		}
		return errors.NewSchemaError(code, "schema validation failed").
			WithDetails(strings.Join(offending, "; "))
	}

	v.logger.WithField("batch_id", raw.BatchID).Debug("Schema validation passed")
	return nil
}

// checkColumn returns a failure detail for the first non-conforming cell, or
// "" when every cell conforms. Empty cells are admitted here; the cleaning
// stage decides what to do with missing values.
func (v *Validator) checkColumn(raw *models.RawBatch, col Column, idx int) string {
	for rowNum, row := range raw.Rows {
		if idx >= len(row) {
			return fmt.Sprintf("row %d has no value", rowNum+1)
		}
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			continue
		}

		switch col.Type {
		case ColumnString:
			// any non-empty string conforms
		case ColumnNumeric:
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				return fmt.Sprintf("row %d value %q is not numeric", rowNum+1, cell)
			}
		case ColumnTimestamp:
			if _, err := ParseTimestamp(cell); err != nil {
				return fmt.Sprintf("row %d value %q is not a timestamp", rowNum+1, cell)
			}
		case ColumnEnum:
			if !models.ReadingType(cell).IsValid() {
				return fmt.Sprintf("row %d value %q is not a known reading type", rowNum+1, cell)
			}
		}
	}
	return ""
}

// ParseTimestamp parses a timestamp cell using the accepted input layouts
func ParseTimestamp(cell string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, cell); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", cell)
}

// Describe reports the inferred type of every column in a raw batch. It
// backs the inspect CLI action and performs no admission decision.
func Describe(raw *models.RawBatch) []models.SchemaCheck {
	checks := make([]models.SchemaCheck, 0, len(raw.Columns))
	for i, name := range raw.Columns {
		checks = append(checks, models.SchemaCheck{
			Column: name,
			Passed: true,
			Detail: string(inferColumnType(raw, i)),
		})
	}
	return checks
}

func inferColumnType(raw *models.RawBatch, idx int) ColumnType {
	numeric, timestamp := true, true
	seen := false
	for _, row := range raw.Rows {
		if idx >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			numeric = false
		}
		if _, err := ParseTimestamp(cell); err != nil {
			timestamp = false
		}
	}
	switch {
	case !seen:
		return ColumnString
	case timestamp:
		return ColumnTimestamp
	case numeric:
		return ColumnNumeric
	default:
		return ColumnString
	}
}
