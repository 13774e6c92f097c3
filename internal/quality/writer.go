package quality

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// reportHeader is the flat tabular layout: one row per metric/partition
var reportHeader = []string{"run_id", "dataset", "section", "subject", "metric", "value", "detail"}

// WriteCSV renders one or more quality reports as a single flat CSV
func WriteCSV(w io.Writer, reports ...*models.QualityReport) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(reportHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}

	for _, report := range reports {
		if err := writeReport(cw, report); err != nil {
			return err
		}
	}

	return cw.Error()
}

// WriteCSVFile writes the report CSV to a path, replacing any prior report.
// The report is regenerated every run and never merged with its predecessor.
func WriteCSVFile(path string, reports ...*models.QualityReport) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot create report file %s", path))
	}
	defer f.Close()

	if err := WriteCSV(f, reports...); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeWriteFailed, fmt.Sprintf("cannot write report file %s", path))
	}
	return nil
}

func writeReport(cw *csv.Writer, report *models.QualityReport) error {
	row := func(section, subject, metric, value, detail string) error {
		return cw.Write([]string{report.RunID, report.Dataset, section, subject, metric, value, detail})
	}

	for _, c := range report.SchemaChecks {
		status := "pass"
		if !c.Passed {
			status = "fail"
		}
		if err := row("schema", c.Column, "conformance", status, c.Detail); err != nil {
			return err
		}
	}

	for _, c := range report.RangeChecks {
		if err := row("range", string(c.ReadingType), "total", strconv.Itoa(c.Total), ""); err != nil {
			return err
		}
		if err := row("range", string(c.ReadingType), "out_of_range", strconv.Itoa(c.OutOfRange), ""); err != nil {
			return err
		}
	}

	for _, sc := range report.SensorCoverage {
		if err := row("coverage", sc.SensorID, "observed_hours", strconv.Itoa(sc.ObservedHours), ""); err != nil {
			return err
		}
		if err := row("coverage", sc.SensorID, "expected_hours", strconv.Itoa(sc.ExpectedHours), ""); err != nil {
			return err
		}
		if err := row("coverage", sc.SensorID, "missing_hours", strconv.Itoa(sc.MissingHours), ""); err != nil {
			return err
		}
		for _, g := range sc.Gaps {
			span := fmt.Sprintf("%s/%s",
				g.Start.UTC().Format(time.RFC3339),
				g.End.UTC().Format(time.RFC3339))
			if err := row("coverage", sc.SensorID, "gap", span, strconv.Itoa(g.Hours())+"h"); err != nil {
				return err
			}
		}
	}

	for _, p := range report.AnomalyProfiles {
		if err := row("anomaly", string(p.ReadingType), "pct_anomalous", formatPct(p.PctAnomaly),
			fmt.Sprintf("%d of %d", p.Anomalies, p.Total)); err != nil {
			return err
		}
	}

	for _, p := range report.MissingProfiles {
		if err := row("missing", string(p.ReadingType), "pct_missing", formatPct(p.PctMissing),
			fmt.Sprintf("%d of %d expected hours", p.Missing, p.Expected)); err != nil {
			return err
		}
	}

	return nil
}

func formatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
