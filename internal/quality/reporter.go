package quality

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/pkg/models"
)

// Reporter computes the independent audit over the raw input and the
// committed output of a run. It holds no state between runs: every report
// is fully regenerable from the datasets alone.
type Reporter struct {
	ranges map[models.ReadingType]models.ValueRange
	logger *logrus.Logger
}

// NewReporter creates a quality reporter using the given physical bounds
func NewReporter(ranges map[models.ReadingType]models.ValueRange, logger *logrus.Logger) *Reporter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reporter{ranges: ranges, logger: logger}
}

// ReportInput audits the raw input readings. Statistical outliers removed
// by the cleaning stages are passed in so the anomaly tally still counts
// them: a z-score outlier inside the physical bounds is an anomaly even
// though the range check would not flag it.
func (rp *Reporter) ReportInput(runID string, readings, removedOutliers []models.Reading) *models.QualityReport {
	outlierKeys := make(map[models.NaturalKey]struct{}, len(removedOutliers))
	for _, r := range removedOutliers {
		outlierKeys[r.Key()] = struct{}{}
	}

	report := rp.report(runID, "input", readings)
	report.AnomalyProfiles = rp.anomalyProfiles(readings, func(r models.Reading) bool {
		if _, removed := outlierKeys[r.Key()]; removed {
			return true
		}
		return rp.outOfRange(r)
	})
	return report
}

// ReportOutput audits the committed pipeline output
func (rp *Reporter) ReportOutput(runID string, processed []models.ProcessedReading) *models.QualityReport {
	readings := make([]models.Reading, len(processed))
	flagged := make(map[models.NaturalKey]bool, len(processed))
	for i, p := range processed {
		readings[i] = p.Reading
		readings[i].Value = p.CalibratedValue
		flagged[p.Key()] = p.IsAnomaly
	}

	report := rp.report(runID, "output", readings)
	report.AnomalyProfiles = rp.anomalyProfiles(readings, func(r models.Reading) bool {
		return flagged[r.Key()]
	})
	return report
}

func (rp *Reporter) report(runID, dataset string, readings []models.Reading) *models.QualityReport {
	report := &models.QualityReport{
		RunID:       runID,
		Dataset:     dataset,
		GeneratedAt: time.Now().UTC(),
	}

	report.SchemaChecks = rp.schemaConformance(readings)
	report.RangeChecks = rp.rangeChecks(readings)
	report.SensorCoverage = CoverageForSensors(readings)
	report.MissingProfiles = rp.missingProfiles(readings)

	rp.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"dataset":  dataset,
		"readings": len(readings),
		"sensors":  len(report.SensorCoverage),
	}).Info("Quality report computed")

	return report
}

// schemaConformance re-checks the column contract over typed readings:
// non-empty sensor IDs, non-zero timestamps, known reading types, non-NaN
// numerics
func (rp *Reporter) schemaConformance(readings []models.Reading) []models.SchemaCheck {
	var badSensor, badTS, badType, badValue, badBattery int
	for _, r := range readings {
		if r.SensorID == "" {
			badSensor++
		}
		if r.Timestamp.IsZero() {
			badTS++
		}
		if !r.ReadingType.IsValid() {
			badType++
		}
		if math.IsNaN(r.Value) {
			badValue++
		}
		if math.IsNaN(r.BatteryLevel) {
			badBattery++
		}
	}

	check := func(column string, violations int) models.SchemaCheck {
		c := models.SchemaCheck{Column: column, Passed: violations == 0}
		if violations > 0 {
			c.Detail = fmt.Sprintf("%d violations", violations)
		}
		return c
	}

	return []models.SchemaCheck{
		check("sensor_id", badSensor),
		check("timestamp", badTS),
		check("reading_type", badType),
		check("value", badValue),
		check("battery_level", badBattery),
	}
}

func (rp *Reporter) rangeChecks(readings []models.Reading) []models.RangeCheck {
	totals := make(map[models.ReadingType]int)
	violations := make(map[models.ReadingType]int)
	for _, r := range readings {
		totals[r.ReadingType]++
		if rp.outOfRange(r) {
			violations[r.ReadingType]++
		}
	}

	checks := make([]models.RangeCheck, 0, len(totals))
	for _, rt := range sortedTypes(totals) {
		checks = append(checks, models.RangeCheck{
			ReadingType: rt,
			Total:       totals[rt],
			OutOfRange:  violations[rt],
		})
	}
	return checks
}

func (rp *Reporter) outOfRange(r models.Reading) bool {
	vr, ok := rp.ranges[r.ReadingType]
	if !ok {
		return false
	}
	return !math.IsNaN(r.Value) && !vr.Contains(r.Value)
}

func (rp *Reporter) anomalyProfiles(readings []models.Reading, isAnomaly func(models.Reading) bool) []models.AnomalyProfile {
	totals := make(map[models.ReadingType]int)
	anomalies := make(map[models.ReadingType]int)
	for _, r := range readings {
		totals[r.ReadingType]++
		if isAnomaly(r) {
			anomalies[r.ReadingType]++
		}
	}

	profiles := make([]models.AnomalyProfile, 0, len(totals))
	for _, rt := range sortedTypes(totals) {
		p := models.AnomalyProfile{
			ReadingType: rt,
			Total:       totals[rt],
			Anomalies:   anomalies[rt],
		}
		if p.Total > 0 {
			p.PctAnomaly = 100 * float64(p.Anomalies) / float64(p.Total)
		}
		profiles = append(profiles, p)
	}
	return profiles
}

// missingProfiles measures, per reading type, the share of expected hourly
// slots with no surviving reading, aggregated over sensors
func (rp *Reporter) missingProfiles(readings []models.Reading) []models.MissingProfile {
	type sensorType struct {
		sensorID    string
		readingType models.ReadingType
	}

	byGroup := make(map[sensorType][]time.Time)
	for _, r := range readings {
		key := sensorType{r.SensorID, r.ReadingType}
		byGroup[key] = append(byGroup[key], r.Timestamp)
	}

	expected := make(map[models.ReadingType]int)
	missing := make(map[models.ReadingType]int)
	for key, timestamps := range byGroup {
		hours := make(map[time.Time]struct{}, len(timestamps))
		var min, max time.Time
		for i, ts := range timestamps {
			hour := ts.UTC().Truncate(time.Hour)
			hours[hour] = struct{}{}
			if i == 0 || hour.Before(min) {
				min = hour
			}
			if i == 0 || hour.After(max) {
				max = hour
			}
		}
		span := int(max.Sub(min)/time.Hour) + 1
		expected[key.readingType] += span
		missing[key.readingType] += span - len(hours)
	}

	profiles := make([]models.MissingProfile, 0, len(expected))
	for _, rt := range sortedTypes(expected) {
		p := models.MissingProfile{
			ReadingType: rt,
			Expected:    expected[rt],
			Missing:     missing[rt],
		}
		if p.Expected > 0 {
			p.PctMissing = 100 * float64(p.Missing) / float64(p.Expected)
		}
		profiles = append(profiles, p)
	}
	return profiles
}

func sortedTypes[V any](m map[models.ReadingType]V) []models.ReadingType {
	types := make([]models.ReadingType, 0, len(m))
	for rt := range m {
		types = append(types, rt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
