package transform

import (
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/fieldsense/agripipe/pkg/models"
)

// dailyKey identifies one (sensor, reading type, calendar date) aggregate
type dailyKey struct {
	sensorID    string
	readingType models.ReadingType
	date        time.Time
}

// Deriver computes the daily average, the trailing rolling average and the
// domain anomaly flag for calibrated readings
type Deriver struct {
	windowDays int
	ranges     map[models.ReadingType]models.ValueRange
	logger     *logrus.Logger
}

// NewDeriver creates a deriver with the given rolling window in calendar
// days and the absolute bounds used for anomaly flagging
func NewDeriver(windowDays int, ranges map[models.ReadingType]models.ValueRange, logger *logrus.Logger) *Deriver {
	if windowDays < 1 {
		windowDays = 7
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Deriver{windowDays: windowDays, ranges: ranges, logger: logger}
}

// Derive augments calibrated readings with daily averages, rolling averages
// and anomaly flags. Input readings carry calibrated values; the raw value
// is preserved on the embedded Reading.
//
// The rolling average for a date is the mean of daily averages over the
// trailing window ending at that date, inclusive, counting only days that
// have at least one observation. Days with no observations are excluded
// from the denominator, never treated as zero.
//
// The anomaly flag is a domain-threshold check on the calibrated value; it
// marks the reading in the output and never removes it. This is distinct
// from the statistical outlier removal that ran earlier.
func (d *Deriver) Derive(raw, calibrated []models.Reading) []models.ProcessedReading {
	dailyValues := make(map[dailyKey][]float64)
	for _, r := range calibrated {
		key := dailyKey{r.SensorID, r.ReadingType, r.Date()}
		dailyValues[key] = append(dailyValues[key], r.Value)
	}

	dailyAvg := make(map[dailyKey]float64, len(dailyValues))
	for key, values := range dailyValues {
		dailyAvg[key] = stat.Mean(values, nil)
	}

	rolling := d.rollingAverages(dailyAvg)

	processed := make([]models.ProcessedReading, len(calibrated))
	anomalies := 0
	for i, r := range calibrated {
		key := dailyKey{r.SensorID, r.ReadingType, r.Date()}

		isAnomaly := false
		if vr, ok := d.ranges[r.ReadingType]; ok && !vr.Contains(r.Value) {
			isAnomaly = true
			anomalies++
		}

		reading := r
		if i < len(raw) {
			reading.Value = raw[i].Value
		}

		processed[i] = models.ProcessedReading{
			Reading:         reading,
			CalibratedValue: r.Value,
			DailyAvg:        dailyAvg[key],
			Rolling7dAvg:    rolling[key],
			IsAnomaly:       isAnomaly,
			IsImputed:       false,
		}
	}

	d.logger.WithFields(logrus.Fields{
		"readings":    len(processed),
		"daily_keys":  len(dailyAvg),
		"anomalies":   anomalies,
		"window_days": d.windowDays,
	}).Info("Derived metrics computed")

	return processed
}

// rollingAverages computes, for every (sensor, type, date) with a daily
// average, the mean of daily averages over the trailing window
func (d *Deriver) rollingAverages(dailyAvg map[dailyKey]float64) map[dailyKey]float64 {
	rolling := make(map[dailyKey]float64, len(dailyAvg))
	for key := range dailyAvg {
		var window []float64
		for back := 0; back < d.windowDays; back++ {
			day := dailyKey{key.sensorID, key.readingType, key.date.AddDate(0, 0, -back)}
			if avg, ok := dailyAvg[day]; ok {
				window = append(window, avg)
			}
		}
		rolling[key] = stat.Mean(window, nil)
	}
	return rolling
}
