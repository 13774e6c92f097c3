package quality

import (
	"sort"
	"time"

	"github.com/fieldsense/agripipe/pkg/models"
)

// DetectGaps finds the missing hourly slots for one sensor. The expected
// sequence spans [min observed, max observed] at hourly steps; the set
// difference against the observed hours is returned as contiguous ranges,
// not individual timestamps. A gap's End is the final minute of its last
// missing hour, so a gap covering the 03:00 and 04:00 slots reads
// 03:00–04:59.
func DetectGaps(observed []time.Time) []models.GapRange {
	if len(observed) == 0 {
		return nil
	}

	hours := make(map[time.Time]struct{}, len(observed))
	var min, max time.Time
	for i, ts := range observed {
		hour := ts.UTC().Truncate(time.Hour)
		hours[hour] = struct{}{}
		if i == 0 || hour.Before(min) {
			min = hour
		}
		if i == 0 || hour.After(max) {
			max = hour
		}
	}

	var gaps []models.GapRange
	var open *models.GapRange
	for slot := min; !slot.After(max); slot = slot.Add(time.Hour) {
		if _, ok := hours[slot]; ok {
			if open != nil {
				gaps = append(gaps, *open)
				open = nil
			}
			continue
		}
		if open == nil {
			open = &models.GapRange{Start: slot}
		}
		open.End = slot.Add(59 * time.Minute)
	}
	if open != nil {
		gaps = append(gaps, *open)
	}

	return gaps
}

// CoverageForSensors computes per-sensor hourly coverage over a set of
// readings, sorted by sensor ID for stable report output
func CoverageForSensors(readings []models.Reading) []models.SensorCoverage {
	bySensor := make(map[string][]time.Time)
	for _, r := range readings {
		bySensor[r.SensorID] = append(bySensor[r.SensorID], r.Timestamp)
	}

	sensors := make([]string, 0, len(bySensor))
	for id := range bySensor {
		sensors = append(sensors, id)
	}
	sort.Strings(sensors)

	coverage := make([]models.SensorCoverage, 0, len(sensors))
	for _, id := range sensors {
		timestamps := bySensor[id]

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

		expected := int(max.Sub(min)/time.Hour) + 1
		gaps := DetectGaps(timestamps)
		missing := 0
		for _, g := range gaps {
			missing += g.Hours()
		}

		coverage = append(coverage, models.SensorCoverage{
			SensorID:      id,
			ObservedHours: len(hours),
			ExpectedHours: expected,
			MissingHours:  missing,
			Gaps:          gaps,
		})
	}

	return coverage
}
