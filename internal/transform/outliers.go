package transform

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/fieldsense/agripipe/pkg/models"
)

// groupKey identifies one statistical population for outlier testing
type groupKey struct {
	sensorID    string
	readingType models.ReadingType
}

// OutlierHandler removes statistical outliers per (sensor, reading type)
// group before derived metrics are computed. Removed readings are returned
// so the quality report can still tally them.
type OutlierHandler struct {
	threshold  float64
	minSamples int
	logger     *logrus.Logger
}

// NewOutlierHandler creates an outlier handler. threshold is the z-score
// cutoff (default 3.0); groups smaller than minSamples are exempt because
// the standard deviation is undefined or unstable there.
func NewOutlierHandler(threshold float64, minSamples int, logger *logrus.Logger) *OutlierHandler {
	if threshold <= 0 {
		threshold = 3.0
	}
	if minSamples < 2 {
		minSamples = 2
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &OutlierHandler{threshold: threshold, minSamples: minSamples, logger: logger}
}

// Remove splits readings into survivors and outliers. A reading is an
// outlier when |value - mean| / stddev exceeds the threshold within its
// (sensor, reading type) group.
func (h *OutlierHandler) Remove(readings []models.Reading) (kept, outliers []models.Reading) {
	groups := make(map[groupKey][]models.Reading)
	order := make([]groupKey, 0)
	for _, r := range readings {
		key := groupKey{r.SensorID, r.ReadingType}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	kept = make([]models.Reading, 0, len(readings))
	for _, key := range order {
		group := groups[key]
		if len(group) < h.minSamples {
			kept = append(kept, group...)
			continue
		}

		values := make([]float64, len(group))
		for i, r := range group {
			values[i] = r.Value
		}
		mean := stat.Mean(values, nil)
		stddev := stat.StdDev(values, nil)

		if stddev == 0 || math.IsNaN(stddev) {
			// All values identical; the z-score is undefined and nothing
			// can be an outlier.
			kept = append(kept, group...)
			continue
		}

		for _, r := range group {
			z := math.Abs(r.Value-mean) / stddev
			if z > h.threshold {
				outliers = append(outliers, r)
			} else {
				kept = append(kept, r)
			}
		}
	}

	if len(outliers) > 0 {
		h.logger.WithFields(logrus.Fields{
			"outliers_removed": len(outliers),
			"threshold":        h.threshold,
		}).Info("Statistical outliers removed")
	}

	return kept, outliers
}
