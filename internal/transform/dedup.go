package transform

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/pkg/models"
)

// Deduplicator resolves natural-key collisions deterministically
type Deduplicator struct {
	ranges map[models.ReadingType]models.ValueRange
	logger *logrus.Logger
}

// NewDeduplicator creates a deduplicator using the given physical bounds for
// the in-range tie-break
func NewDeduplicator(ranges map[models.ReadingType]models.ValueRange, logger *logrus.Logger) *Deduplicator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Deduplicator{ranges: ranges, logger: logger}
}

// Deduplicate groups readings by natural key and keeps exactly one per
// group. The resolved count of removed duplicates is returned for the run
// summary. Output order is deterministic: sorted by natural key.
func (d *Deduplicator) Deduplicate(readings []models.Reading) ([]models.Reading, int) {
	groups := make(map[models.NaturalKey][]models.Reading)
	for _, r := range readings {
		groups[r.Key()] = append(groups[r.Key()], r)
	}

	survivors := make([]models.Reading, 0, len(groups))
	duplicates := 0
	for _, group := range groups {
		if len(group) > 1 {
			duplicates += len(group) - 1
		}
		survivors = append(survivors, d.Resolve(group))
	}

	sort.Slice(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.SensorID != b.SensorID {
			return a.SensorID < b.SensorID
		}
		if a.ReadingType != b.ReadingType {
			return a.ReadingType < b.ReadingType
		}
		return a.Timestamp.Before(b.Timestamp)
	})

	if duplicates > 0 {
		d.logger.WithField("duplicates_resolved", duplicates).Info("Duplicate readings resolved")
	}

	return survivors, duplicates
}

// Resolve picks the surviving reading from a set sharing one natural key.
// It is a pure function of the conflicting set: the same input set always
// yields the same survivor, regardless of input order.
//
// Preference order:
//  1. the reading from the most recently ingested source batch; source
//     files are date-named, so lexicographic origin order is batch order;
//  2. a usable value: in-range beats out-of-range beats NaN;
//  3. remaining ties broken on value, then battery level, descending.
func (d *Deduplicator) Resolve(group []models.Reading) models.Reading {
	if len(group) == 1 {
		return group[0]
	}

	best := group[0]
	for _, candidate := range group[1:] {
		if d.prefer(candidate, best) {
			best = candidate
		}
	}
	return best
}

func (d *Deduplicator) prefer(a, b models.Reading) bool {
	if a.RawFileOrigin != b.RawFileOrigin {
		return a.RawFileOrigin > b.RawFileOrigin
	}
	ra, rb := d.valueRank(a), d.valueRank(b)
	if ra != rb {
		return ra > rb
	}
	if a.Value != b.Value {
		// NaN compares false both ways; the rank above already separated
		// NaN from real values.
		return a.Value > b.Value
	}
	return a.BatteryLevel > b.BatteryLevel
}

// valueRank orders candidate usability: 2 in-range, 1 out-of-range, 0 NaN
func (d *Deduplicator) valueRank(r models.Reading) int {
	if math.IsNaN(r.Value) {
		return 0
	}
	if vr, ok := d.ranges[r.ReadingType]; ok && vr.Contains(r.Value) {
		return 2
	}
	return 1
}
