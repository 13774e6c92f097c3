package calibration

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// profileKey distinguishes the lookup tiers: sensor+type beats sensor, which
// beats the reading-type default
type profileKey struct {
	sensorID    string
	readingType models.ReadingType
}

// Normalizer applies per-sensor calibration to raw values. Profiles are
// immutable reference data loaded once per run; the normalizer only reads
// them.
type Normalizer struct {
	profiles  map[profileKey]models.CalibrationProfile
	mandatory bool
	logger    *logrus.Logger

	fallbacks map[string]int
}

// Load reads calibration profiles from a JSON file: a flat list of
// {sensor_id, reading_type, offset, scale} entries where sensor_id and
// reading_type are each optional. A missing file with calibration not
// mandatory yields an empty profile set.
func Load(path string, mandatory bool, logger *logrus.Logger) (*Normalizer, error) {
	if logger == nil {
		logger = logrus.New()
	}

	n := &Normalizer{
		profiles:  make(map[profileKey]models.CalibrationProfile),
		mandatory: mandatory,
		logger:    logger,
		fallbacks: make(map[string]int),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if mandatory {
			return nil, errors.NewCalibrationError(errors.CodeProfileNotFound,
				fmt.Sprintf("calibration is mandatory but profile file %s does not exist", path))
		}
		logger.WithField("path", path).Warn("No calibration profile file; using identity calibration")
		return n, nil
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeCalibration,
			errors.CodeProfileInvalid, fmt.Sprintf("cannot read calibration profiles from %s", path))
	}

	var entries []models.CalibrationProfile
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeCalibration,
			errors.CodeProfileInvalid, fmt.Sprintf("calibration profile file %s is not valid JSON", path))
	}

	for _, p := range entries {
		if p.Scale == 0 {
			return nil, errors.NewCalibrationError(errors.CodeProfileInvalid,
				fmt.Sprintf("profile for sensor %q type %q has zero scale", p.SensorID, p.ReadingType))
		}
		n.profiles[profileKey{p.SensorID, p.ReadingType}] = p
	}

	logger.WithField("profiles", len(entries)).Info("Calibration profiles loaded")
	return n, nil
}

// NewNormalizer builds a normalizer from already-loaded profiles; used by
// tests and by callers that source profiles elsewhere
func NewNormalizer(profiles []models.CalibrationProfile, mandatory bool, logger *logrus.Logger) *Normalizer {
	if logger == nil {
		logger = logrus.New()
	}
	n := &Normalizer{
		profiles:  make(map[profileKey]models.CalibrationProfile, len(profiles)),
		mandatory: mandatory,
		logger:    logger,
		fallbacks: make(map[string]int),
	}
	for _, p := range profiles {
		n.profiles[profileKey{p.SensorID, p.ReadingType}] = p
	}
	return n
}

// Lookup resolves the profile for a reading: sensor+type, then sensor, then
// the reading-type default, then identity. The boolean reports whether a
// real profile matched.
func (n *Normalizer) Lookup(sensorID string, readingType models.ReadingType) (models.CalibrationProfile, bool) {
	if p, ok := n.profiles[profileKey{sensorID, readingType}]; ok {
		return p, true
	}
	if p, ok := n.profiles[profileKey{sensorID, ""}]; ok {
		return p, true
	}
	if p, ok := n.profiles[profileKey{"", readingType}]; ok {
		return p, true
	}
	return models.IdentityProfile, false
}

// Verify reports the first mandatory-calibration miss in a set of readings,
// or nil. It lets callers reject a batch at admission time instead of
// failing mid-transform, keeping calibration failures scoped to one batch.
func (n *Normalizer) Verify(readings []models.Reading) error {
	if !n.mandatory {
		return nil
	}
	for _, r := range readings {
		if _, found := n.Lookup(r.SensorID, r.ReadingType); !found {
			return errors.NewCalibrationError(errors.CodeProfileNotFound,
				fmt.Sprintf("no calibration profile for sensor %q type %q", r.SensorID, r.ReadingType)).
				WithContext("sensor_id", r.SensorID).
				WithContext("reading_type", string(r.ReadingType))
		}
	}
	return nil
}

// Apply calibrates every reading in place: value' = (value + offset) * scale.
// Missing profiles fail only when calibration is mandatory; otherwise the
// identity fallback is applied silently and counted per sensor for the run
// summary.
func (n *Normalizer) Apply(readings []models.Reading) ([]models.Reading, error) {
	out := make([]models.Reading, len(readings))
	for i, r := range readings {
		profile, found := n.Lookup(r.SensorID, r.ReadingType)
		if !found {
			if n.mandatory {
				return nil, errors.NewCalibrationError(errors.CodeProfileNotFound,
					fmt.Sprintf("no calibration profile for sensor %q type %q", r.SensorID, r.ReadingType)).
					WithContext("sensor_id", r.SensorID).
					WithContext("reading_type", string(r.ReadingType))
			}
			n.fallbacks[r.SensorID]++
		}
		r.Value = profile.Apply(r.Value)
		out[i] = r
	}
	return out, nil
}

// FallbackCounts returns how many readings per sensor fell back to identity
// calibration during Apply
func (n *Normalizer) FallbackCounts() map[string]int {
	counts := make(map[string]int, len(n.fallbacks))
	for k, v := range n.fallbacks {
		counts[k] = v
	}
	return counts
}
