package influx

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// MirrorConfig configures the optional InfluxDB mirror
type MirrorConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// Mirror pushes committed processed readings into InfluxDB for dashboarding.
// It is an additional destination, not the system of record: partition files
// remain authoritative, and mirror failures are surfaced to the caller to
// decide on.
type Mirror struct {
	config   *MirrorConfig
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *logrus.Logger
}

// NewMirror creates the InfluxDB mirror and verifies connectivity
func NewMirror(config *MirrorConfig, logger *logrus.Logger) (*Mirror, error) {
	if config == nil || config.URL == "" {
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "influx mirror requires a URL")
	}
	if logger == nil {
		logger = logrus.New()
	}

	client := influxdb2.NewClient(config.URL, config.Token)
	ok, err := client.Ping(context.Background())
	if err != nil || !ok {
		client.Close()
		return nil, errors.WrapError(err, errors.ErrorTypeStorage,
			errors.CodeConnectionFailed, fmt.Sprintf("cannot reach influxdb at %s", config.URL))
	}

	logger.WithFields(logrus.Fields{
		"url":    config.URL,
		"bucket": config.Bucket,
	}).Info("Connected to InfluxDB mirror")

	return &Mirror{
		config:   config,
		client:   client,
		writeAPI: client.WriteAPIBlocking(config.Org, config.Bucket),
		logger:   logger,
	}, nil
}

// Write pushes one point per processed reading, tagged by sensor and type
func (m *Mirror) Write(ctx context.Context, readings []models.ProcessedReading) error {
	for _, r := range readings {
		point := influxdb2.NewPoint(
			string(r.ReadingType),
			map[string]string{
				"sensor_id": r.SensorID,
			},
			map[string]interface{}{
				"value":            r.Value,
				"calibrated_value": r.CalibratedValue,
				"daily_avg":        r.DailyAvg,
				"rolling_7d_avg":   r.Rolling7dAvg,
				"battery_level":    r.BatteryLevel,
				"is_anomaly":       r.IsAnomaly,
			},
			r.Timestamp,
		)
		if err := m.writeAPI.WritePoint(ctx, point); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage,
				errors.CodeWriteFailed, "influx mirror write failed")
		}
	}

	m.logger.WithField("points", len(readings)).Debug("Readings mirrored to InfluxDB")
	return nil
}

// Close releases the InfluxDB client
func (m *Mirror) Close() error {
	m.client.Close()
	return nil
}
