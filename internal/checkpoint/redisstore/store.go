package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// Config holds the connection settings for the Redis checkpoint store
type Config struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	Key      string        `json:"key"`
	Timeout  time.Duration `json:"timeout"`
}

// Store keeps the checkpoint as a Redis hash keyed by batch identifier, one
// JSON-encoded record per field. Saves rewrite only from an in-memory
// snapshot, so the hash always reflects a consistent run state.
type Store struct {
	config *Config
	client *redis.Client
	logger *logrus.Logger
}

// New creates a Redis-backed checkpoint store and verifies connectivity
func New(config *Config, logger *logrus.Logger) (*Store, error) {
	if config == nil || config.Addr == "" {
		return nil, errors.NewCheckpointError(errors.CodeCheckpointUnreadable,
			"redis checkpoint store requires an address")
	}
	if config.Key == "" {
		config.Key = "agripipe:checkpoint"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.Timeout,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointUnreadable, fmt.Sprintf("cannot reach redis at %s", config.Addr))
	}

	logger.WithFields(logrus.Fields{
		"addr": config.Addr,
		"key":  config.Key,
	}).Info("Connected to redis checkpoint store")

	return &Store{config: config, client: client, logger: logger}, nil
}

// Load reads every committed batch record from the checkpoint hash
func (s *Store) Load() (map[string]models.CheckpointRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, s.config.Key).Result()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointUnreadable, "cannot read checkpoint hash")
	}

	records := make(map[string]models.CheckpointRecord, len(fields))
	for batchID, raw := range fields {
		var rec models.CheckpointRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
				errors.CodeCheckpointCorrupt, fmt.Sprintf("checkpoint record for %s is corrupt", batchID))
		}
		records[batchID] = rec
	}

	return records, nil
}

// Save replaces the checkpoint hash with the given records in a single
// transaction
func (s *Store) Save(records map[string]models.CheckpointRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	fields := make(map[string]interface{}, len(records))
	for batchID, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return errors.WrapError(err, errors.ErrorTypeCheckpoint,
				errors.CodeCheckpointWriteFailed, "cannot encode checkpoint record")
		}
		fields[batchID] = raw
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.config.Key)
	if len(fields) > 0 {
		pipe.HSet(ctx, s.config.Key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointWriteFailed, "cannot persist checkpoint hash")
	}

	return nil
}

// Close releases the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
