package pgstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// Config holds the connection settings for the Postgres checkpoint store
type Config struct {
	DSN   string `json:"dsn"`
	Table string `json:"table"`
}

// Store keeps one row per committed batch in a Postgres table. Rows are
// append-only within a run; Save upserts so re-saving after each commit is
// idempotent.
type Store struct {
	config *Config
	db     *sql.DB
	logger *logrus.Logger
}

// New opens the Postgres checkpoint store and ensures its table exists
func New(config *Config, logger *logrus.Logger) (*Store, error) {
	if config == nil || config.DSN == "" {
		return nil, errors.NewCheckpointError(errors.CodeCheckpointUnreadable,
			"postgres checkpoint store requires a DSN")
	}
	if config.Table == "" {
		config.Table = "ingestion_checkpoint"
	}
	if logger == nil {
		logger = logrus.New()
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointUnreadable, "cannot open postgres connection")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointUnreadable, "cannot reach postgres")
	}

	createStmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			batch_id    TEXT PRIMARY KEY,
			commit_time TIMESTAMPTZ NOT NULL,
			run_id      TEXT NOT NULL DEFAULT '',
			partitions  TEXT[] NOT NULL DEFAULT '{}'
		)`, config.Table)
	if _, err := db.Exec(createStmt); err != nil {
		db.Close()
		return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointUnreadable, "cannot ensure checkpoint table")
	}

	logger.WithField("table", config.Table).Info("Connected to postgres checkpoint store")

	return &Store{config: config, db: db, logger: logger}, nil
}

// Load reads every committed batch record
func (s *Store) Load() (map[string]models.CheckpointRecord, error) {
	rows, err := s.db.Query(fmt.Sprintf(
		"SELECT batch_id, commit_time, run_id, partitions FROM %s", s.config.Table))
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointUnreadable, "cannot query checkpoint table")
	}
	defer rows.Close()

	records := make(map[string]models.CheckpointRecord)
	for rows.Next() {
		var rec models.CheckpointRecord
		var commitTime time.Time
		if err := rows.Scan(&rec.BatchID, &commitTime, &rec.RunID, pq.Array(&rec.Partitions)); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
				errors.CodeCheckpointCorrupt, "cannot scan checkpoint row")
		}
		rec.CommitTime = commitTime
		records[rec.BatchID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointUnreadable, "checkpoint scan interrupted")
	}

	return records, nil
}

// Save upserts every record inside one transaction, so a commit is either
// fully recorded or not at all
func (s *Store) Save(records map[string]models.CheckpointRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointWriteFailed, "cannot begin checkpoint transaction")
	}

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (batch_id, commit_time, run_id, partitions)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (batch_id) DO UPDATE
		SET commit_time = EXCLUDED.commit_time,
		    run_id = EXCLUDED.run_id,
		    partitions = EXCLUDED.partitions`,
		s.config.Table))
	if err != nil {
		tx.Rollback()
		return errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointWriteFailed, "cannot prepare checkpoint upsert")
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.BatchID, rec.CommitTime, rec.RunID, pq.Array(rec.Partitions)); err != nil {
			tx.Rollback()
			return errors.WrapError(err, errors.ErrorTypeCheckpoint,
				errors.CodeCheckpointWriteFailed, fmt.Sprintf("cannot upsert checkpoint row for %s", rec.BatchID))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointWriteFailed, "cannot commit checkpoint transaction")
	}

	return nil
}

// Close releases the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
