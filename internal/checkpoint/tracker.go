package checkpoint

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// Store persists the set of committed batch records. Load is called once at
// run start; Save after each successful commit so a mid-run crash never
// reprocesses committed batches.
type Store interface {
	Load() (map[string]models.CheckpointRecord, error)
	Save(records map[string]models.CheckpointRecord) error
}

// Tracker gates which batches enter the pipeline. A batch identifier present
// in the checkpoint is never re-read or re-committed, even if the underlying
// file reappears in the input set.
type Tracker struct {
	store  Store
	logger *logrus.Logger

	mu      sync.Mutex
	records map[string]models.CheckpointRecord
}

// NewTracker loads the checkpoint once and returns the tracker. An
// unreadable or corrupt store fails fast: treating everything as
// unprocessed would duplicate writes, treating everything as processed
// would lose data.
func NewTracker(store Store, logger *logrus.Logger) (*Tracker, error) {
	if logger == nil {
		logger = logrus.New()
	}

	records, err := store.Load()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointUnreadable, "checkpoint load failed; aborting to avoid duplicate or lost data")
	}
	if records == nil {
		records = make(map[string]models.CheckpointRecord)
	}

	logger.WithField("committed_batches", len(records)).Info("Checkpoint loaded")

	return &Tracker{
		store:   store,
		logger:  logger,
		records: records,
	}, nil
}

// IsProcessed reports whether the batch has already been committed
func (t *Tracker) IsProcessed(batchID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.records[batchID]
	return ok
}

// MarkProcessed records a successful commit and persists the checkpoint.
// The read-modify-write is a single critical section so concurrent batch
// commits cannot interleave.
func (t *Tracker) MarkProcessed(batchID string, commitTime time.Time, runID string, partitions []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[batchID] = models.CheckpointRecord{
		BatchID:    batchID,
		CommitTime: commitTime,
		RunID:      runID,
		Partitions: partitions,
	}

	if err := t.store.Save(t.records); err != nil {
		// Roll the in-memory state back so a retry re-commits cleanly.
		delete(t.records, batchID)
		return errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointWriteFailed, "checkpoint persist failed")
	}

	t.logger.WithFields(logrus.Fields{
		"batch_id":    batchID,
		"commit_time": commitTime.UTC().Format(time.RFC3339),
	}).Info("Batch marked processed")

	return nil
}

// Committed returns a snapshot of the committed batch identifiers
func (t *Tracker) Committed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	return ids
}
