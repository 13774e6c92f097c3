package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// FileStore persists the checkpoint as a JSON file. A missing file means a
// first run and yields an empty checkpoint; an unreadable or unparseable
// file is an error, never an empty checkpoint.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed checkpoint store
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the checkpoint file
func (s *FileStore) Load() (map[string]models.CheckpointRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]models.CheckpointRecord), nil
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointUnreadable, fmt.Sprintf("cannot read checkpoint file %s", s.path))
	}

	var records map[string]models.CheckpointRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointCorrupt, fmt.Sprintf("checkpoint file %s is corrupt", s.path))
	}

	return records, nil
}

// Save writes the checkpoint atomically: write to a temp file in the same
// directory, then rename over the old checkpoint.
func (s *FileStore) Save(records map[string]models.CheckpointRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointWriteFailed, "cannot encode checkpoint")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointWriteFailed, fmt.Sprintf("cannot create temp file in %s", dir))
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointWriteFailed, "cannot write checkpoint")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointWriteFailed, "cannot flush checkpoint")
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.WrapError(err, errors.ErrorTypeCheckpoint,
			errors.CodeCheckpointWriteFailed, fmt.Sprintf("cannot replace checkpoint file %s", s.path))
	}

	return nil
}
