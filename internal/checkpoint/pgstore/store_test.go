package pgstore

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/agripipe/pkg/models"
)

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(&Config{}, logrus.New())
	assert.Error(t, err)

	_, err = New(nil, logrus.New())
	assert.Error(t, err)
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("AGRIPIPE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Integration test - requires a running Postgres instance")
	}

	store, err := New(&Config{DSN: dsn, Table: "checkpoint_roundtrip_test"}, logrus.New())
	require.NoError(t, err)
	defer store.Close()

	commitTime := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)
	saved := map[string]models.CheckpointRecord{
		"2024-03-15.csv": {
			BatchID:    "2024-03-15.csv",
			CommitTime: commitTime,
			RunID:      "run-1",
			Partitions: []string{"date=2024-03-15/sensor_id=field-01", "date=2024-03-15/sensor_id=field-02"},
		},
	}
	require.NoError(t, store.Save(saved))

	loaded, err := store.Load()
	require.NoError(t, err)
	rec, ok := loaded["2024-03-15.csv"]
	require.True(t, ok)
	assert.Equal(t, "run-1", rec.RunID)
	assert.True(t, rec.CommitTime.Equal(commitTime))
	// Partitions survive the round trip, same as the file and redis stores.
	assert.Equal(t, saved["2024-03-15.csv"].Partitions, rec.Partitions)
}
