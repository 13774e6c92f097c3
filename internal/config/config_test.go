package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "data/raw", cfg.RawDataPath)
	assert.Equal(t, "file", cfg.Checkpoint.Backend)
	assert.Equal(t, 3.0, cfg.Transform.ZScoreThreshold)
	assert.Equal(t, 7, cfg.Transform.RollingWindow)
	assert.Equal(t, "UTC", cfg.Transform.OutputTimeZone)
	assert.Equal(t, "zstd", cfg.Storage.Compression)
	assert.False(t, cfg.Storage.Overwrite)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agripipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
raw_data_path: /srv/field/raw
transform:
  rolling_window_days: 14
  output_timezone: Europe/Berlin
storage:
  compression: gzip
ranges:
  temperature:
    low: -10
    high: 45
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/field/raw", cfg.RawDataPath)
	assert.Equal(t, 14, cfg.Transform.RollingWindow)
	assert.Equal(t, "Europe/Berlin", cfg.Transform.OutputTimeZone)
	assert.Equal(t, "gzip", cfg.Storage.Compression)

	ranges := cfg.ValueRanges()
	assert.Equal(t, models.ValueRange{Low: -10, High: 45}, ranges[models.ReadingTemperature])
	// Unoverridden types keep their defaults.
	assert.Equal(t, models.DefaultValueRanges[models.ReadingHumidity], ranges[models.ReadingHumidity])
}

func TestLoadRejectsCorruptDefaultFile(t *testing.T) {
	// A malformed agripipe.yaml on the search path must abort the load
	// instead of silently falling back to defaults.
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agripipe.yaml"),
		[]byte("storage: [not: valid: yaml"), 0o644))
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	cfg, err := Load("")
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeConfiguration))
}

func TestLoadRejectsCorruptExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("raw_data_path: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeConfiguration))
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Checkpoint.Backend = "etcd"
	assertInvalid(t, cfg)

	cfg = base()
	cfg.Storage.Compression = "brotli"
	assertInvalid(t, cfg)

	cfg = base()
	cfg.Transform.MinSampleCount = 1
	assertInvalid(t, cfg)

	cfg = base()
	cfg.Transform.OutputTimeZone = "Mars/Olympus"
	assertInvalid(t, cfg)

	cfg = base()
	cfg.Checkpoint.Backend = "redis"
	cfg.Checkpoint.RedisAddr = ""
	assertInvalid(t, cfg)
}

func assertInvalid(t *testing.T, cfg *Config) {
	t.Helper()
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrorTypeConfiguration))
	assert.True(t, errors.IsRunFatal(err))
}
