package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fieldsense/agripipe/pkg/errors"
	"github.com/fieldsense/agripipe/pkg/models"
)

// Config is the full pipeline configuration, loaded once per invocation and
// passed explicitly into every run. There is no ambient global.
type Config struct {
	RawDataPath       string `mapstructure:"raw_data_path"`
	ProcessedDataPath string `mapstructure:"processed_data_path"`
	ReportPath        string `mapstructure:"report_path"`
	MetricsPath       string `mapstructure:"metrics_path"` // empty disables the textfile export

	Checkpoint  CheckpointConfig  `mapstructure:"checkpoint"`
	Transform   TransformConfig   `mapstructure:"transform"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Ranges      map[string]Range  `mapstructure:"ranges"`
}

// CheckpointConfig selects and configures the checkpoint store backend
type CheckpointConfig struct {
	Backend string `mapstructure:"backend"` // "file", "redis", "postgres"
	Path    string `mapstructure:"path"`    // file backend

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`

	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// TransformConfig holds the statistical cleaning parameters
type TransformConfig struct {
	ZScoreThreshold float64 `mapstructure:"zscore_threshold"`
	MinSampleCount  int     `mapstructure:"min_sample_count"`
	RollingWindow   int     `mapstructure:"rolling_window_days"`
	OutputTimeZone  string  `mapstructure:"output_timezone"`
}

// CalibrationConfig locates the calibration reference data
type CalibrationConfig struct {
	ProfilePath string `mapstructure:"profile_path"`
	Mandatory   bool   `mapstructure:"mandatory"`
}

// StorageConfig selects and configures the partition sink
type StorageConfig struct {
	Backend           string `mapstructure:"backend"` // "file", "s3"
	Compression       string `mapstructure:"compression"`
	PartitionBySensor bool   `mapstructure:"partition_by_sensor"`
	Overwrite         bool   `mapstructure:"overwrite"`

	S3Region string `mapstructure:"s3_region"`
	S3Bucket string `mapstructure:"s3_bucket"`
	S3Prefix string `mapstructure:"s3_prefix"`

	InfluxEnabled bool   `mapstructure:"influx_enabled"`
	InfluxURL     string `mapstructure:"influx_url"`
	InfluxToken   string `mapstructure:"influx_token"`
	InfluxOrg     string `mapstructure:"influx_org"`
	InfluxBucket  string `mapstructure:"influx_bucket"`

	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Range mirrors models.ValueRange for mapstructure decoding
type Range struct {
	Low  float64 `mapstructure:"low"`
	High float64 `mapstructure:"high"`
}

// Load reads the configuration file (when given) plus AGRIPIPE_* environment
// overrides and returns the validated configuration
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("agripipe")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AGRIPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover everything.
		// Anything else, including a malformed file found on the search path,
		// must not be papered over with defaults.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.WrapError(err, errors.ErrorTypeConfiguration,
				errors.CodeInvalidConfig, "failed to read configuration file")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration,
			errors.CodeInvalidConfig, "failed to decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("raw_data_path", "data/raw")
	v.SetDefault("processed_data_path", "data/processed")
	v.SetDefault("report_path", "data_quality_report.csv")

	v.SetDefault("checkpoint.backend", "file")
	v.SetDefault("checkpoint.path", "ingestion_checkpoint.json")
	v.SetDefault("checkpoint.redis_key", "agripipe:checkpoint")
	v.SetDefault("checkpoint.postgres_table", "ingestion_checkpoint")

	v.SetDefault("transform.zscore_threshold", 3.0)
	v.SetDefault("transform.min_sample_count", 2)
	v.SetDefault("transform.rolling_window_days", 7)
	v.SetDefault("transform.output_timezone", "UTC")

	v.SetDefault("calibration.profile_path", "calibration.json")
	v.SetDefault("calibration.mandatory", false)

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.compression", "zstd")
	v.SetDefault("storage.partition_by_sensor", true)
	v.SetDefault("storage.overwrite", false)
	v.SetDefault("storage.write_timeout", 30*time.Second)
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	if c.RawDataPath == "" {
		return errors.NewConfigurationError(errors.CodeMissingConfig, "raw_data_path is required")
	}
	if c.ProcessedDataPath == "" {
		return errors.NewConfigurationError(errors.CodeMissingConfig, "processed_data_path is required")
	}

	switch c.Checkpoint.Backend {
	case "file":
		if c.Checkpoint.Path == "" {
			return errors.NewConfigurationError(errors.CodeMissingConfig, "checkpoint.path is required for the file backend")
		}
	case "redis":
		if c.Checkpoint.RedisAddr == "" {
			return errors.NewConfigurationError(errors.CodeMissingConfig, "checkpoint.redis_addr is required for the redis backend")
		}
	case "postgres":
		if c.Checkpoint.PostgresDSN == "" {
			return errors.NewConfigurationError(errors.CodeMissingConfig, "checkpoint.postgres_dsn is required for the postgres backend")
		}
	default:
		return errors.NewConfigurationError(errors.CodeInvalidConfig,
			"checkpoint.backend must be one of file, redis, postgres")
	}

	switch c.Storage.Backend {
	case "file":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return errors.NewConfigurationError(errors.CodeMissingConfig, "storage.s3_bucket is required for the s3 backend")
		}
	default:
		return errors.NewConfigurationError(errors.CodeInvalidConfig,
			"storage.backend must be one of file, s3")
	}

	switch c.Storage.Compression {
	case "gzip", "zstd", "none":
	default:
		return errors.NewConfigurationError(errors.CodeInvalidConfig,
			"storage.compression must be one of gzip, zstd, none")
	}

	if c.Transform.ZScoreThreshold <= 0 {
		return errors.NewConfigurationError(errors.CodeInvalidConfig,
			"transform.zscore_threshold must be positive")
	}
	if c.Transform.MinSampleCount < 2 {
		return errors.NewConfigurationError(errors.CodeInvalidConfig,
			"transform.min_sample_count must be at least 2")
	}
	if c.Transform.RollingWindow < 1 {
		return errors.NewConfigurationError(errors.CodeInvalidConfig,
			"transform.rolling_window_days must be at least 1")
	}

	if _, err := time.LoadLocation(c.Transform.OutputTimeZone); err != nil {
		return errors.WrapError(err, errors.ErrorTypeConfiguration,
			errors.CodeInvalidConfig, "transform.output_timezone is not a valid IANA zone")
	}

	return nil
}

// ValueRanges returns the configured physical bounds, falling back to the
// built-in defaults for types the configuration does not override
func (c *Config) ValueRanges() map[models.ReadingType]models.ValueRange {
	ranges := make(map[models.ReadingType]models.ValueRange, len(models.DefaultValueRanges))
	for rt, vr := range models.DefaultValueRanges {
		ranges[rt] = vr
	}
	for name, r := range c.Ranges {
		ranges[models.ReadingType(name)] = models.ValueRange{Low: r.Low, High: r.High}
	}
	return ranges
}
