// Package config provides jobtrail configuration via Viper: TOML files
// with environment-variable overrides under the JOBTRAIL_ prefix.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/trailhq/jobtrail/errors"
)

// Config is the root jobtrail configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Pulse    PulseConfig    `mapstructure:"pulse"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PulseConfig holds scheduler and worker pool settings.
type PulseConfig struct {
	Workers                   int `mapstructure:"workers"`
	PollIntervalSeconds       int `mapstructure:"poll_interval_seconds"`
	SupervisorIntervalSeconds int `mapstructure:"supervisor_interval_seconds"`
	JobTTLSeconds             int `mapstructure:"job_ttl_seconds"`
	BatchSize                 int `mapstructure:"batch_size"`
}

// NotifyConfig holds delivery settings.
type NotifyConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	RateBurst     int     `mapstructure:"rate_burst"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

// SetDefaults registers every default on the given Viper instance.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "jobtrail.db")

	// Pulse (scheduler + worker pool) defaults
	v.SetDefault("pulse.workers", 1)
	v.SetDefault("pulse.poll_interval_seconds", 5)
	v.SetDefault("pulse.supervisor_interval_seconds", 60)
	v.SetDefault("pulse.job_ttl_seconds", 600)
	v.SetDefault("pulse.batch_size", 100)

	// Notify defaults: generous enough for the log sender, a real
	// transport tightens these in its config file
	v.SetDefault("notify.rate_per_second", 10.0)
	v.SetDefault("notify.rate_burst", 20)

	// Log defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// Load reads configuration from defaults, an optional jobtrail.toml in
// the working directory, and JOBTRAIL_* environment variables, highest
// precedence last.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("JOBTRAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	v.SetConfigName("jobtrail")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}
