package config

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/rain-1/lumbergh/internal/env"
	"github.com/rain-1/lumbergh/internal/logger"
	"github.com/rain-1/lumbergh/internal/process"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. LUMBERGH_INTERVAL or LUMBERGH_LOG_LEVEL.
const EnvPrefix = "LUMBERGH"

// Config represents the optional TOML file merged with environment and flags.
type Config struct {
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
	Capacity int           `toml:"capacity" mapstructure:"capacity"`
	Watch    bool          `toml:"watch" mapstructure:"watch"`
	Lock     bool          `toml:"lock" mapstructure:"lock"`
	Setsid   bool          `toml:"setsid" mapstructure:"setsid"`

	UseOSEnv bool     `toml:"use_os_env" mapstructure:"use_os_env"`
	Env      []string `toml:"env" mapstructure:"env"`
	EnvFiles []string `toml:"env_files" mapstructure:"env_files"`

	Log     logger.Config `toml:"log" mapstructure:"log"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type MetricsConfig struct {
	Enabled        bool   `toml:"enabled" mapstructure:"enabled"`
	Listen         string `toml:"listen" mapstructure:"listen"`
	ProcessMetrics bool   `toml:"process_metrics" mapstructure:"process_metrics"`
}

type HistoryConfig struct {
	// DSN selects the sink; see history/factory. Empty disables history.
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// New returns a viper instance with defaults and environment overrides set.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every known key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("interval", time.Second)
	v.SetDefault("capacity", process.DefaultCapacity)
	v.SetDefault("watch", false)
	v.SetDefault("lock", true)
	v.SetDefault("setsid", true)
	v.SetDefault("use_os_env", true)
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.journal", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.process_metrics", false)

	v.SetDefault("history.dsn", "")
}

// Load reads path (when non-empty) into v, unmarshals and validates.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile is Load with a fresh viper instance.
func LoadFile(path string) (*Config, error) {
	return Load(New(), path)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return errors.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.Capacity < 1 {
		return errors.Errorf("capacity must be at least 1, got %d", c.Capacity)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	for _, kv := range c.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return errors.Wrapf(env.ErrMalformed, "env entry %q", kv)
		}
	}
	if c.Metrics.ProcessMetrics && !c.Metrics.Enabled {
		return errors.New("metrics.process_metrics requires metrics.enabled")
	}
	return nil
}

// ServiceEnv composes the environment handed to every service.
// Precedence: OS env (when use_os_env) provides base; then env_files in
// order; then the env list overrides last.
func (c *Config) ServiceEnv() ([]string, error) {
	e := env.New(c.UseOSEnv)
	for _, p := range c.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, err
		}
		if err := e.SetPairs(pairs); err != nil {
			return nil, errors.Wrapf(err, "env file %s", p)
		}
	}
	if err := e.SetPairs(c.Env); err != nil {
		return nil, err
	}
	return e.Merge(), nil
}

// LoadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Blank lines and lines starting with # are ignored.
func LoadEnvFile(path string) ([]string, error) {
	// #nosec G304
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open env file")
	}
	defer func() { _ = f.Close() }()

	var out []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out = append(out, k+"="+strings.TrimSpace(v))
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrap(err, "read env file")
	}
	return out, nil
}
