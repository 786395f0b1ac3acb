package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: TALLY_SYNC__FLUSH_INTERVAL=10s sets sync.flush_interval.
const EnvPrefix = "TALLY_"

// PathEnvVar overrides the config file location.
const PathEnvVar = "TALLY_CONFIG"

type Config struct {
	DBPath  string        `koanf:"db_path" validate:"required"`
	Log     LogConfig     `koanf:"log"`
	Remote  RemoteConfig  `koanf:"remote"`
	Sync    SyncConfig    `koanf:"sync"`
	History HistoryConfig `koanf:"history"`
	Goal    GoalConfig    `koanf:"goal"`
	Metrics MetricsConfig `koanf:"metrics"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	// File receives log output; "-" means stderr.
	File string `koanf:"file"`
}

type RemoteConfig struct {
	// Backend is "surreal" for a shared SurrealDB instance or "memory" for
	// a process-local aggregate (offline demo).
	Backend   string        `koanf:"backend" validate:"oneof=memory surreal"`
	URL       string        `koanf:"url" validate:"required_if=Backend surreal"`
	Namespace string        `koanf:"namespace" validate:"required_if=Backend surreal"`
	Database  string        `koanf:"database" validate:"required_if=Backend surreal"`
	Username  string        `koanf:"username"`
	Password  string        `koanf:"password"`
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
}

type SyncConfig struct {
	FlushInterval   time.Duration `koanf:"flush_interval" validate:"gt=0"`
	RemoteTimeout   time.Duration `koanf:"remote_timeout" validate:"gt=0"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"min=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

type HistoryConfig struct {
	MaxEntries int `koanf:"max_entries" validate:"min=1"`
	ChartDays  int `koanf:"chart_days" validate:"min=1,max=31"`
}

type GoalConfig struct {
	Target int64  `koanf:"target" validate:"gt=0"`
	Date   string `koanf:"date" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Locale string `koanf:"locale" validate:"required,bcp47_language_tag"`
}

// TargetDate parses Date. Validate guarantees it is well formed.
func (g GoalConfig) TargetDate() time.Time {
	t, _ := time.Parse(time.RFC3339, g.Date)
	return t
}

type MetricsConfig struct {
	// Addr serves /metrics when non-empty, e.g. "127.0.0.1:9464".
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := defaultDir()
	return &Config{
		DBPath: filepath.Join(dir, "tally.db"),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			File:   filepath.Join(dir, "tally.log"),
		},
		Remote: RemoteConfig{
			Backend:   "memory",
			Namespace: "tally",
			Database:  "tally",
			Timeout:   10 * time.Second,
		},
		Sync: SyncConfig{
			FlushInterval:   5 * time.Second,
			RemoteTimeout:   10 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		History: HistoryConfig{
			MaxEntries: 50,
			ChartDays:  7,
		},
		Goal: GoalConfig{
			Target: 150_000_000,
			Date:   "2025-09-15T00:00:00Z",
			Locale: "en-IN",
		},
	}
}

func defaultDir() string {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return ".tally"
	}
	return filepath.Join(cfg, "tally")
}

// Load layers defaults, the YAML file at path (or the discovered default
// file) and TALLY_ environment variables, then validates the result.
// An explicit path that does not exist is an error; a missing default file
// is not.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	} else if p := filepath.Join(defaultDir(), "config.yaml"); fileExists(p) {
		path = p
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps TALLY_SYNC__FLUSH_INTERVAL to sync.flush_interval.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
