package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/geolink/internal/strsim"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Block artifact backends
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// ConfigurationError is fatal: it is reported before any matching begins
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Config is the full application configuration
type Config struct {
	Matching MatchingConfig `yaml:"matching"`
	Storage  StorageConfig  `yaml:"storage"`
	Blocks   BlocksConfig   `yaml:"blocks"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// MatchingConfig holds the tunable parameters of blocking and matching.
//
//   - BufferDistanceMeters: tolerance added to top-level boundaries during blocking
//   - StringThreshold: maximum accepted name distance, in [0,1]
//   - MaxSpatialDistanceMeters: spatial gate for an otherwise selected candidate
//   - PrefixWeight: Winkler boost strength, in [0, 0.2]
//   - RegionNameThreshold: maximum name distance for the region-name fallback
//   - WorkerCount: number of matching goroutines
type MatchingConfig struct {
	BufferDistanceMeters     float64 `yaml:"buffer_distance_meters"`
	StringThreshold          float64 `yaml:"string_threshold"`
	MaxSpatialDistanceMeters float64 `yaml:"max_spatial_distance_meters"`
	PrefixWeight             float64 `yaml:"prefix_weight"`
	RegionNameThreshold      float64 `yaml:"region_name_threshold"`
	StringMetric             string  `yaml:"string_metric"`
	WorkerCount              int     `yaml:"worker_count"`
	BatchSize                int     `yaml:"batch_size"`
	TopLevel                 string  `yaml:"top_level"`
}

// Validate validates the matching configuration
func (c *MatchingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BufferDistanceMeters, validation.Min(0.0)),
		validation.Field(&c.StringThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.MaxSpatialDistanceMeters, validation.Min(0.0)),
		validation.Field(&c.PrefixWeight, validation.Min(0.0), validation.Max(strsim.MaxPrefixWeight)),
		validation.Field(&c.RegionNameThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.StringMetric, validation.Required, validation.In(strsim.MetricJaroWinkler, strsim.MetricLevenshtein)),
		validation.Field(&c.WorkerCount, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.TopLevel, validation.Required),
	)
}

// StorageConfig selects the result store. An empty postgres DSN is built
// from the PG* environment variables.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Validate validates the storage configuration
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.DSN, validation.When(c.Driver == DriverSQLite, validation.Required)),
	)
}

// BlocksConfig selects where block artifacts live
type BlocksConfig struct {
	Backend       string `yaml:"backend"`
	Dir           string `yaml:"dir"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// Validate validates the block store configuration
func (c *BlocksConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendFile, BackendRedis)),
		validation.Field(&c.Dir, validation.When(c.Backend == BackendFile, validation.Required)),
		validation.Field(&c.RedisAddr, validation.When(c.Backend == BackendRedis, validation.Required)),
		validation.Field(&c.RedisDB, validation.Min(0)),
	)
}

// HTTPConfig holds the review API listener settings
type HTTPConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"` // empty disables authentication
}

// Address returns the listen address
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// LogConfig controls the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate validates every section. Failures are returned as a
// *ConfigurationError naming the section.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"matching", &c.Matching},
		{"storage", &c.Storage},
		{"blocks", &c.Blocks},
		{"http", &c.HTTP},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return &ConfigurationError{Field: s.name, Err: err}
		}
	}
	return nil
}

// NewDefaultConfig returns the documented defaults
func NewDefaultConfig() *Config {
	return &Config{
		Matching: MatchingConfig{
			BufferDistanceMeters:     500,
			StringThreshold:          0.15,
			MaxSpatialDistanceMeters: 2000,
			PrefixWeight:             strsim.DefaultPrefixWeight,
			RegionNameThreshold:      0.20,
			StringMetric:             strsim.MetricJaroWinkler,
			WorkerCount:              runtime.NumCPU(),
			BatchSize:                500,
			TopLevel:                 "constituency",
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			DSN:    "geolink.db",
		},
		Blocks: BlocksConfig{
			Backend:     BackendFile,
			Dir:         "blocks",
			RedisPrefix: "geolink:",
		},
		HTTP: HTTPConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path (with ${VAR} expansion), and GEOLINK_* environment overrides, then
// validates it.
func Load(path string) (*Config, error) {
	if err := LoadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := NewDefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
				return nil, &ConfigurationError{Field: path, Err: err}
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
