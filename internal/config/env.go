package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// envPaths are tried in order; the first .env file found is loaded
var envPaths = []string{".env", "../.env", "../../.env"}

// LoadEnv loads variables from the nearest .env file. Variables that are
// already set in the environment are left untouched.
func LoadEnv() error {
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return godotenv.Load(envPath)
	}
	return nil
}

// GetEnv gets environment variable with default
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envOverride applies one environment variable onto a config field
type envOverride struct {
	key   string
	apply func(value string) error
}

func floatVar(key string, dst *float64) envOverride {
	return envOverride{key: key, apply: func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}}
}

func intVar(key string, dst *int) envOverride {
	return envOverride{key: key, apply: func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}}
}

func stringVar(key string, dst *string) envOverride {
	return envOverride{key: key, apply: func(v string) error {
		*dst = v
		return nil
	}}
}

// applyEnv overrides config values from GEOLINK_* variables. A variable
// that does not parse is a configuration error, not a silent fallback.
func applyEnv(cfg *Config) error {
	m := &cfg.Matching
	overrides := []envOverride{
		floatVar("GEOLINK_BUFFER_DISTANCE_METERS", &m.BufferDistanceMeters),
		floatVar("GEOLINK_STRING_THRESHOLD", &m.StringThreshold),
		floatVar("GEOLINK_MAX_SPATIAL_DISTANCE_METERS", &m.MaxSpatialDistanceMeters),
		floatVar("GEOLINK_PREFIX_WEIGHT", &m.PrefixWeight),
		floatVar("GEOLINK_REGION_NAME_THRESHOLD", &m.RegionNameThreshold),
		stringVar("GEOLINK_STRING_METRIC", &m.StringMetric),
		intVar("GEOLINK_WORKER_COUNT", &m.WorkerCount),
		intVar("GEOLINK_BATCH_SIZE", &m.BatchSize),
		stringVar("GEOLINK_TOP_LEVEL", &m.TopLevel),
		stringVar("GEOLINK_STORAGE_DRIVER", &cfg.Storage.Driver),
		stringVar("GEOLINK_STORAGE_DSN", &cfg.Storage.DSN),
		stringVar("GEOLINK_BLOCKS_BACKEND", &cfg.Blocks.Backend),
		stringVar("GEOLINK_BLOCKS_DIR", &cfg.Blocks.Dir),
		stringVar("GEOLINK_REDIS_ADDR", &cfg.Blocks.RedisAddr),
		stringVar("GEOLINK_REDIS_PASSWORD", &cfg.Blocks.RedisPassword),
		intVar("GEOLINK_REDIS_DB", &cfg.Blocks.RedisDB),
		intVar("GEOLINK_HTTP_PORT", &cfg.HTTP.Port),
		stringVar("GEOLINK_HTTP_API_KEY", &cfg.HTTP.APIKey),
		stringVar("LOG_LEVEL", &cfg.Log.Level),
		stringVar("LOG_FORMAT", &cfg.Log.Format),
	}

	for _, o := range overrides {
		v, ok := os.LookupEnv(o.key)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(v); err != nil {
			return &ConfigurationError{Field: o.key, Err: err}
		}
	}
	return nil
}
