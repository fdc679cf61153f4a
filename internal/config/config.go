package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all Beacon configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig selects and parameterizes the storage driver.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// IngestConfig tunes batch intake.
type IngestConfig struct {
	// BatchSize is how many events are read from the input before a batch
	// is dispatched to the pipeline.
	BatchSize int `yaml:"batch_size"`
	// Workers caps how many project batches process concurrently.
	Workers int `yaml:"workers"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load builds the configuration: defaults first, then the optional YAML file
// named by BEACON_CONFIG, then BEACON_* environment variables on top.
func Load() (Config, error) {
	cfg := Config{
		Storage: StorageConfig{Driver: "memory"},
		Ingest:  IngestConfig{BatchSize: 50, Workers: 4},
		Log:     LogConfig{Level: "info"},
	}

	if path := os.Getenv("BEACON_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Storage.Driver = getenv("BEACON_STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DSN = getenv("BEACON_STORAGE_DSN", cfg.Storage.DSN)
	cfg.Ingest.BatchSize = getenvInt("BEACON_BATCH_SIZE", cfg.Ingest.BatchSize)
	cfg.Ingest.Workers = getenvInt("BEACON_WORKERS", cfg.Ingest.Workers)
	cfg.Log.Level = getenv("BEACON_LOG_LEVEL", cfg.Log.Level)

	if cfg.Ingest.BatchSize < 1 {
		return Config{}, fmt.Errorf("batch size must be positive, got %d", cfg.Ingest.BatchSize)
	}
	if cfg.Ingest.Workers < 1 {
		return Config{}, fmt.Errorf("workers must be positive, got %d", cfg.Ingest.Workers)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
