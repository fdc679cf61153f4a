package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BEACON_CONFIG", "BEACON_STORAGE_DRIVER", "BEACON_STORAGE_DSN",
		"BEACON_BATCH_SIZE", "BEACON_WORKERS", "BEACON_LOG_LEVEL",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("expected default driver 'memory', got %q", cfg.Storage.Driver)
	}
	if cfg.Ingest.BatchSize != 50 || cfg.Ingest.Workers != 4 {
		t.Fatalf("unexpected ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("expected default level 'info', got %q", cfg.Log.Level)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("BEACON_STORAGE_DRIVER", "postgres")
	os.Setenv("BEACON_STORAGE_DSN", "postgres://localhost/beacon")
	os.Setenv("BEACON_BATCH_SIZE", "200")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN != "postgres://localhost/beacon" {
		t.Fatalf("env override not applied: %+v", cfg.Storage)
	}
	if cfg.Ingest.BatchSize != 200 {
		t.Fatalf("expected batch size 200, got %d", cfg.Ingest.BatchSize)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	data := []byte("storage:\n  driver: postgres\n  dsn: postgres://file/beacon\nlog:\n  level: debug\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	os.Setenv("BEACON_CONFIG", path)
	os.Setenv("BEACON_STORAGE_DSN", "postgres://env/beacon")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Fatalf("file value not applied: %+v", cfg.Storage)
	}
	if cfg.Storage.DSN != "postgres://env/beacon" {
		t.Fatalf("env must override the file, got %q", cfg.Storage.DSN)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected level 'debug', got %q", cfg.Log.Level)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	os.Setenv("BEACON_BATCH_SIZE", "0")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a zero batch size")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	os.Setenv("BEACON_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
