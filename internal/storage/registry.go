package storage

import (
	"context"
	"fmt"
)

// Config carries driver selection and connection settings.
type Config struct {
	Driver string // "memory" or "postgres"
	DSN    string // connection string for drivers that need one
}

// Constructor opens a Store for the given config.
type Constructor func(ctx context.Context, cfg Config) (Store, error)

var registry = map[string]Constructor{}

// Register adds a store constructor under the given driver name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Open resolves the configured driver and opens a store with it.
func Open(ctx context.Context, cfg Config) (Store, error) {
	ctor, ok := registry[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
	return ctor(ctx, cfg)
}

// Drivers returns the names of all registered storage drivers.
func Drivers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
