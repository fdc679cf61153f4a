package beacon

import "github.com/crimson-sun/beacon/internal/storage"

type options struct {
	driver  string
	dsn     string
	store   storage.Store
	workers int
}

// Option configures a Beacon instance.
type Option func(*options)

// WithDriver selects the storage driver by registry name ("memory",
// "postgres"). Default: "memory".
func WithDriver(driver string) Option {
	return func(o *options) {
		o.driver = driver
	}
}

// WithDSN sets the storage connection string for drivers that need one.
func WithDSN(dsn string) Option {
	return func(o *options) {
		o.dsn = dsn
	}
}

// WithStore injects an already-open store; Close does not close it.
// Overrides WithDriver and WithDSN.
func WithStore(store storage.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithWorkers caps how many project groups ProcessGrouped runs
// concurrently. Default: 4.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func defaultOptions() options {
	return options{driver: "memory", workers: 4}
}
