package beacon

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/beacon/internal/model"
	"github.com/crimson-sun/beacon/internal/pipeline"
	"github.com/crimson-sun/beacon/internal/query"
	"github.com/crimson-sun/beacon/internal/storage"

	// Register storage drivers.
	_ "github.com/crimson-sun/beacon/internal/storage/memory"
	_ "github.com/crimson-sun/beacon/internal/storage/postgres"
)

// Status values carried on an Outcome.
const (
	StatusProcessed = "processed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Beacon is the ingestion core. Safe for concurrent use.
type Beacon struct {
	pipeline *pipeline.Pipeline
	store    storage.Store
	ownStore bool
	workers  int
}

// New creates a Beacon instance backed by the configured storage driver.
func New(opts ...Option) (*Beacon, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	ownStore := false
	if store == nil {
		var err error
		store, err = storage.Open(context.Background(), storage.Config{Driver: o.driver, DSN: o.dsn})
		if err != nil {
			return nil, fmt.Errorf("beacon: %w", err)
		}
		ownStore = true
	}

	return &Beacon{
		pipeline: pipeline.New(store),
		store:    store,
		ownStore: ownStore,
		workers:  o.workers,
	}, nil
}

// Process runs one batch of events through the pipeline and returns one
// outcome per event, inputs first, synthetic session starts after.
func (b *Beacon) Process(ctx context.Context, events []Event) ([]Outcome, error) {
	in := make([]*model.Event, len(events))
	for i, ev := range events {
		in[i] = ev.toModel()
	}
	contexts, err := b.pipeline.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	outcomes := make([]Outcome, len(contexts))
	for i, c := range contexts {
		outcomes[i] = outcomeFromContext(c)
	}
	return outcomes, nil
}

// ProcessOne runs a single event and returns its outcome.
func (b *Beacon) ProcessOne(ctx context.Context, ev Event) (Outcome, error) {
	c, err := b.pipeline.RunOne(ctx, ev.toModel())
	if err != nil {
		return Outcome{}, err
	}
	return outcomeFromContext(c), nil
}

// ProcessGrouped splits events by project and processes the groups
// concurrently, up to the configured worker cap. Outcomes are returned
// grouped in first-seen project order.
func (b *Beacon) ProcessGrouped(ctx context.Context, events []Event) ([][]Outcome, error) {
	byProject := make(map[string][]Event)
	var order []string
	for _, ev := range events {
		if _, ok := byProject[ev.ProjectID]; !ok {
			order = append(order, ev.ProjectID)
		}
		byProject[ev.ProjectID] = append(byProject[ev.ProjectID], ev)
	}

	results := make([][]Outcome, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, projectID := range order {
		i, projectID := i, projectID
		g.Go(func() error {
			outcomes, err := b.Process(gctx, byProject[projectID])
			if err != nil {
				return fmt.Errorf("project %s: %w", projectID, err)
			}
			results[i] = outcomes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close releases the underlying store unless one was injected.
func (b *Beacon) Close() error {
	if !b.ownStore {
		return nil
	}
	return b.store.Close()
}

// Query validation types, re-exported for callers that gate searches.
type (
	TreeInfo         = query.TreeInfo
	ValidationResult = query.Result
	AggregationType  = query.AggregationType
)

// ValidateQuery judges a parsed query tree against the plan rules.
func ValidateQuery(info TreeInfo) ValidationResult {
	return query.ValidateQuery(info)
}

// ValidateAggregations judges a parsed aggregation tree against the depth,
// count and field rules.
func ValidateAggregations(info TreeInfo) ValidationResult {
	return query.ValidateAggregations(info)
}
