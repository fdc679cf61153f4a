// Package pipeline is the ingestion core: it runs a batch of events through
// the ordered processing stages (stack resolution, session stitching,
// regression detection, custom-data indexing, persistence) with one working
// context per event. Failures and cancellations are isolated to the
// originating event; callers inspect per-event outcomes on the returned
// contexts.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crimson-sun/beacon/internal/keylock"
	"github.com/crimson-sun/beacon/internal/model"
	"github.com/crimson-sun/beacon/internal/storage"
)

// futureTolerance is how far into the future an occurrence date may point
// before the orchestrator clamps it to the processing time.
const futureTolerance = 5 * time.Second

// A stage processes the whole batch and may extend it (the session stitcher
// appends synthetic session-start events). Stages record per-event faults on
// the contexts; a returned error aborts the batch and is reserved for
// failures outside any single event.
type stage struct {
	name string
	run  func(ctx context.Context, batch []*Context) ([]*Context, error)
}

// Pipeline processes event batches against a storage collaborator.
// Safe for concurrent use; batches for different projects may run in
// parallel, with per-key decisions serialized through the key locks.
type Pipeline struct {
	store  storage.Store
	locks  *keylock.KeyLock
	stages []stage
	now    func() time.Time
}

// New creates a Pipeline backed by the given store.
func New(store storage.Store) *Pipeline {
	p := &Pipeline{
		store: store,
		locks: keylock.New(),
		now:   time.Now,
	}
	p.stages = []stage{
		{"resolve-stacks", p.resolveStacks},
		{"stitch-sessions", p.stitchSessions},
		{"detect-regressions", p.detectRegressions},
		{"index-data", p.indexData},
		{"save", p.saveEvents},
	}
	return p
}

// Run processes one batch. Input events are normalized (ids assigned, future
// dates clamped) and processed in submission order; synthetic session-start
// records join the batch after the inputs. Session keys the batch touches
// stay locked until the batch is persisted. The returned contexts cover
// every event; callers must read IsProcessed, IsCancelled and Err per event
// and must not infer batch-wide success from any single one.
func (p *Pipeline) Run(ctx context.Context, events []*model.Event) ([]*Context, error) {
	batch := make([]*Context, 0, len(events))
	now := p.now()
	for _, ev := range events {
		p.normalize(ev, now)
		batch = append(batch, NewContext(ev))
	}

	unlock := p.lockSessionKeys(events)
	defer unlock()

	for _, st := range p.stages {
		next, err := st.run(ctx, batch)
		if err != nil {
			return batch, err
		}
		batch = next
	}

	return batch, nil
}

// RunOne processes a single event and returns its context.
func (p *Pipeline) RunOne(ctx context.Context, ev *model.Event) (*Context, error) {
	batch, err := p.Run(ctx, []*model.Event{ev})
	if err != nil {
		return nil, err
	}
	return batch[0], nil
}

// normalize repairs the fields ingestion cannot trust: missing ids, unknown
// types, and occurrence dates past the tolerance window.
func (p *Pipeline) normalize(ev *model.Event, now time.Time) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Type = model.ParseEventType(string(ev.Type))
	if ev.Date.IsZero() || ev.Date.After(now.Add(futureTolerance)) {
		slog.Debug("clamping event date", "event", ev.ID, "date", ev.Date)
		ev.Date = now
	}
}

// saveEvents persists every surviving event and marks it processed.
func (p *Pipeline) saveEvents(ctx context.Context, batch []*Context) ([]*Context, error) {
	for _, c := range batch {
		if !c.live() {
			continue
		}
		if err := p.store.SaveEvent(ctx, c.Event); err != nil {
			slog.Error("save event failed", "event", c.Event.ID, "err", err)
			c.SetError(err)
			continue
		}
		c.IsProcessed = true
	}
	return batch, nil
}
