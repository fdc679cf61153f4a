package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/crimson-sun/beacon/internal/model"
	"github.com/crimson-sun/beacon/internal/storage"
)

// resolveStacks computes each event's fingerprint and attaches it to an
// existing stack or creates exactly one new stack per distinct fingerprint
// per batch. Cross-batch creation races are settled by the store's atomic
// create-or-attach primitive inside a per-(project, fingerprint) exclusive
// section.
func (p *Pipeline) resolveStacks(ctx context.Context, batch []*Context) ([]*Context, error) {
	claims := make(map[string]*model.Stack)
	for _, c := range batch {
		if !c.live() {
			continue
		}
		p.resolveStack(ctx, c, claims)
	}
	return batch, nil
}

func (p *Pipeline) resolveStack(ctx context.Context, c *Context, claims map[string]*model.Stack) {
	ev := c.Event
	fp := Fingerprint(ev)
	key := ev.ProjectID + "\x00" + fp

	// A sibling earlier in the batch already claimed this fingerprint. The
	// bookkeeping still runs inside the exclusive section, against the
	// freshest persisted copy, so it cannot overwrite updates a concurrent
	// batch made since the claim.
	if st, ok := claims[key]; ok {
		p.locks.Lock(key)
		if fresh, err := p.store.GetStack(ctx, st.ID); err == nil {
			st = fresh
		}
		c.Stack = st
		p.joinStack(ctx, c, st)
		p.locks.Unlock(key)
		claims[key] = st
		p.finishResolve(c, false)
		return
	}

	p.locks.Lock(key)
	defer p.locks.Unlock(key)

	st, err := p.store.GetStackByFingerprint(ctx, ev.ProjectID, fp)
	switch {
	case err == nil:
		c.Stack = st
		p.joinStack(ctx, c, st)
	case errors.Is(err, storage.ErrNotFound):
		candidate := newStackFor(ev, fp)
		won, created, err := p.store.CreateStackIfAbsent(ctx, candidate)
		if err != nil {
			c.SetError(fmt.Errorf("create stack: %w", err))
			return
		}
		c.Stack = won
		if created {
			claims[key] = won
			p.finishResolve(c, true)
			return
		}
		// Lost a cross-batch race; attach to the winner.
		p.joinStack(ctx, c, won)
	default:
		c.SetError(fmt.Errorf("stack lookup: %w", err))
		return
	}

	claims[key] = c.Stack
	p.finishResolve(c, false)
}

func (p *Pipeline) finishResolve(c *Context, isNew bool) {
	c.IsNew = isNew
	c.Event.StackID = c.Stack.ID
	c.Event.FirstOccurrence = isNew
	if c.Stack.Hidden {
		c.Event.Hidden = true
	}
}

// newStackFor builds the stack an event opens. Only a hidden heartbeat makes
// its new stack hidden; session-start stacks stay visible even when the
// start record itself is hidden.
func newStackFor(ev *model.Event, fingerprint string) *model.Stack {
	title := ev.Message
	if ev.Error != nil && ev.Error.Kind != "" {
		title = ev.Error.Kind
		if ev.Error.Message != "" {
			title += ": " + ev.Error.Message
		}
	}
	return &model.Stack{
		ID:               uuid.NewString(),
		OrganizationID:   ev.OrganizationID,
		ProjectID:        ev.ProjectID,
		Fingerprint:      fingerprint,
		Type:             ev.Type,
		Title:            title,
		Hidden:           ev.Hidden && ev.IsSessionHeartbeat(),
		FirstSeen:        ev.Date,
		LastSeen:         ev.Date,
		TotalOccurrences: 1,
		Tags:             ev.Tags.Clone(),
	}
}

// joinStack applies the denormalized bookkeeping an attaching event owes its
// stack: tag union, last-seen, occurrence count.
func (p *Pipeline) joinStack(ctx context.Context, c *Context, st *model.Stack) {
	st.Tags.Merge(c.Event.Tags)
	if c.Event.Date.After(st.LastSeen) {
		st.LastSeen = c.Event.Date
	}
	st.TotalOccurrences++
	if err := p.store.SaveStack(ctx, st); err != nil {
		slog.Warn("stack bookkeeping save failed", "stack", st.ID, "err", err)
		c.SetError(fmt.Errorf("save stack: %w", err))
	}
}
