package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/crimson-sun/beacon/internal/model"
	"github.com/crimson-sun/beacon/internal/storage"
)

// sessionID identifies one session automaton: manual sessions key on the
// client-supplied id, automatic ones on the user identity.
type sessionID struct {
	projectID string
	key       string
	manual    bool
}

// episode is the working state of one open (or just-closed) session: which
// record is its start, the activity window, and the duration floor carried
// over from an already-persisted start.
type episode struct {
	start     *model.Event
	inBatch   bool // start is saved by the batch's save stage, not by the stitcher
	first     time.Time
	last      time.Time
	base      float64
	closed    bool
	sessionID string
}

func (e *episode) extend(t time.Time) {
	if t.After(e.last) {
		e.last = t
	}
	if t.Before(e.first) {
		e.first = t
	}
}

// duration is monotonically non-decreasing across the lifetime of a session
// key: activity can only widen the window, and the persisted floor holds.
func (e *episode) duration() float64 {
	d := e.last.Sub(e.first).Seconds()
	if d < e.base {
		d = e.base
	}
	return d
}

// stitchSessions reduces session lifecycle events into one authoritative
// session-start record per session, with accumulated duration and an
// optional end marker. Synthetic start records join the batch; orphan and
// redundant markers are cancelled. Decisions for one key are applied in
// event time order; Run already holds each key's lock, and keeps it until
// the batch is persisted, so a concurrent batch cannot observe a session
// this batch opened but has not yet saved.
func (p *Pipeline) stitchSessions(ctx context.Context, batch []*Context) ([]*Context, error) {
	groups := make(map[sessionID][]*Context)
	var order []sessionID
	for _, c := range batch {
		if !c.live() {
			continue
		}
		ev := c.Event
		key := ev.SessionKey()
		if key == "" {
			// A lifecycle marker that cannot be attributed to any session
			// is meaningless; ordinary events just pass through.
			if ev.IsSessionStart() || ev.IsSessionEnd() || ev.IsSessionHeartbeat() {
				c.Cancel()
			}
			continue
		}
		k := sessionID{ev.ProjectID, key, ev.IsManualSession()}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	out := batch
	for _, k := range order {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Event.Date.Before(group[j].Event.Date)
		})

		synthetic := p.stitchKey(ctx, k, group)
		if len(synthetic) > 0 {
			// Synthetic starts need stacks of their own before the
			// downstream stages see them.
			if _, err := p.resolveStacks(ctx, synthetic); err != nil {
				return out, err
			}
			out = append(out, synthetic...)
		}
	}
	return out, nil
}

func sessionLockKey(projectID, key string) string {
	return "session\x00" + projectID + "\x00" + key
}

// lockSessionKeys takes the lock for every session key the batch touches and
// returns the matching release. The locks are held from before stitching
// until after the save stage: a session-start this batch opens must be
// persisted before a concurrent batch for the same key gets to look for it,
// or that batch would open a second session. Keys are acquired in sorted
// order so overlapping batches cannot deadlock.
func (p *Pipeline) lockSessionKeys(events []*model.Event) func() {
	var keys []string
	seen := make(map[string]struct{})
	for _, ev := range events {
		key := ev.SessionKey()
		if key == "" {
			continue
		}
		lk := sessionLockKey(ev.ProjectID, key)
		if _, ok := seen[lk]; ok {
			continue
		}
		seen[lk] = struct{}{}
		keys = append(keys, lk)
	}
	sort.Strings(keys)
	for _, lk := range keys {
		p.locks.Lock(lk)
	}
	return func() {
		for i := len(keys) - 1; i >= 0; i-- {
			p.locks.Unlock(keys[i])
		}
	}
}

// stitchKey runs the automaton for one session key over its events in time
// order, seeded from any persisted open session-start record.
func (p *Pipeline) stitchKey(ctx context.Context, k sessionID, group []*Context) []*Context {
	skey := storage.SessionKey{Identity: k.key}
	if k.manual {
		skey = storage.SessionKey{SessionID: k.key}
	}
	persisted, err := p.store.OpenSessionStart(ctx, k.projectID, skey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		for _, c := range group {
			c.SetError(fmt.Errorf("load session state: %w", err))
		}
		return nil
	}

	var ep *episode
	if persisted != nil {
		ep = &episode{
			start:     persisted,
			first:     persisted.Date,
			last:      persisted.Date.Add(time.Duration(persisted.Value * float64(time.Second))),
			base:      persisted.Value,
			sessionID: persisted.SessionID,
		}
	}

	// Manual sessions allow at most one surviving end marker: only the last
	// End for the key closes it, earlier ones are functional no-ops.
	lastEnd := -1
	if k.manual {
		for i, c := range group {
			if c.Event.IsSessionEnd() {
				lastEnd = i
			}
		}
	}

	var synthetic []*Context
	for i, c := range group {
		ev := c.Event
		switch {
		case ev.IsSessionEnd():
			if k.manual && i != lastEnd {
				c.Cancel()
				continue
			}
			if ep == nil {
				// Orphan end: nothing open or openable.
				c.Cancel()
				continue
			}
			ep.extend(ev.Date)
			ep.closed = true
			ev.SetSessionID(ep.sessionID)
			if !k.manual {
				// Automatic sessions close immediately; later activity for
				// this identity opens a fresh session.
				p.finalizeEpisode(ctx, ep, c)
				ep = nil
			}

		case ev.IsSessionStart():
			if ep != nil {
				if ev == ep.start {
					ep.extend(ev.Date)
					continue
				}
				// Redundant explicit start against an open session: dropped,
				// but its timestamp still counts as activity.
				c.Cancel()
				ep.extend(ev.Date)
				continue
			}
			ep = p.openEpisode(k, ev)
			ep.extend(ev.Date)

		case ev.IsSessionHeartbeat():
			if ep == nil {
				// A heartbeat with nothing to extend opens a hidden session.
				start := ev.ToSessionStart()
				start.Hidden = true
				ev.Hidden = true
				p.hideStack(ctx, c)
				ep = p.openEpisode(k, start)
				synthetic = append(synthetic, NewContext(start))
			}
			ep.extend(ev.Date)
			ev.SetSessionID(ep.sessionID)

		default:
			if ep == nil {
				if start := designatedStart(group, i); start != nil {
					ep = p.openEpisode(k, start)
				} else {
					start := ev.ToSessionStart()
					ep = p.openEpisode(k, start)
					synthetic = append(synthetic, NewContext(start))
				}
				ep.first = ev.Date
				ep.last = ev.Date
			}
			ep.extend(ev.Date)
			ev.SetSessionID(ep.sessionID)
		}
	}

	if ep != nil {
		p.finalizeEpisode(ctx, ep, nil)
	}
	return synthetic
}

// designatedStart looks ahead for an explicit session-start that should
// serve as the start record instead of synthesizing one. The scan stops at
// the next end marker; a start past it belongs to a later session.
func designatedStart(group []*Context, from int) *model.Event {
	for j := from; j < len(group); j++ {
		ev := group[j].Event
		if ev.IsSessionEnd() {
			return nil
		}
		if ev.IsSessionStart() {
			return ev
		}
	}
	return nil
}

// openEpisode opens a session around the given start record, assigning a
// session id when the client did not supply one. The start is either a
// batch member or a synthetic start that joins the batch, so the save
// stage persists it either way.
func (p *Pipeline) openEpisode(k sessionID, start *model.Event) *episode {
	id := start.SessionID
	switch {
	case k.manual:
		id = k.key
	case id == "":
		id = uuid.NewString()
	}
	start.SetSessionID(id)
	return &episode{
		start:     start,
		inBatch:   true,
		first:     start.Date,
		last:      start.Date,
		sessionID: id,
	}
}

// finalizeEpisode writes the accumulated duration and close flag onto the
// start record. Starts that are batch members are persisted by the save
// stage; a start loaded from storage is saved here.
func (p *Pipeline) finalizeEpisode(ctx context.Context, ep *episode, closer *Context) {
	ep.start.Value = ep.duration()
	if ep.closed {
		ep.start.HasSessionEnd = true
	}
	if !ep.inBatch {
		if err := p.store.SaveEvent(ctx, ep.start); err != nil {
			slog.Error("session start update failed", "session", ep.sessionID, "err", err)
			if closer != nil {
				closer.SetError(fmt.Errorf("update session start: %w", err))
			}
		}
	}
}

// hideStack marks the stack a hidden heartbeat created as hidden; a sibling
// non-heartbeat stack for the same identity is untouched.
func (p *Pipeline) hideStack(ctx context.Context, c *Context) {
	if c.Stack == nil || c.Stack.Hidden {
		return
	}
	c.Stack.Hidden = true
	if err := p.store.SaveStack(ctx, c.Stack); err != nil {
		slog.Warn("hiding heartbeat stack failed", "stack", c.Stack.ID, "err", err)
	}
}
