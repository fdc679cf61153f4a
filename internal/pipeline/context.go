package pipeline

import (
	"github.com/crimson-sun/beacon/internal/model"
)

// Context is the per-event working state threaded through the stages.
// It is created at orchestrator entry, read by the caller after the batch,
// and never persisted.
type Context struct {
	Event *model.Event
	Stack *model.Stack

	// IsNew means the stack was created for this event.
	IsNew bool
	// IsRegression means this event flipped a fixed stack back to active.
	IsRegression bool
	// IsProcessed means every stage ran and the event was persisted.
	IsProcessed bool
	// IsCancelled means the event was intentionally dropped (orphan or
	// redundant session marker). Not an error.
	IsCancelled bool

	Err error
}

// NewContext wraps an event for processing.
func NewContext(ev *model.Event) *Context {
	return &Context{Event: ev}
}

// HasError reports whether a stage recorded a fault for this event.
func (c *Context) HasError() bool { return c.Err != nil }

// SetError records a processing fault; remaining stages skip the event.
func (c *Context) SetError(err error) { c.Err = err }

// Cancel drops the event without error; remaining stages skip it and it is
// not persisted.
func (c *Context) Cancel() { c.IsCancelled = true }

// live reports whether stages should still touch this event.
func (c *Context) live() bool { return !c.IsCancelled && c.Err == nil }
