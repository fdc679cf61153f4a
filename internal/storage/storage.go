// Package storage defines the persistence collaborator the pipeline runs
// against: document get/save for events and stacks plus the atomic
// create-or-attach primitive used to resolve concurrent stack creation.
// Retry and backoff policy belongs to the adapters, not this interface.
package storage

import (
	"context"
	"errors"

	"github.com/crimson-sun/beacon/internal/model"
)

// ErrNotFound is returned by lookups that matched nothing.
var ErrNotFound = errors.New("storage: not found")

// EventStore persists events.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)

	// SaveEvent creates or updates the event.
	SaveEvent(ctx context.Context, ev *model.Event) error

	// OpenSessionStart returns the most recent session-start record for the
	// given key that has no end marker, or ErrNotFound. The session stitcher
	// re-derives open-session state from it.
	OpenSessionStart(ctx context.Context, projectID string, key SessionKey) (*model.Event, error)
}

// SessionKey identifies a session: the client-supplied session id for manual
// sessions, the user identity for automatic ones. Exactly one side is set.
type SessionKey struct {
	SessionID string
	Identity  string
}

// StackStore persists stacks.
type StackStore interface {
	GetStack(ctx context.Context, id string) (*model.Stack, error)
	GetStackByFingerprint(ctx context.Context, projectID, fingerprint string) (*model.Stack, error)

	// SaveStack creates or updates the stack.
	SaveStack(ctx context.Context, s *model.Stack) error

	// CreateStackIfAbsent atomically inserts the stack unless one already
	// exists for its (project, fingerprint); it returns the winning stack
	// and whether this call created it. This is the primitive that keeps
	// concurrent batches from making two stacks for one fingerprint.
	CreateStackIfAbsent(ctx context.Context, s *model.Stack) (*model.Stack, bool, error)
}

// Store is the full persistence collaborator.
type Store interface {
	EventStore
	StackStore
	Close() error
}
