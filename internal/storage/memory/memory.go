// Package memory is the in-process storage adapter: RWMutex-guarded maps
// with deep copies on the way in and out. It backs tests, the embedding
// facade, and single-node deployments with no external database.
package memory

import (
	"context"
	"sync"

	"github.com/crimson-sun/beacon/internal/model"
	"github.com/crimson-sun/beacon/internal/storage"
)

func init() {
	storage.Register("memory", func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		return New(), nil
	})
}

// Store keeps events and stacks in memory. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	events      map[string]*model.Event
	stacks      map[string]*model.Stack
	fingerprint map[string]string // projectID+"\x00"+fingerprint -> stack id
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		events:      make(map[string]*model.Event),
		stacks:      make(map[string]*model.Stack),
		fingerprint: make(map[string]string),
	}
}

func fpKey(projectID, fingerprint string) string {
	return projectID + "\x00" + fingerprint
}

func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return ev.Clone(), nil
}

func (s *Store) SaveEvent(ctx context.Context, ev *model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev.Clone()
	return nil
}

func (s *Store) OpenSessionStart(ctx context.Context, projectID string, key storage.SessionKey) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.Event
	for _, ev := range s.events {
		if ev.ProjectID != projectID || !ev.IsSessionStart() || ev.HasSessionEnd {
			continue
		}
		if key.SessionID != "" {
			if ev.SessionID != key.SessionID {
				continue
			}
		} else if ev.UserIdentity != key.Identity {
			continue
		}
		if latest == nil || ev.Date.After(latest.Date) {
			latest = ev
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return latest.Clone(), nil
}

func (s *Store) GetStack(ctx context.Context, id string) (*model.Stack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stacks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return st.Clone(), nil
}

func (s *Store) GetStackByFingerprint(ctx context.Context, projectID, fingerprint string) (*model.Stack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.fingerprint[fpKey(projectID, fingerprint)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.stacks[id].Clone(), nil
}

func (s *Store) SaveStack(ctx context.Context, st *model.Stack) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stacks[st.ID] = st.Clone()
	s.fingerprint[fpKey(st.ProjectID, st.Fingerprint)] = st.ID
	return nil
}

func (s *Store) CreateStackIfAbsent(ctx context.Context, st *model.Stack) (*model.Stack, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fpKey(st.ProjectID, st.Fingerprint)
	if id, ok := s.fingerprint[key]; ok {
		return s.stacks[id].Clone(), false, nil
	}
	s.stacks[st.ID] = st.Clone()
	s.fingerprint[key] = st.ID
	return st.Clone(), true, nil
}

func (s *Store) Close() error { return nil }
