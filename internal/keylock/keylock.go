// Package keylock provides a mutex per string key. The pipeline uses it to
// linearize decisions that share a mutable key across concurrent batches:
// stack creation per (project, fingerprint) and session transitions per
// session key.
package keylock

import "sync"

// KeyLock hands out exclusive sections keyed by string. Entries are dropped
// as soon as the last holder or waiter for a key releases it, so the map
// stays proportional to in-flight keys.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{entries: make(map[string]*entry)}
}

// Lock acquires the exclusive section for key, blocking while another
// goroutine holds it.
func (l *KeyLock) Lock(key string) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the exclusive section for key. Unlocking a key that is not
// held follows sync.Mutex semantics and panics.
func (l *KeyLock) Unlock(key string) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		l.mu.Unlock()
		panic("keylock: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()

	e.mu.Unlock()
}
