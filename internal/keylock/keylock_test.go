package keylock

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New()
	const workers = 50

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock("proj1:fp1")
			counter++
			l.Unlock("proj1:fp1")
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("expected %d increments, got %d", workers, counter)
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	l := New()
	l.Lock("a")
	done := make(chan struct{})
	go func() {
		l.Lock("b")
		l.Unlock("b")
		close(done)
	}()
	<-done // must complete while "a" is still held
	l.Unlock("a")
}

func TestEntriesAreReleased(t *testing.T) {
	l := New()
	l.Lock("x")
	l.Unlock("x")

	l.mu.Lock()
	n := len(l.entries)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no retained entries, got %d", n)
	}
}
