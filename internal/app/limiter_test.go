package app

import (
	"sync"
	"testing"
)

func TestKeyedLock(t *testing.T) {
	l := newKeyedLock()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		maxSeen int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock(7)
			defer unlock()
			mu.Lock()
			running++
			maxSeen = max(maxSeen, running)
			mu.Unlock()

			mu.Lock()
			running--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("%d holders at once", maxSeen)
	}
	if len(l.byID) != 0 {
		t.Fatalf("entries leaked: %d", len(l.byID))
	}
}
