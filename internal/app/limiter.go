package app

import "sync"

// keyedLock runs at most one holder per key at a time. Uploads take it per
// session so concurrent material uploads cannot drop each other's paths.
type keyedLock struct {
	mu   sync.Mutex
	byID map[int64]*entry
}

type entry struct {
	sync.Mutex
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{byID: make(map[int64]*entry)}
}

func (l *keyedLock) lock(id int64) func() {
	l.mu.Lock()
	e, ok := l.byID[id]
	if !ok {
		e = &entry{}
		l.byID[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		l.mu.Lock()
		if e.refs--; e.refs == 0 {
			delete(l.byID, id)
		}
		l.mu.Unlock()
	}
}
