package attendance

import "sync"

// classLocks is a keyed mutex. Entries are dropped once no goroutine holds
// or waits on them, so the map only grows with concurrently active classes.
type classLocks struct {
	mu sync.Mutex
	m  map[string]*classLock
}

type classLock struct {
	mu   sync.Mutex
	refs int
}

func newClassLocks() *classLocks {
	return &classLocks{m: make(map[string]*classLock)}
}

func (l *classLocks) lock(classID string) (unlock func()) {
	l.mu.Lock()
	cl := l.m[classID]
	if cl == nil {
		cl = &classLock{}
		l.m[classID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()

		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.m, classID)
		}
		l.mu.Unlock()
	}
}

func (l *classLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
