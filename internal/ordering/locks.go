package ordering

import "sync"

// listLocks is a keyed mutex: one lock per list id, created on demand and
// dropped when its last holder releases it.
type listLocks struct {
	mu    sync.Mutex
	locks map[string]*listLock
}

type listLock struct {
	mu   sync.Mutex
	refs int
}

func newListLocks() *listLocks {
	return &listLocks{locks: make(map[string]*listLock)}
}

// lock blocks until the caller holds listID's lock and returns the release
// function.
func (l *listLocks) lock(listID string) func() {
	l.mu.Lock()
	ll, ok := l.locks[listID]
	if !ok {
		ll = &listLock{}
		l.locks[listID] = ll
	}
	ll.refs++
	l.mu.Unlock()

	ll.mu.Lock()

	return func() {
		ll.mu.Unlock()

		l.mu.Lock()
		ll.refs--
		if ll.refs == 0 {
			delete(l.locks, listID)
		}
		l.mu.Unlock()
	}
}

// size returns the number of lists currently locked or waited on.
func (l *listLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
