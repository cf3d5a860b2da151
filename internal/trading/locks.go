package trading

import "sync"

// accountLocks hands out one mutex per user. Entries are dropped once no
// goroutine holds or waits on them, so the map only grows with concurrency.
type accountLocks struct {
	mu    sync.Mutex
	locks map[uint64]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[uint64]*accountLock)}
}

// Lock blocks until the caller owns userID's lock and returns its release func.
func (l *accountLocks) Lock(userID uint64) (unlock func()) {
	l.mu.Lock()
	lk, ok := l.locks[userID]
	if !ok {
		lk = &accountLock{}
		l.locks[userID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lk.mu.Unlock()

			l.mu.Lock()
			lk.refs--
			if lk.refs == 0 {
				delete(l.locks, userID)
			}
			l.mu.Unlock()
		})
	}
}

func (l *accountLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
