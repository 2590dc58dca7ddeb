package services

import (
	"sync"
)

// accountLocks serializes mutations per key (account, withdrawal request or
// weekly entry) while letting unrelated keys proceed in parallel. The map only
// grows; the set of active users is bounded and entries are two words each.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

func (al *accountLocks) lock(key string) *sync.Mutex {
	al.mu.Lock()
	m, ok := al.locks[key]
	if !ok {
		m = &sync.Mutex{}
		al.locks[key] = m
	}
	al.mu.Unlock()

	m.Lock()
	return m
}
