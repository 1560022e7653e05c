package ledger

import "sync"

// keyLocks serializes in-process writers per balance key. Cross-process
// safety comes from the version CAS on the balance row; this just keeps
// same-process contention from burning CAS retries.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyLocks) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
