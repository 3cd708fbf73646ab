package concurrency

import "sync"

// KeyedMutex serializes work per key (one lane per session).
type KeyedMutex struct {
	locks map[string]*keyedLock
	mu    sync.Mutex
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyedLock),
	}
}

func (m *KeyedMutex) Lock(key string) {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &keyedLock{}
		m.locks[key] = lock
	}
	lock.refs++
	m.mu.Unlock()
	lock.mu.Lock()
}

// Unlock releases key and drops its entry once nobody waits on it.
func (m *KeyedMutex) Unlock(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		return
	}
	lock.mu.Unlock()
	lock.refs--
	if lock.refs <= 0 {
		delete(m.locks, key)
	}
}

func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
