package service

import "sync"

// keyedMutex serializes work per owner key while leaving distinct keys
// independent. The merge coordinator locks two keys at once, always in
// lexicographic order, so entries must come from a single shared instance.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Lock acquires the mutex for key and returns the unlock function.
func (k *keyedMutex) Lock(key string) func() {
	m := k.get(key)
	m.Lock()
	return m.Unlock
}

// LockPair acquires both keys in lexicographic order to prevent deadlock
// between concurrent pair acquisitions sharing a key.
func (k *keyedMutex) LockPair(a, b string) func() {
	if a == b {
		return k.Lock(a)
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	unlockFirst := k.Lock(first)
	unlockSecond := k.Lock(second)
	return func() {
		unlockSecond()
		unlockFirst()
	}
}
