package engine

import "sync"

// keyMutex serializes work per string key. Sync sessions and queue
// mutations for the same (user, device) pair share one lock; different
// pairs proceed fully concurrently.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for key and returns its unlock func. Locks are
// retained for the life of the process; the key space is bounded by the
// set of (user, device) pairs.
func (k *keyMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// syncKey builds the composite key for a (user, device) pair.
func syncKey(userID, deviceID string) string {
	return userID + "|" + deviceID
}
