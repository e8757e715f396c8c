package firmstore

import (
	"hash/fnv"
	"sync"
)

// StripedLocks provides fine-grained in-process locking using multiple
// mutexes to reduce contention compared to a single global mutex. The key
// hashes to a stripe, so the same key always serializes on the same mutex.
//
// Shard merge-writes use this to keep concurrent in-process read-modify-write
// cycles from interleaving on the same document. It provides no cross-process
// protection; the remote store's last write still wins.
type StripedLocks struct {
	stripes []sync.RWMutex
	count   uint32
}

// NewStripedLocks creates a striped lock with the given number of stripes.
// Non-positive counts fall back to 32.
func NewStripedLocks(stripeCount int) *StripedLocks {
	if stripeCount <= 0 {
		stripeCount = 32
	}
	return &StripedLocks{
		stripes: make([]sync.RWMutex, stripeCount),
		count:   uint32(stripeCount),
	}
}

// Lock acquires an exclusive lock for the given key.
// Returns an unlock function that MUST be called to release the lock.
func (sl *StripedLocks) Lock(key string) func() {
	idx := sl.stripeIndex(key)
	sl.stripes[idx].Lock()
	return func() {
		sl.stripes[idx].Unlock()
	}
}

// RLock acquires a shared read lock for the given key.
func (sl *StripedLocks) RLock(key string) func() {
	idx := sl.stripeIndex(key)
	sl.stripes[idx].RLock()
	return func() {
		sl.stripes[idx].RUnlock()
	}
}

func (sl *StripedLocks) stripeIndex(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % sl.count
}
