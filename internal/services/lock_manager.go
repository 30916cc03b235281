// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager hands out per-character locks so state read-modify-write
// cycles never interleave for the same identity.
type LockManager struct {
	characterLocks map[string]*LockInfo
	globalLock     sync.RWMutex
	cleanupTicker  *time.Ticker
}

// LockInfo wraps a lock with its last use for cleanup.
type LockInfo struct {
	Mutex    *sync.Mutex
	LastUsed time.Time
}

// NewLockManager creates the manager and starts its cleanup loop.
func NewLockManager() *LockManager {
	lm := &LockManager{
		characterLocks: make(map[string]*LockInfo),
	}
	lm.startCleanup()
	return lm
}

// GetCharacterLock returns the lock for an identity key, creating it on
// first use.
func (lm *LockManager) GetCharacterLock(key string) *sync.Mutex {
	lm.globalLock.RLock()
	if lockInfo, exists := lm.characterLocks[key]; exists {
		lm.globalLock.RUnlock()
		lockInfo.LastUsed = time.Now()
		return lockInfo.Mutex
	}
	lm.globalLock.RUnlock()

	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	// Double check under the write lock.
	if lockInfo, exists := lm.characterLocks[key]; exists {
		lockInfo.LastUsed = time.Now()
		return lockInfo.Mutex
	}

	lock := &sync.Mutex{}
	lm.characterLocks[key] = &LockInfo{
		Mutex:    lock,
		LastUsed: time.Now(),
	}
	return lock
}

// ExecuteWithCharacterLock runs fn while holding the identity's lock.
func (lm *LockManager) ExecuteWithCharacterLock(key string, fn func() error) error {
	lock := lm.GetCharacterLock(key)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (lm *LockManager) startCleanup() {
	lm.cleanupTicker = time.NewTicker(5 * time.Minute)
	go func() {
		for range lm.cleanupTicker.C {
			lm.cleanupUnusedLocks()
		}
	}()
}

func (lm *LockManager) cleanupUnusedLocks() {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	const maxLocks = 200
	const lockTimeout = 30 * time.Minute

	// Only worth sweeping when the map has grown past the cast of most books.
	if len(lm.characterLocks) > maxLocks {
		now := time.Now()
		for key, lockInfo := range lm.characterLocks {
			if now.Sub(lockInfo.LastUsed) > lockTimeout {
				delete(lm.characterLocks, key)
			}
		}
	}
}
