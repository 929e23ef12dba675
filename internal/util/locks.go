package util

import (
	"sync"
)

// GuardedLock is a read-write lock which hands out guards, so a deferred UnlockIfLocked() is safe to combine with
// manual unlocking in the middle of the function.
type GuardedLock struct {
	lock sync.RWMutex
}

func (l *GuardedLock) Lock() LockGuard {
	lock := MakeLockGuard(&l.lock)
	lock.Lock()
	return lock //nolint:govet
}

func (l *GuardedLock) RLock() LockGuard {
	lock := MakeLockGuard(l.lock.RLocker())
	lock.Lock()
	return lock //nolint:govet
}

type LockGuard struct {
	lock   sync.Locker
	locked bool
}

func MakeLockGuard(lock sync.Locker) LockGuard {
	return LockGuard{lock: lock}
}

func (l *LockGuard) Lock() {
	l.lock.Lock()
	l.locked = true
}

func (l *LockGuard) Unlock() {
	l.lock.Unlock()
	l.locked = false
}

func (l *LockGuard) UnlockIfLocked() {
	if l.locked {
		l.Unlock()
	}
}
