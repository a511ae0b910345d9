package syncutil

import "sync"

// With runs fn while holding l.
func With(l sync.Locker, fn func()) {
	l.Lock()
	defer l.Unlock()
	fn()
}

// Read runs fn while holding the read side of l and returns its result.
func Read[T any](l *RWMutex, fn func() T) T {
	l.RLock()
	defer l.RUnlock()
	return fn()
}
