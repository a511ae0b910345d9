//go:build !deadlock

// Package syncutil holds the lock types shared by the session engine and the
// readers. Build with -tags=deadlock to swap in github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// Mutex is a sync.Mutex unless built with the deadlock tag.
//
//nolint:gocritic // embedding exposes Lock/Unlock
type Mutex struct {
	sync.Mutex
}

// RWMutex is a sync.RWMutex unless built with the deadlock tag.
//
//nolint:gocritic // embedding exposes Lock/Unlock
type RWMutex struct {
	sync.RWMutex
}
