//go:build deadlock

// Package syncutil holds the lock types shared by the session engine and the
// readers. Under -tags=deadlock they are backed by go-deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

func init() {
	// tag I/O can legitimately block for a few seconds
	deadlock.Opts.DeadlockTimeout = 10 * time.Second
}

// Mutex is a go-deadlock mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a go-deadlock read/write mutex.
type RWMutex struct {
	deadlock.RWMutex
}
