//go:build deadlock

// Package syncutil holds the mutex types used by the reader, the serial stream
// and the HTTP API. This file is compiled with -tags=deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

func init() {
	// HTTP handlers queue on the API lock for whole reader operations, and an
	// Initialize with default retries runs for well over a minute.
	deadlock.Opts.DeadlockTimeout = 3 * time.Minute
}

// Mutex is a deadlock.Mutex when built with -tags=deadlock.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock.RWMutex when built with -tags=deadlock.
type RWMutex struct {
	deadlock.RWMutex
}

// DeadlockDetection reports whether go-deadlock is compiled in.
const DeadlockDetection = true
