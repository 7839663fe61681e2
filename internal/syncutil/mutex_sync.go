//go:build !deadlock

// Package syncutil holds the mutex types used by the reader, the serial stream
// and the HTTP API. Plain sync mutexes are used unless the module is built with
// -tags=deadlock, which swaps in github.com/sasha-s/go-deadlock so lock-order
// bugs between the collector and the stream's read loop surface in tests.
package syncutil

import "sync"

// Mutex is a sync.Mutex in normal builds.
//
//nolint:gocritic // Embedding exposes Lock/Unlock/TryLock directly
type Mutex struct {
	sync.Mutex
}

// RWMutex is a sync.RWMutex in normal builds.
//
//nolint:gocritic // Embedding exposes the full RWMutex API directly
type RWMutex struct {
	sync.RWMutex
}

// DeadlockDetection reports whether go-deadlock is compiled in.
const DeadlockDetection = false
