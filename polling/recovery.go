// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/ZaparooProject/go-mfreader/internal/syncutil"
	log "github.com/sirupsen/logrus"
)

// ErrRecoveryFailed is returned when the reader could not be reopened.
var ErrRecoveryFailed = errors.New("reader recovery failed")

// DeviceRecoverer handles device recovery after sleep/wake or errors
type DeviceRecoverer interface {
	// AttemptRecovery tries to recover the device connection.
	// Returns nil if recovery was successful, error otherwise.
	AttemptRecovery(ctx context.Context) error
}

// Reopener is the part of *mfreader.Reader recovery needs.
type Reopener interface {
	Initialize(ctx context.Context, path string, baud mfreader.BaudRate, maxRetries int) bool
	Path() string
	BaudRate() mfreader.BaudRate
}

// DefaultRecoverer reruns the open-port handshake on the path and baud rate
// the reader was last initialized with.
type DefaultRecoverer struct {
	reader      Reopener
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer for reader.
func NewDefaultRecoverer(reader Reopener, backoff time.Duration, maxAttempts int) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		reader:      reader,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery reopens the link, one handshake per attempt.
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, baud := r.reader.Path(), r.reader.BaudRate()
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		if r.reader.Initialize(ctx, path, baud, 1) {
			log.WithFields(log.Fields{"port": path, "attempt": attempt + 1}).Info("card reader recovered")
			return nil
		}
	}

	return fmt.Errorf("%w: %s after %d attempts", ErrRecoveryFailed, path, r.maxAttempts)
}
