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
	"sync/atomic"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/ZaparooProject/go-mfreader/internal/syncutil"
	log "github.com/sirupsen/logrus"
)

// ErrTooManyErrors ends a session without a recoverer once polls keep failing.
var ErrTooManyErrors = errors.New("too many consecutive polling errors")

// Device is the part of *mfreader.Reader a session polls.
type Device interface {
	SelectCard(ctx context.Context) (string, bool, error)
}

// Session handles continuous card monitoring with state machine
type Session struct {
	device         Device
	recoverer      DeviceRecoverer
	config         *Config
	OnCardDetected func(uid string) error
	OnCardRemoved  func()
	OnCardChanged  func(uid string) error
	done           chan struct{}
	now            func() time.Time
	state          CardState
	errCount       int
	stateMutex     syncutil.RWMutex
	closed         atomic.Bool
}

// NewSession creates a new card monitoring session
func NewSession(device Device, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	return &Session{
		device: device,
		config: config,
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// NewReaderSession creates a session over reader that reopens the link with
// the sleep recovery settings when polls keep failing.
func NewReaderSession(reader *mfreader.Reader, config *Config) *Session {
	s := NewSession(reader, config)
	s.SetRecoverer(NewDefaultRecoverer(reader,
		s.config.SleepRecovery.RecoveryBackoff, s.config.SleepRecovery.MaxRecoveryAttempts))
	return s
}

// SetRecoverer sets how the session reopens a failing reader. Without one,
// Start returns ErrTooManyErrors instead.
func (s *Session) SetRecoverer(r DeviceRecoverer) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.recoverer = r
}

// SetOnCardDetected sets the callback for when a card is detected.
func (s *Session) SetOnCardDetected(callback func(uid string) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardDetected = callback
}

// SetOnCardRemoved sets the callback for when a card is removed.
func (s *Session) SetOnCardRemoved(callback func()) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardRemoved = callback
}

// SetOnCardChanged sets the callback for when the card changes.
func (s *Session) SetOnCardChanged(callback func(uid string) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCardChanged = callback
}

func (s *Session) hasRecoverer() bool {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.recoverer != nil
}

// GetState returns the current card state
func (s *Session) GetState() CardState {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.state
}

// Close stops a running Start. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
	return nil
}

// Start polls until ctx is done, Close is called, a callback fails, or the
// reader cannot be recovered. Close ends it with a nil error.
func (s *Session) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	last := s.now()
	for {
		if s.closed.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		now := s.now()
		if s.config.SleepRecovery.DetectSleep(now.Sub(last), s.config.PollInterval) && s.hasRecoverer() {
			log.WithField("gap", now.Sub(last).Round(time.Millisecond)).Debug("poll gap suggests host sleep")
			if err := s.recoverReader(ctx, errors.New("host sleep detected")); err != nil {
				return err
			}
		}
		last = now

		if err := s.executeSinglePollingCycle(ctx); err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// executeSinglePollingCycle performs one poll and processes its result
func (s *Session) executeSinglePollingCycle(ctx context.Context) error {
	uid, ok, err := s.device.SelectCard(ctx)
	if s.closed.Load() {
		// Close ran while the poll was in flight; its result is stale.
		return nil
	}
	if err != nil {
		return s.handlePollingError(ctx, err)
	}
	s.errCount = 0

	if !ok {
		s.stateMutex.RLock()
		due := s.state.RemovalDue(s.now(), s.config.CardRemovalTimeout)
		s.stateMutex.RUnlock()
		if due {
			s.handleCardRemoval()
		}
		return nil
	}

	if err := s.updateCardState(uid); err != nil {
		return fmt.Errorf("callback error during polling: %w", err)
	}
	return nil
}

// handlePollingError counts link failures and recovers once they pile up
func (s *Session) handlePollingError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, mfreader.ErrBusy) {
		// another caller owns the link for now
		return nil
	}

	log.WithError(err).Debug("poll failed")
	// A reader that stops answering cannot vouch for the card.
	s.handleCardRemoval()

	s.errCount++
	if s.errCount < s.config.MaxConsecutiveErrors {
		return nil
	}
	return s.recoverReader(ctx, err)
}

func (s *Session) recoverReader(ctx context.Context, cause error) error {
	s.handleCardRemoval()

	s.stateMutex.Lock()
	recoverer := s.recoverer
	if recoverer == nil {
		s.stateMutex.Unlock()
		return fmt.Errorf("%w: %w", ErrTooManyErrors, cause)
	}
	s.state.TransitionToRecovering()
	s.stateMutex.Unlock()

	if err := recoverer.AttemptRecovery(ctx); err != nil {
		return fmt.Errorf("%w (after: %w)", err, cause)
	}

	s.stateMutex.Lock()
	s.state.TransitionToIdle()
	s.stateMutex.Unlock()
	s.errCount = 0
	return nil
}

// handleCardRemoval reports a present card as gone
func (s *Session) handleCardRemoval() {
	s.stateMutex.Lock()
	wasPresent := s.state.Present
	if wasPresent {
		s.state.TransitionToIdle()
	}
	onRemoved := s.OnCardRemoved
	s.stateMutex.Unlock()

	// Call callback outside the lock to avoid potential deadlocks
	if wasPresent && onRemoved != nil {
		onRemoved()
	}
}

// updateCardState records uid and fires OnCardDetected or OnCardChanged
func (s *Session) updateCardState(uid string) error {
	s.stateMutex.Lock()
	wasPresent := s.state.Present
	changed := wasPresent && s.state.LastUID != uid
	s.state.TransitionToDetected(uid, s.now())
	onDetected := s.OnCardDetected
	onChanged := s.OnCardChanged
	s.stateMutex.Unlock()

	switch {
	case !wasPresent && onDetected != nil:
		return safeCallCallback(onDetected, uid, "OnCardDetected")
	case changed && onChanged != nil:
		return safeCallCallback(onChanged, uid, "OnCardChanged")
	default:
		return nil
	}
}

// safeCallCallback executes a callback with panic recovery
func safeCallCallback(callback func(string) error, uid, callbackName string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s callback panicked: %v", callbackName, r)
		}
	}()
	if cbErr := callback(uid); cbErr != nil {
		return fmt.Errorf("%s callback failed: %w", callbackName, cbErr)
	}
	return nil
}
