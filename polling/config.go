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


// Package polling watches a reader for cards arriving, changing and leaving.
package polling

import "time"

// SleepRecoveryConfig controls how a session reopens the reader after the
// host slept or the link kept failing.
type SleepRecoveryConfig struct {
	// A gap between polls longer than PollInterval plus this threshold is
	// treated as a host sleep. Default: 2s
	TimeDiscontinuityThreshold time.Duration
	// Delay between reopen attempts. Default: 500ms
	RecoveryBackoff time.Duration
	// Reopen attempts before the session gives up. Default: 3
	MaxRecoveryAttempts int
	// Enabled turns sleep detection on. Error-driven recovery does not
	// depend on it.
	Enabled bool
}

// DefaultSleepRecoveryConfig returns the recovery defaults.
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep reports whether elapsed, the time since the previous poll,
// is too long to be explained by pollInterval alone.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	return cfg.Enabled && elapsed > pollInterval+cfg.TimeDiscontinuityThreshold
}

// Config holds polling configuration options
type Config struct {
	SleepRecovery SleepRecoveryConfig
	PollInterval  time.Duration
	// CardRemovalTimeout is how long a card may go unseen before it is
	// reported removed. Zero reports removal on the first empty poll.
	CardRemovalTimeout time.Duration
	// MaxConsecutiveErrors is how many failed polls in a row trigger
	// recovery (or end the session when no recoverer is set).
	MaxConsecutiveErrors int
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:         250 * time.Millisecond,
		CardRemovalTimeout:   600 * time.Millisecond,
		MaxConsecutiveErrors: 3,
		SleepRecovery:        DefaultSleepRecoveryConfig(),
	}
}
