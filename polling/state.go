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

import "time"

// CardDetectionState represents the finite state machine for card detection
type CardDetectionState int

const (
	StateIdle CardDetectionState = iota
	StateTagDetected
	StateRecovering
)

func (s CardDetectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTagDetected:
		return "tag_detected"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// CardState tracks the state of a card on a reader
type CardState struct {
	LastSeenTime   time.Time
	LastUID        string
	DetectionState CardDetectionState
	Present        bool
}

// TransitionToDetected records a sighting of uid.
func (cs *CardState) TransitionToDetected(uid string, now time.Time) {
	cs.DetectionState = StateTagDetected
	cs.Present = true
	cs.LastUID = uid
	cs.LastSeenTime = now
}

// TransitionToIdle resets to idle state
func (cs *CardState) TransitionToIdle() {
	cs.DetectionState = StateIdle
	cs.Present = false
	cs.LastUID = ""
	cs.LastSeenTime = time.Time{}
}

// TransitionToRecovering marks the reader as being reopened. Any card is
// forgotten.
func (cs *CardState) TransitionToRecovering() {
	cs.TransitionToIdle()
	cs.DetectionState = StateRecovering
}

// RemovalDue reports whether a present card has gone unseen for longer than
// timeout.
func (cs *CardState) RemovalDue(now time.Time, timeout time.Duration) bool {
	return cs.Present && now.Sub(cs.LastSeenTime) >= timeout
}
