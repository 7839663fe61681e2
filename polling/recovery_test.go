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
	"testing"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReopener struct {
	path      string
	baud      mfreader.BaudRate
	succeedOn int
	calls     int
	retries   []int
}

func (f *fakeReopener) Initialize(_ context.Context, path string, baud mfreader.BaudRate, maxRetries int) bool {
	f.calls++
	f.retries = append(f.retries, maxRetries)
	f.path, f.baud = path, baud
	return f.succeedOn > 0 && f.calls >= f.succeedOn
}

func (f *fakeReopener) Path() string { return "/dev/ttyUSB3" }

func (f *fakeReopener) BaudRate() mfreader.BaudRate { return mfreader.Baud57600 }

func TestDefaultRecoverer_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	reader := &fakeReopener{succeedOn: 3}
	r := NewDefaultRecoverer(reader, time.Millisecond, 3)

	require.NoError(t, r.AttemptRecovery(context.Background()))
	assert.Equal(t, 3, reader.calls)
	assert.Equal(t, []int{1, 1, 1}, reader.retries)
	assert.Equal(t, "/dev/ttyUSB3", reader.path)
	assert.Equal(t, mfreader.Baud57600, reader.baud)
}

func TestDefaultRecoverer_GivesUp(t *testing.T) {
	t.Parallel()

	reader := &fakeReopener{}
	r := NewDefaultRecoverer(reader, time.Millisecond, 2)

	err := r.AttemptRecovery(context.Background())
	require.ErrorIs(t, err, ErrRecoveryFailed)
	assert.Contains(t, err.Error(), "/dev/ttyUSB3")
	assert.Equal(t, 2, reader.calls)
}

func TestDefaultRecoverer_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reader := &fakeReopener{}
	r := NewDefaultRecoverer(reader, time.Hour, 3)

	err := r.AttemptRecovery(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, reader.calls)
}

func TestNewDefaultRecoverer_Defaults(t *testing.T) {
	t.Parallel()

	r := NewDefaultRecoverer(&fakeReopener{}, 0, 0)
	assert.Equal(t, 3, r.maxAttempts)
	assert.Equal(t, 500*time.Millisecond, r.backoff)
}

func TestSleepRecoveryConfig_DetectSleep(t *testing.T) {
	t.Parallel()

	cfg := DefaultSleepRecoveryConfig()
	assert.False(t, cfg.DetectSleep(300*time.Millisecond, 250*time.Millisecond))
	assert.True(t, cfg.DetectSleep(3*time.Second, 250*time.Millisecond))

	cfg.Enabled = false
	assert.False(t, cfg.DetectSleep(time.Hour, 250*time.Millisecond))
}

func TestCardState_Transitions(t *testing.T) {
	t.Parallel()

	var cs CardState
	now := time.Unix(100, 0)

	assert.False(t, cs.RemovalDue(now, 0))

	cs.TransitionToDetected("aa", now)
	assert.True(t, cs.Present)
	assert.Equal(t, StateTagDetected, cs.DetectionState)
	assert.False(t, cs.RemovalDue(now.Add(time.Second), 2*time.Second))
	assert.True(t, cs.RemovalDue(now.Add(2*time.Second), 2*time.Second))

	cs.TransitionToRecovering()
	assert.False(t, cs.Present)
	assert.Empty(t, cs.LastUID)
	assert.Equal(t, StateRecovering, cs.DetectionState)
	assert.Equal(t, "recovering", cs.DetectionState.String())

	cs.TransitionToIdle()
	assert.Equal(t, StateIdle, cs.DetectionState)
	assert.Equal(t, "unknown", CardDetectionState(9).String())
}
