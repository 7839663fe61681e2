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


package uart

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlatformTiming(t *testing.T) {
	t.Parallel()

	onWindows := runtime.GOOS == "windows"
	assert.Equal(t, onWindows, isWindows())

	if onWindows {
		assert.Equal(t, 100*time.Millisecond, readTimeout())
	} else {
		assert.Equal(t, 50*time.Millisecond, readTimeout())
	}
}

func TestPostWriteDelay(t *testing.T) {
	t.Parallel()

	start := time.Now()
	postWriteDelay()
	elapsed := time.Since(start)

	if isWindows() {
		assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
		return
	}
	assert.Less(t, elapsed, 5*time.Millisecond)
}
