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


package testing

import (
	"math/rand/v2"
	"time"

	"github.com/ZaparooProject/go-mfreader/internal/syncutil"
)

// JitterConfig configures how responses are split and paced on delivery.
type JitterConfig struct {
	MaxLatency       time.Duration
	FragmentMinBytes int
	Seed             uint64
	FragmentReads    bool
}

// DefaultJitterConfig returns a sensible default configuration for testing.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       5 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// Jitter simulates USB-UART bridges (FTDI, CH340) that hand a response to the
// host in unpredictable pieces with gaps in between.
type Jitter struct {
	rng    *rand.Rand
	config JitterConfig
	mu     syncutil.Mutex
}

// NewJitter creates a Jitter. A zero seed picks a random one.
func NewJitter(config JitterConfig) *Jitter {
	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewPCG(config.Seed, config.Seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // Test code, not crypto
	}

	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}

	return &Jitter{config: config, rng: rng}
}

// Split cuts data into consecutive chunks of at least FragmentMinBytes (the
// last one may be shorter). Without FragmentReads data comes back whole.
func (j *Jitter) Split(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if !j.config.FragmentReads {
		return [][]byte{append([]byte(nil), data...)}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var chunks [][]byte
	for len(data) > 0 {
		n := len(data)
		if n > j.config.FragmentMinBytes {
			n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
		}
		chunks = append(chunks, append([]byte(nil), data[:n]...))
		data = data[n:]
	}
	return chunks
}

// Latency returns a random pause in [0, MaxLatency].
func (j *Jitter) Latency() time.Duration {
	if j.config.MaxLatency <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1))
}
