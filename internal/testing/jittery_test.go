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
	"bytes"
	"testing"
	"time"
)

func TestJitter_NoFragmentation(t *testing.T) {
	t.Parallel()

	j := NewJitter(JitterConfig{FragmentReads: false, Seed: 12345})
	data := BuildReadResponse(bytes.Repeat([]byte{0x42}, BlockSize))

	chunks := j.Split(data)
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(chunks))
	}
	if !bytes.Equal(chunks[0], data) {
		t.Errorf("chunk %X differs from %X", chunks[0], data)
	}
}

func TestJitter_FragmentationPreservesBytes(t *testing.T) {
	t.Parallel()

	data := BuildReadResponse(bytes.Repeat([]byte{0x42}, BlockSize))
	for seed := uint64(1); seed <= 20; seed++ {
		j := NewJitter(JitterConfig{FragmentReads: true, FragmentMinBytes: 2, Seed: seed})
		chunks := j.Split(data)

		var joined []byte
		for i, chunk := range chunks {
			if len(chunk) < 2 && i != len(chunks)-1 {
				t.Fatalf("seed %d: chunk %d has %d bytes, below the minimum", seed, i, len(chunk))
			}
			joined = append(joined, chunk...)
		}
		if !bytes.Equal(joined, data) {
			t.Fatalf("seed %d: reassembled %X, want %X", seed, joined, data)
		}
	}
}

func TestJitter_Deterministic(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0x01, 0x02, 0x03}, 10)
	a := NewJitter(JitterConfig{FragmentReads: true, Seed: 42}).Split(data)
	b := NewJitter(JitterConfig{FragmentReads: true, Seed: 42}).Split(data)
	if len(a) != len(b) {
		t.Fatalf("same seed produced %d and %d chunks", len(a), len(b))
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			t.Fatalf("chunk %d differs: %X vs %X", i, a[i], b[i])
		}
	}
}

func TestJitter_LatencyBounded(t *testing.T) {
	t.Parallel()

	j := NewJitter(JitterConfig{MaxLatency: 3 * time.Millisecond, Seed: 7})
	for range 100 {
		if d := j.Latency(); d < 0 || d > 3*time.Millisecond {
			t.Fatalf("latency %s out of range", d)
		}
	}
	if d := NewJitter(JitterConfig{}).Latency(); d != 0 {
		t.Errorf("expected zero latency without MaxLatency, got %s", d)
	}
}

func TestJitter_EmptyInput(t *testing.T) {
	t.Parallel()

	if chunks := NewJitter(DefaultJitterConfig()).Split(nil); chunks != nil {
		t.Errorf("expected nil chunks, got %v", chunks)
	}
}
