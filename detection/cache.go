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


package detection

import (
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfreader/internal/syncutil"
)

// Probing opens ports and sends the handshake, so results are cached per
// transport, mode and probe speed.
type cacheEntry struct {
	timestamp time.Time
	devices   []DeviceInfo
}

type detectionCache struct {
	entries map[string]cacheEntry
	mu      syncutil.RWMutex
}

var cache = &detectionCache{
	entries: make(map[string]cacheEntry),
}

func cacheKey(transport string, opts *Options) string {
	return fmt.Sprintf("%s/%s@%d", transport, opts.Mode, opts.BaudRate)
}

func getCached(key string, ttl time.Duration) ([]DeviceInfo, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	entry, exists := cache.entries[key]
	if !exists || time.Since(entry.timestamp) > ttl {
		return nil, false
	}
	return append([]DeviceInfo(nil), entry.devices...), true
}

func setCached(key string, devices []DeviceInfo) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries[key] = cacheEntry{
		devices:   append([]DeviceInfo(nil), devices...),
		timestamp: time.Now(),
	}
}

func clearCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries = make(map[string]cacheEntry)
}

func clearCacheEntry(key string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	delete(cache.entries, key)
}

// Forget drops path from every cached result, e.g. after a detected reader
// failed to initialize, so the next detection probes again.
func Forget(path string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	for key, entry := range cache.entries {
		kept := entry.devices[:0:0]
		for _, d := range entry.devices {
			if normalizedPath(d.Path) != normalizedPath(path) {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(cache.entries, key)
			continue
		}
		entry.devices = kept
		cache.entries[key] = entry
	}
}
