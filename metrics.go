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

package mfreader

import "time"

// Metrics receives reader activity. The metrics/prometheus package provides an
// implementation; NoopMetrics is used when none is configured.
type Metrics interface {
	// ExchangeCompleted is called once per command written, with the outcome
	// label of the collector ("ok", "no_response", "write_failure", ...).
	ExchangeCompleted(command string, outcome string, bytesReceived int, elapsed time.Duration)
	// InitAttempt is called for every open-port attempt.
	InitAttempt(success bool)
	// OperationCompleted is called when a public operation returns, with its
	// interpreted outcome ("success", "no_card", "not_authenticated", ...).
	OperationCompleted(operation string, outcome string)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) ExchangeCompleted(string, string, int, time.Duration) {}

func (NoopMetrics) InitAttempt(bool) {}

func (NoopMetrics) OperationCompleted(string, string) {}
