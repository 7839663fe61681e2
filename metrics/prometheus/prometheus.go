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


// Package prometheus exports reader activity as Prometheus metrics.
package prometheus

import (
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/prometheus/client_golang/prometheus"
)

type MetricsConfig struct {
	Namespace    string
	SubExchange  string
	SubOperation string
	SubInit      string
	// LatencyBuckets are in seconds.
	LatencyBuckets []float64
}

func DefaultConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace:    "mfreader",
		SubExchange:  "exchange",
		SubOperation: "operation",
		SubInit:      "init",
		// The quiet period dominates: most exchanges land near the command
		// timeout unless an idle gap is configured.
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
	}
}

// Metrics implements mfreader.Metrics.
type Metrics struct {
	exchanges     *prometheus.CounterVec
	exchangeTime  *prometheus.HistogramVec
	bytesReceived *prometheus.CounterVec
	operations    *prometheus.CounterVec
	initAttempts  *prometheus.CounterVec
}

var _ mfreader.Metrics = (*Metrics)(nil)

// New creates the collectors and registers them with reg. A nil config uses
// DefaultConfig.
func New(reg prometheus.Registerer, config *MetricsConfig) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	met := &Metrics{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubExchange, Name: "total",
			Help: "Commands written, by collector outcome"}, []string{"command", "outcome"}),
		exchangeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace, Subsystem: config.SubExchange, Name: "duration_seconds",
			Help: "Time from write to response completion", Buckets: config.LatencyBuckets}, []string{"command"}),
		bytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubExchange, Name: "received_bytes_total",
			Help: "Response bytes collected"}, []string{"command"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubOperation, Name: "total",
			Help: "Public operations, by interpreted outcome"}, []string{"operation", "outcome"}),
		initAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubInit, Name: "attempts_total",
			Help: "Open-port attempts"}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(met.exchanges, met.exchangeTime, met.bytesReceived, met.operations, met.initAttempts)
	}
	return met
}

func (m *Metrics) ExchangeCompleted(command string, outcome string, bytesReceived int, elapsed time.Duration) {
	m.exchanges.WithLabelValues(command, outcome).Inc()
	m.exchangeTime.WithLabelValues(command).Observe(elapsed.Seconds())
	if bytesReceived > 0 {
		m.bytesReceived.WithLabelValues(command).Add(float64(bytesReceived))
	}
}

func (m *Metrics) InitAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.initAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) OperationCompleted(operation string, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}
