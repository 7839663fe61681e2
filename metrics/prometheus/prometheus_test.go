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


package prometheus

import (
	"context"
	"testing"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	virt "github.com/ZaparooProject/go-mfreader/internal/testing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg, nil)

	m.ExchangeCompleted("select_card", "ok", 10, 20*time.Millisecond)
	m.ExchangeCompleted("select_card", "no_response", 0, 5*time.Second)
	m.InitAttempt(false)
	m.InitAttempt(true)
	m.OperationCompleted("beep", "success")

	assert.InDelta(t, 1, testutil.ToFloat64(m.exchanges.WithLabelValues("select_card", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.exchanges.WithLabelValues("select_card", "no_response")), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(m.bytesReceived.WithLabelValues("select_card")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.initAttempts.WithLabelValues("failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.initAttempts.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("beep", "success")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.exchangeTime))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "mfreader_exchange_total")
	assert.Contains(t, names, "mfreader_operation_total")
	assert.Contains(t, names, "mfreader_init_attempts_total")
}

func TestMetrics_CustomNamespace(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	cfg := DefaultConfig()
	cfg.Namespace = "door"
	m := New(reg, cfg)
	m.InitAttempt(true)

	count, err := testutil.GatherAndCount(reg, "door_init_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_NilRegisterer(t *testing.T) {
	t.Parallel()

	m := New(nil, nil)
	assert.NotPanics(t, func() { m.OperationCompleted("beep", "mismatch") })
}

func TestMetrics_WiredIntoReader(t *testing.T) {
	t.Parallel()

	vr := virt.NewVirtualReader()
	vr.SetCard(virt.NewVirtualMIFARE1K(nil))
	m := New(prometheus.NewRegistry(), nil)

	cfg := mfreader.DefaultConfig()
	cfg.CommandTimeout = 50 * time.Millisecond
	cfg.OpenPortTimeout = 50 * time.Millisecond
	r, err := mfreader.New(func(string, mfreader.BaudRate) (mfreader.Stream, error) {
		if err := vr.Open(); err != nil {
			return nil, err
		}
		return vr, nil
	}, mfreader.WithConfig(cfg), mfreader.WithMetrics(m))
	require.NoError(t, err)
	defer r.ClosePort()

	ctx := context.Background()
	require.True(t, r.Initialize(ctx, "/dev/virtual0", mfreader.Baud19200, 1))
	_, ok, err := r.SelectCard(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, 1, testutil.ToFloat64(m.initAttempts.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.exchanges.WithLabelValues("open_port", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("select_card", "success")), 0)
}
