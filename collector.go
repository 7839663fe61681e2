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

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/go-mfreader/internal/syncutil"
)

// connState is the per-connection exchange state.
type connState int

const (
	stateIdle connState = iota
	stateAwaitingResponse
)

func (s connState) String() string {
	if s == stateAwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

// Exchange outcome labels reported to Metrics.
const (
	exchangeOK           = "ok"
	exchangeNoResponse   = "no_response"
	exchangeWriteFailure = "write_failure"
	exchangeClosed       = "connection_closed"
	exchangeCancelled    = "cancelled"
)

// responseBuffer accumulates chunks delivered by the stream's read loop.
type responseBuffer struct {
	data     []byte
	mu       syncutil.Mutex
	activity chan struct{}
}

func newResponseBuffer() *responseBuffer {
	return &responseBuffer{activity: make(chan struct{}, 1)}
}

func (b *responseBuffer) append(chunk []byte) {
	b.mu.Lock()
	b.data = append(b.data, chunk...)
	b.mu.Unlock()
	select {
	case b.activity <- struct{}{}:
	default:
	}
}

func (b *responseBuffer) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// beginExchange moves the connection to AwaitingResponse.
func (r *Reader) beginExchange(kind CommandKind) (stream Stream, port string, aborted chan struct{}, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return nil, r.path, nil, NewNotOpenError(kind.String(), r.path)
	}
	if r.state == stateAwaitingResponse {
		return nil, r.path, nil, NewBusyError(kind.String(), r.path)
	}
	r.state = stateAwaitingResponse
	r.inflight = make(chan struct{})
	return r.stream, r.path, r.inflight, nil
}

// endExchange returns the connection to Idle unless ClosePort already did.
func (r *Reader) endExchange(aborted chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight == aborted {
		r.inflight = nil
		r.state = stateIdle
	}
}

// sendAndAwait writes cmd and collects every byte delivered until the link has
// been quiet for timeout (or for Config.IdleGap after the last byte, when
// set). Partial data is returned as-is; zero bytes is ErrNoResponse.
//
// The protocol has no length prefix or terminator, so the quiet period is both
// the failure bound and the end-of-frame signal. Bytes that arrive after it
// are dropped.
func (r *Reader) sendAndAwait(
	ctx context.Context, kind CommandKind, cmd []byte, timeout time.Duration, trace *TraceBuffer,
) ([]byte, error) {
	stream, port, aborted, err := r.beginExchange(kind)
	if err != nil {
		return nil, trace.WrapError(err)
	}
	defer r.endExchange(aborted)

	op := kind.String()
	start := time.Now()
	buf := newResponseBuffer()
	unsubscribe := stream.Subscribe(buf.append)
	var once sync.Once
	stop := func() { once.Do(unsubscribe) }
	defer stop()

	trace.RecordTX(cmd, op)
	if err := stream.Write(cmd); err != nil {
		stop()
		r.metrics.ExchangeCompleted(op, exchangeWriteFailure, 0, time.Since(start))
		return nil, trace.WrapError(NewWriteError(op, port, err))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	gap := r.config.IdleGap
	var idle *time.Timer
	var idleC <-chan time.Time
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()

	for {
		select {
		case <-buf.activity:
			if gap <= 0 {
				continue
			}
			if idle == nil {
				idle = time.NewTimer(gap)
				idleC = idle.C
			} else {
				idle.Reset(gap)
			}
		case <-idleC:
			stop()
			return r.completeExchange(op, port, buf.bytes(), start, trace, "idle gap")
		case <-timer.C:
			stop()
			return r.completeExchange(op, port, buf.bytes(), start, trace, "quiet period")
		case <-aborted:
			stop()
			r.metrics.ExchangeCompleted(op, exchangeClosed, 0, time.Since(start))
			return nil, trace.WrapError(NewConnectionClosedError(op, port))
		case <-ctx.Done():
			stop()
			r.metrics.ExchangeCompleted(op, exchangeCancelled, 0, time.Since(start))
			return nil, trace.WrapError(fmt.Errorf("%s %s: %w", op, port, ctx.Err()))
		}
	}
}

func (r *Reader) completeExchange(
	op, port string, data []byte, start time.Time, trace *TraceBuffer, reason string,
) ([]byte, error) {
	elapsed := time.Since(start)
	if len(data) == 0 {
		trace.RecordTimeout(fmt.Sprintf("%s after %s", reason, elapsed.Round(time.Millisecond)))
		r.metrics.ExchangeCompleted(op, exchangeNoResponse, 0, elapsed)
		return nil, trace.WrapError(NewNoResponseError(op, port))
	}
	trace.RecordRX(data, reason)
	r.metrics.ExchangeCompleted(op, exchangeOK, len(data), elapsed)
	debugf("%s %s: % X (%s)", op, port, data, reason)
	return data, nil
}
