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
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfreader/internal/frame"
	"github.com/ZaparooProject/go-mfreader/internal/syncutil"
	log "github.com/sirupsen/logrus"
)

// Reader drives a MIFARE card reader over a byte stream.
//
// Thread Safety: a Reader accepts one command at a time. A second command
// issued while one is awaiting its response fails fast with ErrBusy instead of
// sharing the incoming bytes. Callers that want to queue operations from
// several goroutines must serialize them (see the httpapi package).
type Reader struct {
	factory  StreamFactory
	config   *Config
	protocol *Protocol
	metrics  Metrics
	sleep    sleepFunc

	stream   Stream
	inflight chan struct{}
	path     string
	baud     BaudRate
	gen      uint64
	state    connState
	mu       syncutil.Mutex
	open     bool
}

// New creates a Reader that opens its link through factory.
func New(factory StreamFactory, opts ...Option) (*Reader, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: stream factory is nil", ErrInvalidParameter)
	}
	r := &Reader{
		factory:  factory,
		config:   DefaultConfig(),
		protocol: DefaultProtocol(),
		metrics:  NoopMetrics{},
		sleep:    sleepWithContext,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Config returns a copy of the reader configuration.
func (r *Reader) Config() Config {
	return *r.config
}

// Protocol returns a copy of the byte tables in use.
func (r *Reader) Protocol() *Protocol {
	return r.protocol.Clone()
}

// IsOpen reports whether the open-port handshake has succeeded and the link
// has not been closed since.
func (r *Reader) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Path returns the path passed to the last Initialize.
func (r *Reader) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// BaudRate returns the rate passed to the last Initialize.
func (r *Reader) BaudRate() BaudRate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.baud
}

// Busy reports whether a command is awaiting its response.
func (r *Reader) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateAwaitingResponse
}

// Initialize opens the link at baud and performs the open-port handshake,
// making up to maxRetries attempts (Config.MaxRetries when maxRetries <= 0)
// with Config.RetryDelay between them. An attempt succeeds only when the whole
// response equals the expected open-port response.
//
// Initialize never returns an error: failures of individual attempts are
// logged and the overall result is reported as a bool. A previously open link
// is closed first.
func (r *Reader) Initialize(ctx context.Context, path string, baud BaudRate, maxRetries int) bool {
	if maxRetries <= 0 {
		maxRetries = r.config.MaxRetries
	}

	r.closeStream()

	r.mu.Lock()
	r.path = path
	r.baud = baud
	gen := r.gen
	r.mu.Unlock()

	fields := log.Fields{"port": path, "baud": int(baud)}
	if !baud.Valid() {
		warnf(fields, "unsupported baud rate, using the default open-port code")
	}

	cmd := r.protocol.OpenPortCommand(baud)
	err := retryFixed(ctx, maxRetries, r.config.RetryDelay, r.sleep, func(attempt int) error {
		attemptErr := r.openPortAttempt(ctx, gen, path, baud, cmd)
		r.metrics.InitAttempt(attemptErr == nil)
		if attemptErr != nil {
			debugf("Attempt %d/%d on %s: %v, retrying...", attempt, maxRetries, path, attemptErr)
		}
		return attemptErr
	}, func(err error) bool {
		return !errors.Is(err, ErrConnectionClosed)
	})
	if err != nil {
		warnf(fields, "card reader failed to initialize after %d attempts: %v", maxRetries, err)
		r.mu.Lock()
		if r.gen == gen {
			r.mu.Unlock()
			r.closeStream()
		} else {
			r.mu.Unlock()
		}
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return false
	}
	r.open = true
	debugf("Card reader initialized on %s at %d baud", path, baud)
	return true
}

// openPortAttempt runs one handshake, opening the stream first if needed.
func (r *Reader) openPortAttempt(ctx context.Context, gen uint64, path string, baud BaudRate, cmd []byte) error {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return NewConnectionClosedError(CmdOpenPort.String(), path)
	}
	haveStream := r.stream != nil
	r.mu.Unlock()

	if !haveStream {
		if err := r.installStream(gen, path, baud); err != nil {
			return err
		}
	}

	trace := NewTraceBuffer(path, r.config.TraceSize)
	resp, err := r.sendAndAwait(ctx, CmdOpenPort, cmd, r.config.OpenPortTimeout, trace)
	if err != nil {
		return err
	}
	if !bytes.Equal(resp, r.protocol.OpenPortExpectedResponse) {
		return trace.WrapError(fmt.Errorf("%w: open port answered %s", ErrValidationMismatch, frame.Describe(resp)))
	}
	return nil
}

// installStream opens a stream without holding mu, since serial opens can
// block. The stream is discarded if ClosePort or a new Initialize ran in the
// meantime.
func (r *Reader) installStream(gen uint64, path string, baud BaudRate) error {
	stream, err := r.factory(path, baud)
	if err != nil {
		return NewTransportError(CmdOpenPort.String(), path, fmt.Errorf("%w: %w", ErrStreamOpen, err), ErrorTypeTransient)
	}

	r.mu.Lock()
	stale := r.gen != gen || r.stream != nil
	if !stale {
		r.stream = stream
	}
	r.mu.Unlock()

	if stale {
		if closeErr := stream.Close(); closeErr != nil {
			debugf("close discarded stream %s: %v", path, closeErr)
		}
		return NewConnectionClosedError(CmdOpenPort.String(), path)
	}
	return nil
}

// ClosePort closes the link if one is present. It is safe to call at any
// time, repeatedly, or before Initialize. A command awaiting its response
// fails with ErrConnectionClosed.
func (r *Reader) ClosePort() {
	if err := r.closeStream(); err != nil {
		debugf("close %s: %v", r.Path(), err)
	}
}

// Close is ClosePort for use with io.Closer; it returns the stream's close error.
func (r *Reader) Close() error {
	return r.closeStream()
}

func (r *Reader) closeStream() error {
	r.mu.Lock()
	stream := r.stream
	r.stream = nil
	r.open = false
	r.gen++
	if r.inflight != nil {
		close(r.inflight)
		r.inflight = nil
	}
	r.state = stateIdle
	r.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}

// requireOpen returns the port name, or a NotOpen error when the handshake
// has not completed.
func (r *Reader) requireOpen(op string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open || r.stream == nil {
		return r.path, NewNotOpenError(op, r.path)
	}
	return r.path, nil
}

// timeoutFor returns the quiet period used for kind.
func (r *Reader) timeoutFor(kind CommandKind) time.Duration {
	if kind == CmdOpenPort {
		return r.config.OpenPortTimeout
	}
	return r.config.CommandTimeout
}
