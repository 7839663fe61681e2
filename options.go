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
	"fmt"
	"time"
)

// Default timing, taken from the reader's observed behaviour.
const (
	DefaultMaxRetries      = 20
	DefaultRetryDelay      = 500 * time.Millisecond
	DefaultCommandTimeout  = 5000 * time.Millisecond
	DefaultOpenPortTimeout = 3000 * time.Millisecond
	DefaultTraceSize       = 16
)

// Config contains the link and timing settings of a Reader.
type Config struct {
	// BaudRate is used by callers that read it from a config file; Initialize
	// always takes the rate explicitly.
	BaudRate BaudRate
	// MaxRetries is the number of open-port attempts made by Initialize when
	// it is called with maxRetries <= 0.
	MaxRetries int
	// RetryDelay is the fixed pause between open-port attempts.
	RetryDelay time.Duration
	// CommandTimeout is the quiet period for every command except open-port.
	CommandTimeout time.Duration
	// OpenPortTimeout is the quiet period for the open-port handshake.
	OpenPortTimeout time.Duration
	// IdleGap, when positive, completes a response as soon as no new byte has
	// arrived for this long. Zero waits out the full timeout.
	IdleGap time.Duration
	// TraceSize bounds the wire trace attached to returned errors.
	TraceSize int
}

// DefaultConfig returns default reader configuration
func DefaultConfig() *Config {
	return &Config{
		BaudRate:        Baud19200,
		MaxRetries:      DefaultMaxRetries,
		RetryDelay:      DefaultRetryDelay,
		CommandTimeout:  DefaultCommandTimeout,
		OpenPortTimeout: DefaultOpenPortTimeout,
		TraceSize:       DefaultTraceSize,
	}
}

// Validate rejects settings the reader cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.MaxRetries < 1:
		return fmt.Errorf("%w: max retries must be at least 1, got %d", ErrInvalidParameter, c.MaxRetries)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: negative retry delay %s", ErrInvalidParameter, c.RetryDelay)
	case c.CommandTimeout <= 0:
		return fmt.Errorf("%w: command timeout must be positive", ErrInvalidParameter)
	case c.OpenPortTimeout <= 0:
		return fmt.Errorf("%w: open port timeout must be positive", ErrInvalidParameter)
	case c.IdleGap < 0:
		return fmt.Errorf("%w: negative idle gap %s", ErrInvalidParameter, c.IdleGap)
	}
	return nil
}

// Option configures a Reader.
type Option func(*Reader) error

// WithConfig replaces the reader configuration.
func WithConfig(cfg *Config) Option {
	return func(r *Reader) error {
		if cfg == nil {
			return fmt.Errorf("%w: config is nil", ErrInvalidParameter)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		c := *cfg
		r.config = &c
		return nil
	}
}

// WithProtocol replaces the built-in byte tables. The reader keeps a copy.
func WithProtocol(p *Protocol) Option {
	return func(r *Reader) error {
		if err := p.Validate(); err != nil {
			return err
		}
		r.protocol = p.Clone()
		return nil
	}
}

// WithMetrics reports command outcomes to m.
func WithMetrics(m Metrics) Option {
	return func(r *Reader) error {
		if m == nil {
			m = NoopMetrics{}
		}
		r.metrics = m
		return nil
	}
}

// WithIdleGap is a shortcut for setting Config.IdleGap.
func WithIdleGap(gap time.Duration) Option {
	return func(r *Reader) error {
		if gap < 0 {
			return fmt.Errorf("%w: negative idle gap %s", ErrInvalidParameter, gap)
		}
		r.config.IdleGap = gap
		return nil
	}
}
