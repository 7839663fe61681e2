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
	"encoding/hex"
	"fmt"

	"github.com/ZaparooProject/go-mfreader/internal/frame"
	log "github.com/sirupsen/logrus"
)

// The public operations deliberately report failure in three shapes:
//
//	Authen, ChangeLedColor, Beep  -> false, never an error
//	SelectCard                    -> ok=false for "no card", error for link failures
//	ReadCard                      -> ok=false for "no data", error for link or
//	                                 authentication failures
//
// Internally every operation produces a result; the exported methods only
// translate it.

// outcome tags what an operation observed.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeNoCard
	outcomeNoData
	outcomeNotAuthenticated
	outcomeMismatch
	outcomeTransportError
)

func (o outcome) String() string {
	switch o {
	case outcomeSuccess:
		return "success"
	case outcomeNoCard:
		return "no_card"
	case outcomeNoData:
		return "no_data"
	case outcomeNotAuthenticated:
		return "not_authenticated"
	case outcomeMismatch:
		return "mismatch"
	case outcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

type result struct {
	err     error
	payload []byte
	outcome outcome
}

func transportFailure(err error) result {
	return result{outcome: outcomeTransportError, err: err}
}

// exchange runs one command on an open link.
func (r *Reader) exchange(ctx context.Context, kind CommandKind, cmd []byte) ([]byte, *TraceBuffer, error) {
	port, err := r.requireOpen(kind.String())
	trace := NewTraceBuffer(port, r.config.TraceSize)
	if err != nil {
		return nil, trace, err
	}
	resp, err := r.sendAndAwait(ctx, kind, cmd, r.timeoutFor(kind), trace)
	return resp, trace, err
}

// hasMarker checks the byte at offset 2.
func hasMarker(resp []byte, marker byte) bool {
	return len(resp) > markerOffset && resp[markerOffset] == marker
}

// slice clamps [from:to] to resp; to < 0 means the end of resp.
func slice(resp []byte, from, to int) []byte {
	if to < 0 || to > len(resp) {
		to = len(resp)
	}
	if from > to {
		return []byte{}
	}
	return append([]byte(nil), resp[from:to]...)
}

func (r *Reader) selectCard(ctx context.Context) result {
	resp, _, err := r.exchange(ctx, CmdSelectCard, r.protocol.Encode(CmdSelectCard, CommandParams{}))
	if err != nil {
		return transportFailure(err)
	}
	if !hasMarker(resp, r.protocol.SelectMarker) {
		return result{outcome: outcomeNoCard, payload: resp}
	}
	return result{outcome: outcomeSuccess, payload: slice(resp, selectPayloadStart, -1)}
}

func (r *Reader) authen(ctx context.Context, key Key, mode KeyMode) result {
	keyBytes, err := NormalizeKey(key)
	if err != nil {
		return result{outcome: outcomeNotAuthenticated, err: err}
	}
	cmd := r.protocol.Encode(CmdAuthenticate, CommandParams{Key: keyBytes, KeyMode: mode})
	resp, trace, err := r.exchange(ctx, CmdAuthenticate, cmd)
	if err != nil {
		return transportFailure(err)
	}
	if !bytes.Equal(resp, r.protocol.AuthExpectedResponse) {
		return result{
			outcome: outcomeNotAuthenticated,
			payload: resp,
			err: trace.WrapError(fmt.Errorf("%w: authenticate answered %s",
				ErrValidationMismatch, frame.Describe(resp))),
		}
	}
	return result{outcome: outcomeSuccess}
}

func (r *Reader) readCard(ctx context.Context, key Key, mode KeyMode) result {
	auth := r.authen(ctx, key, mode)
	r.metrics.OperationCompleted("authen", auth.outcome.String())
	if auth.outcome != outcomeSuccess {
		return result{outcome: outcomeNotAuthenticated, err: fmt.Errorf("%w: %w", ErrNotAuthenticated, auth.err)}
	}

	resp, _, err := r.exchange(ctx, CmdReadCard, r.protocol.Encode(CmdReadCard, CommandParams{}))
	if err != nil {
		return transportFailure(err)
	}
	if !hasMarker(resp, r.protocol.ReadMarker) {
		return result{outcome: outcomeNoData, payload: resp}
	}
	return result{outcome: outcomeSuccess, payload: slice(resp, readPayloadStart, readPayloadEnd)}
}

// expectExact sends cmd and requires the whole response to equal expected.
func (r *Reader) expectExact(ctx context.Context, kind CommandKind, cmd, expected []byte) result {
	resp, trace, err := r.exchange(ctx, kind, cmd)
	if err != nil {
		return transportFailure(err)
	}
	if !bytes.Equal(resp, expected) {
		return result{
			outcome: outcomeMismatch,
			payload: resp,
			err: trace.WrapError(fmt.Errorf("%w: %s answered %s",
				ErrValidationMismatch, kind, frame.Describe(resp))),
		}
	}
	return result{outcome: outcomeSuccess}
}

// report logs failures that the caller only sees as false/nil and records the
// outcome.
func (r *Reader) report(op string, res result) {
	r.metrics.OperationCompleted(op, res.outcome.String())
	if res.err == nil {
		return
	}
	fields := log.Fields{"op": op, "outcome": res.outcome.String()}
	if te := GetTrace(res.err); te != nil && DebugEnabled() {
		debugf("%s failed: %v\n%s", op, res.err, te.FormatTrace())
		return
	}
	if res.outcome == outcomeTransportError {
		warnf(fields, "%v", res.err)
		return
	}
	debugf("%s failed: %v", op, res.err)
}

// SelectCard asks the reader for the card in its field. It returns the
// hex-encoded bytes from offset 6 of the response (UID and trailer) and true
// when a card answered, "" and false when none did, and an error only when the
// link failed.
func (r *Reader) SelectCard(ctx context.Context) (string, bool, error) {
	res := r.selectCard(ctx)
	r.report("select_card", res)
	switch res.outcome {
	case outcomeSuccess:
		return hex.EncodeToString(res.payload), true, nil
	case outcomeNoCard:
		return "", false, nil
	default:
		return "", false, res.err
	}
}

// Authen authenticates the configured block with key using the given key
// slot. key may be a HexKey (12 hex characters) or a RawKey (6 bytes); any
// other length fails before anything is written. Every failure, including
// link errors, is reported as false.
func (r *Reader) Authen(ctx context.Context, key Key, mode KeyMode) bool {
	res := r.authen(ctx, key, mode)
	r.report("authen", res)
	return res.outcome == outcomeSuccess
}

// ReadCard authenticates and reads one 16-byte block, returned hex-encoded.
// A failed authentication or link error is returned as an error (wrapping
// ErrNotAuthenticated in the first case); a reader that answers without the
// read marker yields "" and false.
func (r *Reader) ReadCard(ctx context.Context, key Key, mode KeyMode) (string, bool, error) {
	res := r.readCard(ctx, key, mode)
	r.report("read_card", res)
	switch res.outcome {
	case outcomeSuccess:
		return hex.EncodeToString(res.payload), true, nil
	case outcomeNoData:
		return "", false, nil
	default:
		return "", false, res.err
	}
}

// ChangeLedColor sets the LED. It reports false on any failure.
func (r *Reader) ChangeLedColor(ctx context.Context, color Color) bool {
	cmd := r.protocol.Encode(CmdLED, CommandParams{Color: color})
	res := r.expectExact(ctx, CmdLED, cmd, r.protocol.LEDExpectedResponse)
	r.report("change_led_color", res)
	return res.outcome == outcomeSuccess
}

// Beep sounds the beeper once. It reports false on any failure.
func (r *Reader) Beep(ctx context.Context) bool {
	cmd := r.protocol.Encode(CmdBeep, CommandParams{})
	res := r.expectExact(ctx, CmdBeep, cmd, r.protocol.BeepExpectedResponse)
	r.report("beep", res)
	return res.outcome == outcomeSuccess
}
