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
	"fmt"
)

// Frame layout used by the default tables:
//
//	AA BB | LEN LEN | NODE NODE | CMD CMD | DATA... | XOR
//
// LEN is little-endian and counts everything after itself. XOR covers the node
// id, command code and data. The reader never sends a terminator, so the tables
// below are matched as whole buffers or by fixed offsets.
const (
	// SelectSuccessMarker is the byte at offset 2 of a select-card response
	// that carries a UID.
	SelectSuccessMarker byte = 0x0A
	// ReadSuccessMarker is the byte at offset 2 of a read-card response that
	// carries a 16-byte block.
	ReadSuccessMarker byte = 0x16

	markerOffset       = 2
	selectPayloadStart = 6
	readPayloadStart   = 9
	readPayloadEnd     = 25
)

// Protocol holds the vendor byte tables for every command and expected response.
// It is configuration data: a Reader takes a private copy at construction and
// never mutates it.
type Protocol struct {
	OpenPortPrefix           []byte
	OpenPortExpectedResponse []byte

	SelectCardCommand []byte
	SelectMarker      byte

	AuthCommandPrefix    []byte
	AuthExpectedResponse []byte
	KeyModeA             byte
	KeyModeB             byte

	ReadCardCommand []byte
	ReadMarker      byte

	LEDCommandPrefix    []byte
	LEDExpectedResponse []byte

	BeepCommand          []byte
	BeepExpectedResponse []byte
}

// DefaultProtocol returns a fresh copy of the built-in byte tables.
func DefaultProtocol() *Protocol {
	return &Protocol{
		OpenPortPrefix:           []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x01, 0x01},
		OpenPortExpectedResponse: []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x01, 0x01, 0x00, 0x00},

		SelectCardCommand: []byte{0xAA, 0xBB, 0x05, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03},
		SelectMarker:      SelectSuccessMarker,

		// Block 4 (first data block of sector 1).
		AuthCommandPrefix:    []byte{0xAA, 0xBB, 0x0D, 0x00, 0x00, 0x00, 0x07, 0x02, 0x04},
		AuthExpectedResponse: []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x07, 0x02, 0x00, 0x05},
		KeyModeA:             0x60,
		KeyModeB:             0x61,

		ReadCardCommand: []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x08, 0x02, 0x04, 0x0E},
		ReadMarker:      ReadSuccessMarker,

		LEDCommandPrefix:    []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x07, 0x01},
		LEDExpectedResponse: []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x07, 0x01, 0x00, 0x06},

		// 10 x 10ms beep.
		BeepCommand:          []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x06, 0x01, 0x0A, 0x0D},
		BeepExpectedResponse: []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x06, 0x01, 0x00, 0x07},
	}
}

// Clone returns a deep copy of the protocol tables.
func (p *Protocol) Clone() *Protocol {
	if p == nil {
		return nil
	}
	return &Protocol{
		OpenPortPrefix:           bytes.Clone(p.OpenPortPrefix),
		OpenPortExpectedResponse: bytes.Clone(p.OpenPortExpectedResponse),
		SelectCardCommand:        bytes.Clone(p.SelectCardCommand),
		SelectMarker:             p.SelectMarker,
		AuthCommandPrefix:        bytes.Clone(p.AuthCommandPrefix),
		AuthExpectedResponse:     bytes.Clone(p.AuthExpectedResponse),
		KeyModeA:                 p.KeyModeA,
		KeyModeB:                 p.KeyModeB,
		ReadCardCommand:          bytes.Clone(p.ReadCardCommand),
		ReadMarker:               p.ReadMarker,
		LEDCommandPrefix:         bytes.Clone(p.LEDCommandPrefix),
		LEDExpectedResponse:      bytes.Clone(p.LEDExpectedResponse),
		BeepCommand:              bytes.Clone(p.BeepCommand),
		BeepExpectedResponse:     bytes.Clone(p.BeepExpectedResponse),
	}
}

// Validate checks that no table is empty.
func (p *Protocol) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: protocol is nil", ErrInvalidParameter)
	}
	tables := []struct {
		name string
		data []byte
	}{
		{"open port prefix", p.OpenPortPrefix},
		{"open port expected response", p.OpenPortExpectedResponse},
		{"select card command", p.SelectCardCommand},
		{"authenticate prefix", p.AuthCommandPrefix},
		{"authenticate expected response", p.AuthExpectedResponse},
		{"read card command", p.ReadCardCommand},
		{"LED prefix", p.LEDCommandPrefix},
		{"LED expected response", p.LEDExpectedResponse},
		{"beep command", p.BeepCommand},
		{"beep expected response", p.BeepExpectedResponse},
	}
	for _, tbl := range tables {
		if len(tbl.data) == 0 {
			return fmt.Errorf("%w: %s is empty", ErrInvalidParameter, tbl.name)
		}
	}
	if p.KeyModeA == p.KeyModeB {
		return fmt.Errorf("%w: key modes A and B share code 0x%02X", ErrInvalidParameter, p.KeyModeA)
	}
	return nil
}
