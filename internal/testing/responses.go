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

import "github.com/ZaparooProject/go-mfreader/internal/frame"

// Command codes as they appear at offsets 6 and 7 of a frame.
var (
	CodeOpenPort = [2]byte{0x01, 0x01}
	CodeSelect   = [2]byte{0x01, 0x02}
	CodeAuth     = [2]byte{0x07, 0x02}
	CodeRead     = [2]byte{0x08, 0x02}
	CodeLED      = [2]byte{0x07, 0x01}
	CodeBeep     = [2]byte{0x06, 0x01}
)

// Status bytes the virtual reader answers with.
const (
	StatusOK         byte = 0x00
	StatusNoCard     byte = 0x14
	StatusAuthFailed byte = 0x15
	StatusReadFailed byte = 0x16
	StatusBadCommand byte = 0x01
)

// Frame builds a reply: AA BB | LEN(2, LE) | 00 00 | code | status | data | XOR.
func Frame(code [2]byte, status byte, data []byte) []byte {
	return frame.Build(code, append([]byte{status}, data...))
}

// BuildOpenPortResponse is the handshake acknowledgement.
func BuildOpenPortResponse() []byte {
	return Frame(CodeOpenPort, StatusOK, nil)
}

// BuildSelectResponse reports a card with uid.
func BuildSelectResponse(uid []byte) []byte {
	return Frame(CodeSelect, StatusOK, uid)
}

// BuildNoCardResponse reports an empty field.
func BuildNoCardResponse() []byte {
	return Frame(CodeSelect, StatusNoCard, nil)
}

// BuildAuthResponse acknowledges or rejects an authentication.
func BuildAuthResponse(ok bool) []byte {
	if ok {
		return Frame(CodeAuth, StatusOK, nil)
	}
	return Frame(CodeAuth, StatusAuthFailed, nil)
}

// BuildReadResponse carries a 16-byte block.
func BuildReadResponse(block []byte) []byte {
	return Frame(CodeRead, StatusOK, block)
}

// BuildReadErrorResponse reports a failed block read.
func BuildReadErrorResponse() []byte {
	return Frame(CodeRead, StatusReadFailed, nil)
}

// BuildAck acknowledges code with no data, as for LED and beep.
func BuildAck(code [2]byte) []byte {
	return Frame(code, StatusOK, nil)
}

// BuildErrorResponse rejects code with status.
func BuildErrorResponse(code [2]byte, status byte) []byte {
	return Frame(code, status, nil)
}
