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


package frame

import (
	"errors"
	"fmt"
)

// Frame validation errors
var (
	ErrShortFrame     = errors.New("frame too short")
	ErrBadHeader      = errors.New("frame header is not AA BB")
	ErrLengthMismatch = errors.New("frame length field does not match")
	ErrBadChecksum    = errors.New("frame checksum mismatch")
)

// DeclaredLength returns the total frame size announced by the length field
// at the start of buf.
func DeclaredLength(buf []byte) (int, error) {
	if len(buf) < LengthOffset+2 {
		return 0, ErrShortFrame
	}
	if buf[0] != Header1 || buf[1] != Header2 {
		return 0, ErrBadHeader
	}
	n := int(buf[LengthOffset]) | int(buf[LengthOffset+1])<<8
	return LengthOffset + 2 + n, nil
}

// ValidateFrame checks header, length field and checksum of a complete frame.
func ValidateFrame(buf []byte) error {
	if len(buf) < MinFrameLength {
		return fmt.Errorf("%w: %d bytes", ErrShortFrame, len(buf))
	}
	total, err := DeclaredLength(buf)
	if err != nil {
		return err
	}
	if total != len(buf) {
		return fmt.Errorf("%w: declares %d bytes, got %d", ErrLengthMismatch, total, len(buf))
	}
	if !ValidateChecksum(buf) {
		return ErrBadChecksum
	}
	return nil
}

// ValidateChecksum reports whether the last byte of buf is the XOR of
// everything from the node id on.
func ValidateChecksum(buf []byte) bool {
	if len(buf) < NodeOffset+1 {
		return false
	}
	end := len(buf) - 1
	return Checksum(buf[NodeOffset:end]) == buf[end]
}
