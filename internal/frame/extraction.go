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
	"bytes"
	"fmt"
)

// Frame is a decoded AA BB frame.
type Frame struct {
	// Body is everything between the command code and the checksum. Replies
	// carry a status byte first; commands start directly with parameters.
	Body []byte
	Node [2]byte
	Code [2]byte
}

// Status returns the first body byte, which replies use as a status code.
func (f Frame) Status() (byte, bool) {
	if len(f.Body) == 0 {
		return 0, false
	}
	return f.Body[0], true
}

// Payload returns the body after the status byte.
func (f Frame) Payload() []byte {
	if len(f.Body) < 2 {
		return nil
	}
	return f.Body[1:]
}

// Build encodes a frame addressed to node 00 00.
func Build(code [2]byte, body []byte) []byte {
	length := 2 + 2 + len(body) + 1
	buf := make([]byte, 0, LengthOffset+2+length)
	buf = append(buf, Header1, Header2, byte(length), byte(length>>8), 0x00, 0x00)
	buf = append(buf, code[0], code[1])
	buf = append(buf, body...)
	return append(buf, Checksum(buf[NodeOffset:]))
}

// Parse decodes and validates one complete frame.
func Parse(buf []byte) (Frame, error) {
	if err := ValidateFrame(buf); err != nil {
		return Frame{}, err
	}
	return Frame{
		Node: [2]byte{buf[NodeOffset], buf[NodeOffset+1]},
		Code: [2]byte{buf[CodeOffset], buf[CodeOffset+1]},
		Body: bytes.Clone(buf[BodyOffset : len(buf)-1]),
	}, nil
}

// Code returns the command code of buf without validating the rest.
func Code(buf []byte) ([2]byte, bool) {
	if len(buf) < BodyOffset || buf[0] != Header1 || buf[1] != Header2 {
		return [2]byte{}, false
	}
	return [2]byte{buf[CodeOffset], buf[CodeOffset+1]}, true
}

// Split extracts complete frames from the front of a stream buffer. Bytes
// before a header are skipped. rest holds an incomplete trailing frame.
func Split(buf []byte) (frames []Frame, rest []byte) {
	for len(buf) > 0 {
		start := bytes.Index(buf, []byte{Header1, Header2})
		if start < 0 {
			// keep a trailing AA in case BB follows
			if buf[len(buf)-1] == Header1 {
				return frames, buf[len(buf)-1:]
			}
			return frames, nil
		}
		buf = buf[start:]

		total, err := DeclaredLength(buf)
		if err != nil {
			return frames, buf
		}
		if total < MinFrameLength || total > MaxFrameLength {
			buf = buf[1:]
			continue
		}
		if len(buf) < total {
			return frames, buf
		}
		f, err := Parse(buf[:total])
		if err != nil {
			buf = buf[1:]
			continue
		}
		frames = append(frames, f)
		buf = buf[total:]
	}
	return frames, nil
}

// Describe renders buf for error messages: decoded fields when it parses,
// raw hex otherwise.
func Describe(buf []byte) string {
	if len(buf) == 0 {
		return "<empty>"
	}
	f, err := Parse(buf)
	if err != nil {
		return fmt.Sprintf("% X (%v)", buf, err)
	}
	if status, ok := f.Status(); ok {
		return fmt.Sprintf("code %02X %02X status %02X data [% X]", f.Code[0], f.Code[1], status, f.Payload())
	}
	return fmt.Sprintf("code %02X %02X", f.Code[0], f.Code[1])
}
