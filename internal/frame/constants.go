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

// Header bytes that open every frame in both directions.
const (
	Header1 = 0xAA
	Header2 = 0xBB
)

// Field offsets within a frame.
const (
	LengthOffset = 2 // little-endian, counts everything after itself
	NodeOffset   = 4
	CodeOffset   = 6
	BodyOffset   = 8
)

// Frame size limits
const (
	// MinFrameLength is header, length, node, code and checksum with no body.
	MinFrameLength = 9
	// MaxFrameLength bounds what Split will wait for before resyncing.
	MaxFrameLength = 64
)
