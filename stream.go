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

// Stream is an open byte-stream link to the reader. Implementations deliver
// incoming bytes asynchronously, in arrival order, to every subscriber.
//
// The transport/uart package provides a serial-port implementation.
type Stream interface {
	// Write hands p to the link. It does not wait for a response.
	Write(p []byte) error

	// Subscribe registers fn for every chunk of bytes that arrives until the
	// returned function is called. fn must not retain the chunk.
	Subscribe(fn func(chunk []byte)) (unsubscribe func())

	// Close releases the link. Calling Close more than once is allowed.
	Close() error
}

// StreamFactory opens a Stream on path at the given speed.
type StreamFactory func(path string, baud BaudRate) (Stream, error)
