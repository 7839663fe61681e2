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

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/ZaparooProject/go-mfreader/internal/frame"
	"github.com/ZaparooProject/go-mfreader/internal/syncutil"
)

// ErrStreamClosed is returned by Write after Close.
var ErrStreamClosed = errors.New("virtual reader closed")

// ReaderState is a snapshot of the simulated reader.
type ReaderState struct {
	Beeps     int
	Opens     int
	LEDCode   byte
	BaudCode  byte
	Closed    bool
	Handshake bool
}

// VirtualReader simulates the card reader at the wire level. It satisfies the
// reader's byte-stream interface (Write, Subscribe, Close): every complete
// command written to it is answered asynchronously through the subscribers,
// the way a serial read loop would deliver it.
//
// Behaviour can be overridden per command code: scripted replies take
// precedence over the simulation, and a nil scripted reply means silence.
type VirtualReader struct {
	subscribers map[int]func([]byte)
	scripts     map[[2]byte][][]byte
	card        *VirtualCard
	jitter      *Jitter
	writeErr    error
	openErr     error
	writes      [][]byte
	state       ReaderState
	delay       time.Duration
	mu          syncutil.Mutex
	nextID      int
	openFails   int
	pending     sync.WaitGroup
}

// NewVirtualReader creates a reader with an empty field.
func NewVirtualReader() *VirtualReader {
	return &VirtualReader{
		subscribers: make(map[int]func([]byte)),
		scripts:     make(map[[2]byte][][]byte),
	}
}

// SetCard places card in the field (nil empties it).
func (v *VirtualReader) SetCard(card *VirtualCard) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.card = card
}

// Script queues replies for commands with code. Each matching write consumes
// one reply; once the queue is empty the simulation answers again. A nil
// reply keeps the reader silent for that write.
func (v *VirtualReader) Script(code [2]byte, replies ...[]byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scripts[code] = append(v.scripts[code], replies...)
}

// Silence makes the next n commands with code go unanswered.
func (v *VirtualReader) Silence(code [2]byte, n int) {
	replies := make([][]byte, n)
	v.Script(code, replies...)
}

// SetResponseDelay delays every reply by d.
func (v *VirtualReader) SetResponseDelay(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.delay = d
}

// SetJitter delivers replies in random pieces.
func (v *VirtualReader) SetJitter(config JitterConfig) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.jitter = NewJitter(config)
}

// FailWrites makes every Write return err (nil restores normal writes).
func (v *VirtualReader) FailWrites(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.writeErr = err
}

// FailOpens makes the next n calls to Open return err.
func (v *VirtualReader) FailOpens(n int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.openFails = n
	v.openErr = err
}

// Open records that a host opened the link. Stream factories in tests call
// it before handing the reader out.
func (v *VirtualReader) Open() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.openFails > 0 {
		v.openFails--
		return v.openErr
	}
	v.state.Opens++
	v.state.Closed = false
	return nil
}

// Write accepts one command from the host.
func (v *VirtualReader) Write(p []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.Closed {
		return ErrStreamClosed
	}
	if v.writeErr != nil {
		return v.writeErr
	}
	cmd := bytes.Clone(p)
	v.writes = append(v.writes, cmd)

	reply := v.respondAll(cmd)
	if reply == nil {
		return nil
	}
	v.pending.Add(1)
	go v.deliver(reply, v.delay, v.jitter)
	return nil
}

// Subscribe registers fn for delivered bytes.
func (v *VirtualReader) Subscribe(fn func([]byte)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.subscribers[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.subscribers, id)
	}
}

// Close stops deliveries. It may be called more than once.
func (v *VirtualReader) Close() error {
	v.mu.Lock()
	v.state.Closed = true
	v.state.Handshake = false
	v.mu.Unlock()
	return nil
}

// Inject delivers data to subscribers as if the reader had sent it unasked.
func (v *VirtualReader) Inject(data []byte) {
	v.mu.Lock()
	v.pending.Add(1)
	v.mu.Unlock()
	v.deliver(bytes.Clone(data), 0, nil)
}

// Wait blocks until every reply in flight has been delivered or dropped.
func (v *VirtualReader) Wait() {
	v.pending.Wait()
}

// Writes returns a copy of every command written so far.
func (v *VirtualReader) Writes() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.writes))
	for i, w := range v.writes {
		out[i] = bytes.Clone(w)
	}
	return out
}

// WriteCount counts the commands written with code.
func (v *VirtualReader) WriteCount(code [2]byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, w := range v.writes {
		if c, ok := frame.Code(w); ok && c == code {
			n++
		}
	}
	return n
}

// Subscribers returns the number of active subscriptions.
func (v *VirtualReader) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subscribers)
}

// GetState returns the current simulator state.
func (v *VirtualReader) GetState() ReaderState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *VirtualReader) deliver(reply []byte, delay time.Duration, jitter *Jitter) {
	defer v.pending.Done()
	if delay > 0 {
		time.Sleep(delay)
	}
	chunks := [][]byte{reply}
	if jitter != nil {
		chunks = jitter.Split(reply)
	}
	for i, chunk := range chunks {
		if jitter != nil && i > 0 {
			time.Sleep(jitter.Latency())
		}
		v.mu.Lock()
		if v.state.Closed {
			v.mu.Unlock()
			return
		}
		subs := make([]func([]byte), 0, len(v.subscribers))
		for _, fn := range v.subscribers {
			subs = append(subs, fn)
		}
		v.mu.Unlock()
		for _, fn := range subs {
			fn(chunk)
		}
	}
}

// respondAll answers each frame of a batched write in order. Writes that
// are not a sequence of valid frames, such as the unchecksummed auth
// command, are answered as a whole.
func (v *VirtualReader) respondAll(cmd []byte) []byte {
	frames, rest := frame.Split(cmd)
	if len(frames) < 2 || len(rest) > 0 {
		return v.respond(cmd)
	}
	var reply []byte
	for _, f := range frames {
		reply = append(reply, v.respond(frame.Build(f.Code, f.Body))...)
	}
	return reply
}

// respond produces the reply for cmd. Called with mu held.
//
//nolint:gocyclo,cyclop,revive // One branch per command code
func (v *VirtualReader) respond(cmd []byte) []byte {
	code, ok := frame.Code(cmd)
	if !ok {
		return nil
	}
	if queue := v.scripts[code]; len(queue) > 0 {
		v.scripts[code] = queue[1:]
		return queue[0]
	}

	switch code {
	case CodeOpenPort:
		if len(cmd) < 9 {
			return BuildErrorResponse(code, StatusBadCommand)
		}
		v.state.BaudCode = cmd[8]
		v.state.Handshake = true
		return BuildOpenPortResponse()
	case CodeSelect:
		if v.card == nil || !v.card.Present {
			return BuildNoCardResponse()
		}
		v.card.ResetAuthentication()
		return BuildSelectResponse(v.card.UID)
	case CodeAuth:
		// prefix(9) | key(6) | mode(1)
		if len(cmd) != 16 || v.card == nil {
			return BuildAuthResponse(false)
		}
		keyB := cmd[15] == 0x61
		return BuildAuthResponse(v.card.Authenticate(int(cmd[8]), keyB, cmd[9:15]))
	case CodeRead:
		if len(cmd) < 9 || v.card == nil {
			return BuildReadErrorResponse()
		}
		data, err := v.card.ReadBlock(int(cmd[8]))
		if err != nil {
			return BuildReadErrorResponse()
		}
		return BuildReadResponse(data)
	case CodeLED:
		if len(cmd) < 9 {
			return BuildErrorResponse(code, StatusBadCommand)
		}
		v.state.LEDCode = cmd[8]
		return BuildAck(code)
	case CodeBeep:
		v.state.Beeps++
		return BuildAck(code)
	default:
		return BuildErrorResponse(code, StatusBadCommand)
	}
}
