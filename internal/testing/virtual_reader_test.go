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
	"testing"
	"time"
)

// collect subscribes to v and returns a function yielding everything
// delivered so far once pending replies have landed.
func collect(v *VirtualReader) func() []byte {
	var mu sync.Mutex
	var buf []byte
	v.Subscribe(func(chunk []byte) {
		mu.Lock()
		buf = append(buf, chunk...)
		mu.Unlock()
	})
	return func() []byte {
		v.Wait()
		mu.Lock()
		defer mu.Unlock()
		out := append([]byte(nil), buf...)
		buf = nil
		return out
	}
}

var (
	openPort115200 = []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x01, 0x01, 0x07, 0x07}
	selectCmd      = []byte{0xAA, 0xBB, 0x05, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03}
	readCmd        = []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x08, 0x02, 0x04, 0x0E}
	beepCmd        = []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x06, 0x01, 0x0A, 0x0D}
)

func authCmd(key []byte, mode byte) []byte {
	cmd := []byte{0xAA, 0xBB, 0x0D, 0x00, 0x00, 0x00, 0x07, 0x02, 0x04}
	cmd = append(cmd, key...)
	return append(cmd, mode)
}

func TestFrame_KnownResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"open port", BuildOpenPortResponse(), []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x01, 0x01, 0x00, 0x00}},
		{"auth ok", BuildAuthResponse(true), []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x07, 0x02, 0x00, 0x05}},
		{"led", BuildAck(CodeLED), []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x07, 0x01, 0x00, 0x06}},
		{"beep", BuildAck(CodeBeep), []byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x06, 0x01, 0x00, 0x07}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !bytes.Equal(tt.got, tt.want) {
				t.Errorf("got %X, want %X", tt.got, tt.want)
			}
		})
	}
}

func TestFrame_Markers(t *testing.T) {
	t.Parallel()

	if got := BuildSelectResponse(TestMIFARE1KUID)[2]; got != 0x0A {
		t.Errorf("select length byte = %#02x, want 0x0A", got)
	}
	if got := BuildReadResponse(make([]byte, BlockSize))[2]; got != 0x16 {
		t.Errorf("read length byte = %#02x, want 0x16", got)
	}
	if got := BuildNoCardResponse()[2]; got == 0x0A {
		t.Error("no-card response must not carry the select marker")
	}
}

func TestVirtualReader_Handshake(t *testing.T) {
	t.Parallel()

	v := NewVirtualReader()
	if err := v.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	read := collect(v)

	if err := v.Write(openPort115200); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := read(); !bytes.Equal(got, BuildOpenPortResponse()) {
		t.Errorf("got %X, want %X", got, BuildOpenPortResponse())
	}
	state := v.GetState()
	if !state.Handshake || state.BaudCode != 0x07 || state.Opens != 1 {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestVirtualReader_SelectAuthRead(t *testing.T) {
	t.Parallel()

	v := NewVirtualReader()
	card := NewVirtualMIFARE1K(nil)
	block := bytes.Repeat([]byte{0x5A}, BlockSize)
	card.SetBlock(4, block)
	v.SetCard(card)
	read := collect(v)

	_ = v.Write(selectCmd)
	if got := read(); !bytes.Equal(got, BuildSelectResponse(TestMIFARE1KUID)) {
		t.Fatalf("select answered %X", got)
	}

	_ = v.Write(readCmd)
	if got := read(); !bytes.Equal(got, BuildReadErrorResponse()) {
		t.Fatalf("read before auth answered %X", got)
	}

	_ = v.Write(authCmd(FactoryKey, 0x60))
	if got := read(); !bytes.Equal(got, BuildAuthResponse(true)) {
		t.Fatalf("auth answered %X", got)
	}

	_ = v.Write(readCmd)
	if got := read(); !bytes.Equal(got, BuildReadResponse(block)) {
		t.Fatalf("read answered %X", got)
	}
}

func TestVirtualReader_WrongKey(t *testing.T) {
	t.Parallel()

	v := NewVirtualReader()
	card := NewVirtualMIFARE1K(nil)
	card.SetSectorKey(1, true, []byte{1, 2, 3, 4, 5, 6})
	v.SetCard(card)
	read := collect(v)

	_ = v.Write(authCmd(FactoryKey, 0x61))
	if got := read(); !bytes.Equal(got, BuildAuthResponse(false)) {
		t.Errorf("key B with factory key answered %X", got)
	}
	_ = v.Write(authCmd([]byte{1, 2, 3, 4, 5, 6}, 0x61))
	if got := read(); !bytes.Equal(got, BuildAuthResponse(true)) {
		t.Errorf("key B with custom key answered %X", got)
	}
}

func TestVirtualReader_BatchedWriteAnswersEachFrame(t *testing.T) {
	t.Parallel()

	v := NewVirtualReader()
	v.SetCard(NewVirtualMIFARE1K(nil))
	read := collect(v)

	batch := append(append([]byte(nil), selectCmd...), beepCmd...)
	_ = v.Write(batch)
	want := append(BuildSelectResponse(TestMIFARE1KUID), BuildAck(CodeBeep)...)
	if got := read(); !bytes.Equal(got, want) {
		t.Errorf("batched write answered %X, want %X", got, want)
	}
	if n := v.GetState().Beeps; n != 1 {
		t.Errorf("Beeps = %d, want 1", n)
	}

	// a trailing partial frame leaves the write answered by its leading code
	_ = v.Write(append(append([]byte(nil), selectCmd...), beepCmd[:4]...))
	if got := read(); !bytes.Equal(got, BuildSelectResponse(TestMIFARE1KUID)) {
		t.Errorf("partial batch answered %X", got)
	}
	if n := v.GetState().Beeps; n != 1 {
		t.Errorf("Beeps after partial batch = %d, want 1", n)
	}
}

func TestVirtualReader_EmptyField(t *testing.T) {
	t.Parallel()

	v := NewVirtualReader()
	read := collect(v)
	_ = v.Write(selectCmd)
	if got := read(); !bytes.Equal(got, BuildNoCardResponse()) {
		t.Errorf("got %X, want no-card response", got)
	}
}

func TestVirtualReader_ScriptAndSilence(t *testing.T) {
	t.Parallel()

	v := NewVirtualReader()
	read := collect(v)
	v.Silence(CodeOpenPort, 2)
	v.Script(CodeBeep, []byte{0x01, 0x02})

	for range 2 {
		_ = v.Write(openPort115200)
		if got := read(); len(got) != 0 {
			t.Fatalf("silenced command answered %X", got)
		}
	}
	_ = v.Write(openPort115200)
	if got := read(); !bytes.Equal(got, BuildOpenPortResponse()) {
		t.Errorf("third handshake answered %X", got)
	}

	_ = v.Write(beepCmd)
	if got := read(); !bytes.Equal(got, []byte{0x01, 0x02}) {
		t.Errorf("scripted beep answered %X", got)
	}
	_ = v.Write(beepCmd)
	if got := read(); !bytes.Equal(got, BuildAck(CodeBeep)) {
		t.Errorf("beep after script answered %X", got)
	}
	if n := v.WriteCount(CodeOpenPort); n != 3 {
		t.Errorf("WriteCount(open) = %d, want 3", n)
	}
	if n := v.GetState().Beeps; n != 1 {
		t.Errorf("Beeps = %d, want 1", n)
	}
}

func TestVirtualReader_JitteredDelivery(t *testing.T) {
	t.Parallel()

	v := NewVirtualReader()
	v.SetJitter(JitterConfig{FragmentReads: true, FragmentMinBytes: 1, Seed: 99})
	var chunks int
	var mu sync.Mutex
	v.Subscribe(func([]byte) {
		mu.Lock()
		chunks++
		mu.Unlock()
	})
	read := collect(v)

	_ = v.Write(openPort115200)
	if got := read(); !bytes.Equal(got, BuildOpenPortResponse()) {
		t.Fatalf("reassembled %X", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if chunks < 1 {
		t.Error("no chunks delivered")
	}
}

func TestVirtualReader_FailuresAndClose(t *testing.T) {
	t.Parallel()

	v := NewVirtualReader()
	boom := errors.New("boom")

	v.FailOpens(1, boom)
	if err := v.Open(); !errors.Is(err, boom) {
		t.Fatalf("Open = %v, want boom", err)
	}
	if err := v.Open(); err != nil {
		t.Fatalf("second Open = %v", err)
	}

	v.FailWrites(boom)
	if err := v.Write(beepCmd); !errors.Is(err, boom) {
		t.Errorf("Write = %v, want boom", err)
	}
	v.FailWrites(nil)

	read := collect(v)
	v.SetResponseDelay(20 * time.Millisecond)
	_ = v.Write(beepCmd)
	_ = v.Close()
	if got := read(); len(got) != 0 {
		t.Errorf("closed reader delivered %X", got)
	}
	if err := v.Write(beepCmd); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Write after Close = %v", err)
	}
}

func TestVirtualReader_Unsubscribe(t *testing.T) {
	t.Parallel()

	v := NewVirtualReader()
	unsubscribe := v.Subscribe(func([]byte) {})
	if v.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d", v.Subscribers())
	}
	unsubscribe()
	if v.Subscribers() != 0 {
		t.Errorf("Subscribers after unsubscribe = %d", v.Subscribers())
	}
}
