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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaudCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rate  BaudRate
		want  [2]byte
		valid bool
	}{
		{name: "9600", rate: Baud9600, want: [2]byte{0x01, 0x01}, valid: true},
		{name: "19200", rate: Baud19200, want: [2]byte{0x03, 0x03}, valid: true},
		{name: "57600", rate: Baud57600, want: [2]byte{0x06, 0x06}, valid: true},
		{name: "115200", rate: Baud115200, want: [2]byte{0x07, 0x07}, valid: true},
		{name: "38400 falls back", rate: 38400, want: [2]byte{0x01, 0x01}},
		{name: "zero falls back", rate: 0, want: [2]byte{0x01, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, BaudCode(tt.rate))
			assert.Equal(t, tt.valid, tt.rate.Valid())
		})
	}
}

func TestColorCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, [2]byte{0x02, 0x04}, ColorCode(ColorGreen))
	assert.Equal(t, [2]byte{0x01, 0x07}, ColorCode(ColorRed))
	assert.Equal(t, [2]byte{0x03, 0x05}, ColorCode(ColorYellow))
	assert.Equal(t, [2]byte{0x00, 0x06}, ColorCode(ColorOff))
	assert.Equal(t, [2]byte{0x00, 0x06}, ColorCode(""))
}

func TestParseColor(t *testing.T) {
	t.Parallel()

	c, err := ParseColor(" green ")
	require.NoError(t, err)
	assert.Equal(t, ColorGreen, c)

	c, err = ParseColor("Off")
	require.NoError(t, err)
	assert.Equal(t, ColorOff, c)

	_, err = ParseColor("purple")
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestParseKeyMode(t *testing.T) {
	t.Parallel()

	m, err := ParseKeyMode("b")
	require.NoError(t, err)
	assert.Equal(t, KeyB, m)

	_, err = ParseKeyMode("AB")
	require.ErrorIs(t, err, ErrInvalidParameter)

	p := DefaultProtocol()
	assert.Equal(t, byte(0x60), p.KeyModeCode(KeyA))
	assert.Equal(t, byte(0x61), p.KeyModeCode(KeyB))
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	b, err := NormalizeKey(HexKey("A0a1A2a3A4a5"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}, b)

	raw := RawKey{1, 2, 3, 4, 5, 6}
	b, err = NormalizeKey(raw)
	require.NoError(t, err)
	b[0] = 0xFF
	assert.Equal(t, byte(1), raw[0], "NormalizeKey must copy raw keys")

	for _, bad := range []Key{HexKey(""), HexKey("FFFFFFFFFFF"), HexKey("FFFFFFFFFFFFFF"), HexKey("GGGGGGGGGGGG"), RawKey{}, nil} {
		_, err := NormalizeKey(bad)
		require.ErrorIs(t, err, ErrKeyFormat, "key %v", bad)
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	p := DefaultProtocol()
	key := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

	assert.Equal(t,
		[]byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x01, 0x01, 0x03, 0x03},
		p.Encode(CmdOpenPort, CommandParams{BaudRate: Baud19200}))
	assert.Equal(t, p.SelectCardCommand, p.Encode(CmdSelectCard, CommandParams{}))
	assert.Equal(t,
		[]byte{0xAA, 0xBB, 0x0D, 0x00, 0x00, 0x00, 0x07, 0x02, 0x04, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x61},
		p.Encode(CmdAuthenticate, CommandParams{Key: key, KeyMode: KeyB}))
	assert.Equal(t, p.ReadCardCommand, p.Encode(CmdReadCard, CommandParams{}))
	assert.Equal(t,
		[]byte{0xAA, 0xBB, 0x06, 0x00, 0x00, 0x00, 0x07, 0x01, 0x03, 0x05},
		p.Encode(CmdLED, CommandParams{Color: ColorYellow}))
	assert.Equal(t, p.BeepCommand, p.Encode(CmdBeep, CommandParams{}))
	assert.Nil(t, p.Encode(CommandKind(42), CommandParams{}))

	out := p.Encode(CmdSelectCard, CommandParams{})
	out[0] = 0x00
	assert.Equal(t, byte(0xAA), p.SelectCardCommand[0], "Encode must not alias the tables")
}

func TestCommandKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "open_port", CmdOpenPort.String())
	assert.Equal(t, "authenticate", CmdAuthenticate.String())
	assert.Equal(t, "beep", CmdBeep.String())
	assert.Equal(t, "command(42)", CommandKind(42).String())
}
