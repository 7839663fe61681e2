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
	"encoding/hex"
	"fmt"
	"strings"
)

// BaudRate is a serial link speed supported by the reader.
type BaudRate int

const (
	Baud9600   BaudRate = 9600
	Baud19200  BaudRate = 19200
	Baud57600  BaudRate = 57600
	Baud115200 BaudRate = 115200
)

// SupportedBaudRates lists the four speeds the reader accepts, slowest first.
var SupportedBaudRates = []BaudRate{Baud9600, Baud19200, Baud57600, Baud115200}

// Valid reports whether b is one of the supported speeds.
func (b BaudRate) Valid() bool {
	switch b {
	case Baud9600, Baud19200, Baud57600, Baud115200:
		return true
	default:
		return false
	}
}

// BaudCode returns the parameter/checksum pair for the open-port command.
// Unsupported rates get the 9600 pair.
func BaudCode(rate BaudRate) [2]byte {
	switch rate {
	case Baud9600:
		return [2]byte{0x01, 0x01}
	case Baud19200:
		return [2]byte{0x03, 0x03}
	case Baud57600:
		return [2]byte{0x06, 0x06}
	case Baud115200:
		return [2]byte{0x07, 0x07}
	default:
		return [2]byte{0x01, 0x01}
	}
}

// Color is an LED state.
type Color string

const (
	ColorGreen  Color = "GREEN"
	ColorRed    Color = "RED"
	ColorYellow Color = "YELLOW"
	ColorOff    Color = "OFF"
)

// ParseColor accepts a color name in any case.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case ColorGreen, ColorRed, ColorYellow, ColorOff:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown color %q", ErrInvalidParameter, s)
	}
}

// ColorCode returns the parameter/checksum pair for the LED command.
// Anything that is not green, red or yellow switches the LED off.
func ColorCode(color Color) [2]byte {
	switch color {
	case ColorGreen:
		return [2]byte{0x02, 0x04}
	case ColorRed:
		return [2]byte{0x01, 0x07}
	case ColorYellow:
		return [2]byte{0x03, 0x05}
	default:
		return [2]byte{0x00, 0x06}
	}
}

// KeyMode selects the sector key slot used for authentication.
type KeyMode string

const (
	KeyA KeyMode = "A"
	KeyB KeyMode = "B"
)

// ParseKeyMode accepts "A" or "B" in any case.
func ParseKeyMode(s string) (KeyMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return KeyA, nil
	case "B":
		return KeyB, nil
	default:
		return "", fmt.Errorf("%w: unknown key mode %q", ErrInvalidParameter, s)
	}
}

// KeyModeCode returns the mode byte for the authenticate command. Modes other
// than B use the A code.
func (p *Protocol) KeyModeCode(mode KeyMode) byte {
	if mode == KeyB {
		return p.KeyModeB
	}
	return p.KeyModeA
}

// KeyLength is the size of a MIFARE Classic sector key.
const KeyLength = 6

// DefaultKey is the factory transport key.
const DefaultKey = HexKey("ffffffffffff")

// Key is an authentication key in one of its accepted encodings.
type Key interface {
	keyBytes() ([]byte, error)
}

// HexKey is a key written as 12 hex characters.
type HexKey string

func (k HexKey) keyBytes() ([]byte, error) {
	b, err := hex.DecodeString(string(k))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFormat, err)
	}
	return b, nil
}

// RawKey is a key as raw bytes.
type RawKey []byte

func (k RawKey) keyBytes() ([]byte, error) {
	return append([]byte(nil), k...), nil
}

// NormalizeKey decodes key and checks it is exactly six bytes.
func NormalizeKey(key Key) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: key is nil", ErrKeyFormat)
	}
	b, err := key.keyBytes()
	if err != nil {
		return nil, err
	}
	if len(b) != KeyLength {
		return nil, fmt.Errorf("%w: key must be exactly %d bytes, got %d", ErrKeyFormat, KeyLength, len(b))
	}
	return b, nil
}

// CommandKind identifies a command family.
type CommandKind int

const (
	CmdOpenPort CommandKind = iota
	CmdSelectCard
	CmdAuthenticate
	CmdReadCard
	CmdLED
	CmdBeep
)

func (k CommandKind) String() string {
	switch k {
	case CmdOpenPort:
		return "open_port"
	case CmdSelectCard:
		return "select_card"
	case CmdAuthenticate:
		return "authenticate"
	case CmdReadCard:
		return "read_card"
	case CmdLED:
		return "led"
	case CmdBeep:
		return "beep"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// CommandParams carries the per-command parameters for Encode. Fields that a
// command does not use are ignored.
type CommandParams struct {
	Key      []byte
	BaudRate BaudRate
	Color    Color
	KeyMode  KeyMode
}

// Encode builds the outbound bytes for kind. The key must already be
// normalized; Encode never validates it.
func (p *Protocol) Encode(kind CommandKind, params CommandParams) []byte {
	switch kind {
	case CmdOpenPort:
		return p.OpenPortCommand(params.BaudRate)
	case CmdSelectCard:
		return concat(p.SelectCardCommand)
	case CmdAuthenticate:
		return p.AuthCommand(params.Key, params.KeyMode)
	case CmdReadCard:
		return concat(p.ReadCardCommand)
	case CmdLED:
		return p.LEDCommand(params.Color)
	case CmdBeep:
		return concat(p.BeepCommand)
	default:
		return nil
	}
}

// OpenPortCommand builds the open-port command for rate.
func (p *Protocol) OpenPortCommand(rate BaudRate) []byte {
	code := BaudCode(rate)
	return concat(p.OpenPortPrefix, code[:])
}

// LEDCommand builds the LED command for color.
func (p *Protocol) LEDCommand(color Color) []byte {
	code := ColorCode(color)
	return concat(p.LEDCommandPrefix, code[:])
}

// AuthCommand builds prefix ++ key ++ mode.
func (p *Protocol) AuthCommand(key []byte, mode KeyMode) []byte {
	return concat(p.AuthCommandPrefix, key, []byte{p.KeyModeCode(mode)})
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, part := range parts {
		n += len(part)
	}
	out := make([]byte, 0, n)
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}
