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
	"encoding/hex"
	"errors"
	"fmt"
)

// BlockSize is the size of a MIFARE Classic block.
const BlockSize = 16

// Default test UIDs
var (
	TestMIFARE1KUID = []byte{0xDE, 0xAD, 0xBE, 0xEF}
	TestMIFARE4KUID = []byte{0x04, 0xA1, 0xB2, 0xC3}
)

// FactoryKey is the transport key cards ship with.
var FactoryKey = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// VirtualCard is a simulated MIFARE Classic card.
type VirtualCard struct {
	keysA               map[int][]byte
	keysB               map[int][]byte
	UID                 []byte
	Memory              [][]byte
	authenticatedSector int
	Present             bool
}

// NewVirtualMIFARE1K creates a 1K card (64 blocks) with factory keys.
func NewVirtualMIFARE1K(uid []byte) *VirtualCard {
	if uid == nil {
		uid = TestMIFARE1KUID
	}
	return newVirtualCard(uid, 64)
}

// NewVirtualMIFARE4K creates a 4K card (256 blocks) with factory keys.
func NewVirtualMIFARE4K(uid []byte) *VirtualCard {
	if uid == nil {
		uid = TestMIFARE4KUID
	}
	return newVirtualCard(uid, 256)
}

func newVirtualCard(uid []byte, blocks int) *VirtualCard {
	card := &VirtualCard{
		UID:                 bytes.Clone(uid),
		Memory:              make([][]byte, blocks),
		Present:             true,
		authenticatedSector: -1,
		keysA:               make(map[int][]byte),
		keysB:               make(map[int][]byte),
	}
	for i := range card.Memory {
		card.Memory[i] = make([]byte, BlockSize)
	}
	copy(card.Memory[0], uid)
	return card
}

// GetUIDString returns the UID as a hex string
func (v *VirtualCard) GetUIDString() string {
	return hex.EncodeToString(v.UID)
}

// SetSectorKey replaces key A (keyB false) or key B of sector.
func (v *VirtualCard) SetSectorKey(sector int, keyB bool, key []byte) {
	if keyB {
		v.keysB[sector] = bytes.Clone(key)
		return
	}
	v.keysA[sector] = bytes.Clone(key)
}

func (v *VirtualCard) sectorKey(sector int, keyB bool) []byte {
	keys := v.keysA
	if keyB {
		keys = v.keysB
	}
	if key, ok := keys[sector]; ok {
		return key
	}
	return FactoryKey
}

// Authenticate unlocks the sector holding block when key matches.
func (v *VirtualCard) Authenticate(block int, keyB bool, key []byte) bool {
	if !v.Present || block < 0 || block >= len(v.Memory) {
		return false
	}
	sector := v.blockToSector(block)
	if !bytes.Equal(v.sectorKey(sector, keyB), key) {
		v.authenticatedSector = -1
		return false
	}
	v.authenticatedSector = sector
	return true
}

// IsAuthenticated reports whether the sector holding block is unlocked.
func (v *VirtualCard) IsAuthenticated(block int) bool {
	return v.authenticatedSector >= 0 && v.authenticatedSector == v.blockToSector(block)
}

// ResetAuthentication locks every sector again.
func (v *VirtualCard) ResetAuthentication() {
	v.authenticatedSector = -1
}

// ReadBlock reads a block from an authenticated sector.
func (v *VirtualCard) ReadBlock(block int) ([]byte, error) {
	if !v.Present {
		return nil, errors.New("card not present")
	}
	if block < 0 || block >= len(v.Memory) {
		return nil, fmt.Errorf("block %d out of range", block)
	}
	if !v.IsAuthenticated(block) {
		return nil, fmt.Errorf("not authenticated to sector %d (block %d)", v.blockToSector(block), block)
	}
	return bytes.Clone(v.Memory[block]), nil
}

// SetBlock stores data in block without authentication, for test setup.
func (v *VirtualCard) SetBlock(block int, data []byte) {
	buf := make([]byte, BlockSize)
	copy(buf, data)
	v.Memory[block] = buf
}

// Insert places the card in the field.
func (v *VirtualCard) Insert() {
	v.Present = true
}

// Remove takes the card out of the field.
func (v *VirtualCard) Remove() {
	v.Present = false
	v.authenticatedSector = -1
}

// blockToSector maps a block number to its sector. The first 32 sectors hold
// 4 blocks each; 4K cards continue with 16-block sectors.
func (*VirtualCard) blockToSector(block int) int {
	if block < 128 {
		return block / 4
	}
	return 32 + (block-128)/16
}
