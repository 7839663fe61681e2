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


package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist returns USB devices that enumerate as serial ports but are
// never card readers and should not receive the handshake.
// Format: VID:PID in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{
		"1D50:6089", // HackRF One
		"0483:5740", // STM32 virtual COM (flight controllers)
		"2E8A:0005", // Raspberry Pi Pico MicroPython REPL
	}
}

// IsBlocked checks if a USB device is in the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = NormalizeVIDPID(vidpid)
	if vidpid == "" {
		return false
	}
	for _, blocked := range blocklist {
		if NormalizeVIDPID(blocked) == vidpid {
			return true
		}
	}
	return false
}

// NormalizeVIDPID converts the descriptor spellings found in udev output,
// Windows hardware ids and config files to "VVVV:PPPP", or "" when s does not
// name both ids:
//
//	"VID:1A86 PID:7523", "USB\VID_1A86&PID_7523", "vendor=1a86 product=7523", "1a86:7523"
func NormalizeVIDPID(s string) string {
	upper := strings.ToUpper(strings.TrimSpace(s))

	vid := valueAfter(upper, "VID:", "VID_", "VID=", "VENDOR=")
	pid := valueAfter(upper, "PID:", "PID_", "PID=", "PRODUCT=")
	if vid != "" && pid != "" {
		return vid + ":" + pid
	}

	if parts := strings.Split(upper, ":"); len(parts) == 2 && isHex(parts[0]) && isHex(parts[1]) {
		return parts[0] + ":" + parts[1]
	}
	return ""
}

// valueAfter returns the hex run following the first marker found in s.
func valueAfter(s string, markers ...string) string {
	for _, marker := range markers {
		if idx := strings.Index(s, marker); idx >= 0 {
			return extractHex(s[idx+len(marker):])
		}
	}
	return ""
}

// extractHex extracts the leading run of hex digits from an uppercase string.
func extractHex(s string) string {
	end := 0
	for end < len(s) && strings.IndexByte("0123456789ABCDEF", s[end]) >= 0 {
		end++
	}
	return s[:end]
}

func isHex(s string) bool {
	return s != "" && extractHex(strings.ToUpper(s)) == strings.ToUpper(s)
}

// IsPathIgnored checks if a device path should be ignored. Paths are compared
// after cleaning and case folding, so "COM3" matches "com3".
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath != "" && normalizedPath(ignorePath) == device {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
