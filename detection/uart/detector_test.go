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


//nolint:paralleltest // Tests mutate package-level probeDeviceFn and listPortsFn
package uart

import (
	"context"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-mfreader/detection"
	"github.com/ZaparooProject/go-mfreader/transport/uart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubProbe(t *testing.T, ok bool) *[]string {
	t.Helper()
	var probed []string
	orig := probeDeviceFn
	probeDeviceFn = func(_ context.Context, path string, _ *detection.Options) bool {
		probed = append(probed, path)
		return ok
	}
	t.Cleanup(func() { probeDeviceFn = orig })
	return &probed
}

func stubPorts(t *testing.T, ports []uart.PortInfo, err error) {
	t.Helper()
	orig := listPortsFn
	listPortsFn = func() ([]uart.PortInfo, error) { return ports, err }
	t.Cleanup(func() { listPortsFn = orig })
}

func TestProcessPort_SafeMode_FailedProbeDiscardsLikelyDevice(t *testing.T) {
	stubProbe(t, false)

	det := &detector{}
	port := &uart.PortInfo{Path: "/dev/ttyUSB0", VIDPID: "1A86:7523", IsUSB: true}
	opts := &detection.Options{Mode: detection.Safe}

	_, included := det.processPort(context.Background(), port, opts)
	assert.False(t, included, "a likely bridge that does not answer is not a reader")
}

func TestProcessPort_SafeMode_SuccessfulProbeReturnsDevice(t *testing.T) {
	stubProbe(t, true)

	det := &detector{}
	port := &uart.PortInfo{Path: "/dev/ttyUSB0", Product: "USB Serial", VIDPID: "1A86:7523", IsUSB: true}
	opts := &detection.Options{Mode: detection.Safe}

	device, included := det.processPort(context.Background(), port, opts)
	require.True(t, included)
	assert.Equal(t, detection.High, device.Confidence)
	assert.Equal(t, "1A86:7523", device.Metadata["vidpid"])
	assert.Equal(t, "USB Serial", device.Name)
}

func TestProcessPort_SafeMode_SkipsUnlikelyNativePort(t *testing.T) {
	probed := stubProbe(t, true)

	det := &detector{}
	port := &uart.PortInfo{Path: "/dev/ttyS0"}
	_, included := det.processPort(context.Background(), port, &detection.Options{Mode: detection.Safe})

	assert.False(t, included)
	assert.Empty(t, *probed, "safe mode never opens a non-USB port without reader descriptors")
}

func TestProcessPort_PassiveModeNeverProbes(t *testing.T) {
	probed := stubProbe(t, true)

	det := &detector{}
	opts := &detection.Options{Mode: detection.Passive}

	device, included := det.processPort(context.Background(), &uart.PortInfo{Path: "COM3", VIDPID: "10C4:EA60"}, opts)
	require.True(t, included)
	assert.Equal(t, detection.Medium, device.Confidence)

	_, included = det.processPort(context.Background(), &uart.PortInfo{Path: "COM4", VIDPID: "1234:5678"}, opts)
	assert.False(t, included)
	assert.Empty(t, *probed)
}

func TestProcessPort_FullModeProbesEverything(t *testing.T) {
	probed := stubProbe(t, true)

	det := &detector{}
	device, included := det.processPort(context.Background(), &uart.PortInfo{Path: "/dev/ttyS0"},
		&detection.Options{Mode: detection.Full})

	require.True(t, included)
	assert.Equal(t, detection.High, device.Confidence)
	assert.Equal(t, []string{"/dev/ttyS0"}, *probed)
}

func TestDetect_FiltersBlockedAndIgnored(t *testing.T) {
	probed := stubProbe(t, true)
	stubPorts(t, []uart.PortInfo{
		{Path: "/dev/ttyUSB0", VIDPID: "1A86:7523", IsUSB: true},
		{Path: "/dev/ttyUSB1", VIDPID: "1D50:6089", IsUSB: true},
		{Path: "/dev/ttyUSB2", VIDPID: "0403:6001", IsUSB: true},
	}, nil)

	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{"/dev/ttyUSB2"}

	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/ttyUSB0", devices[0].Path)
	assert.Equal(t, []string{"/dev/ttyUSB0"}, *probed)
}

func TestDetect_NoPorts(t *testing.T) {
	stubProbe(t, true)
	stubPorts(t, nil, nil)

	opts := detection.DefaultOptions()
	_, err := New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestDetect_EnumerationError(t *testing.T) {
	stubProbe(t, true)
	boom := errors.New("enumerate failed")
	stubPorts(t, nil, boom)

	opts := detection.DefaultOptions()
	_, err := New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, boom)
}

func TestIsLikelyReader(t *testing.T) {
	tests := []struct {
		port uart.PortInfo
		want bool
	}{
		{uart.PortInfo{VIDPID: "067b:2303"}, true},
		{uart.PortInfo{VIDPID: "10C4:EA60"}, true},
		{uart.PortInfo{Product: "MIFARE Card Reader"}, true},
		{uart.PortInfo{Product: "13.56MHz module"}, true},
		{uart.PortInfo{VIDPID: "2341:0043", Product: "Arduino Uno"}, false},
		{uart.PortInfo{}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLikelyReader(&tt.port), "%+v", tt.port)
	}
}
