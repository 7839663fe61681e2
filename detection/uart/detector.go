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


// Package uart registers a detector that looks for card readers on serial
// ports. Import it for its side effect:
//
//	import _ "github.com/ZaparooProject/go-mfreader/detection/uart"
package uart

import (
	"context"
	"strings"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/ZaparooProject/go-mfreader/detection"
	"github.com/ZaparooProject/go-mfreader/transport/uart"
)

// detector implements the Detector interface for UART devices.
type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// listPortsFn and probeDeviceFn are replaced in tests.
var (
	listPortsFn   = uart.ListPorts
	probeDeviceFn = probeDevice
)

// Detect searches for card readers on serial ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := listPortsFn()
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for i := range ports {
		select {
		case <-ctx.Done():
			return devices, nil
		default:
		}

		port := &ports[i]
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		if device, ok := d.processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// processPort decides whether a port is reported and with what confidence.
func (*detector) processPort(ctx context.Context, port *uart.PortInfo, opts *detection.Options) (detection.DeviceInfo, bool) {
	likely := isLikelyReader(port)
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Product,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	if likely {
		device.Confidence = detection.Medium
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}

	switch opts.Mode {
	case detection.Passive:
		return device, likely
	case detection.Safe:
		if !likely && !port.IsUSB {
			return detection.DeviceInfo{}, false
		}
	case detection.Full:
	default:
		return detection.DeviceInfo{}, false
	}

	probeCtx := ctx
	if opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, opts.ProbeTimeout)
		defer cancel()
	}

	if !probeDeviceFn(probeCtx, port.Path, opts) {
		// A port that does not answer the handshake is not a reader, whatever
		// its USB bridge suggests.
		return detection.DeviceInfo{}, false
	}
	device.Confidence = detection.High
	return device, true
}

// knownBridges are the USB-serial chips readers ship with.
var knownBridges = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

var readerKeywords = []string{"mifare", "rfid", "nfc", "13.56", "card reader"}

// isLikelyReader checks the port's USB descriptors.
func isLikelyReader(port *uart.PortInfo) bool {
	vidpid := strings.ToUpper(port.VIDPID)
	for _, known := range knownBridges {
		if vidpid == known {
			return true
		}
	}
	product := strings.ToLower(port.Product)
	for _, keyword := range readerKeywords {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}

// probeDevice makes a single open-port attempt on path. Retrying here would
// hammer ports that are not readers; callers retry once a path is known.
func probeDevice(ctx context.Context, path string, opts *detection.Options) bool {
	cfg := mfreader.DefaultConfig()
	cfg.MaxRetries = 1
	if opts.ProbeTimeout > 0 && opts.ProbeTimeout < cfg.OpenPortTimeout {
		cfg.OpenPortTimeout = opts.ProbeTimeout
	}
	cfg.IdleGap = 50 * time.Millisecond

	reader, err := mfreader.New(uart.Factory, mfreader.WithConfig(cfg))
	if err != nil {
		return false
	}
	defer reader.ClosePort()

	baud := mfreader.BaudRate(opts.BaudRate)
	if !baud.Valid() {
		baud = mfreader.Baud19200
	}
	if !reader.Initialize(ctx, path, baud, 1) {
		return false
	}
	if opts.Mode == detection.Full {
		_, _, err := reader.SelectCard(ctx)
		return err == nil
	}
	return true
}
