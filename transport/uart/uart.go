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


// Package uart provides the serial-port Stream for the card reader.
package uart

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/ZaparooProject/go-mfreader/internal/syncutil"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const readBufferSize = 256

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("UART port is closed")

// openPort opens a serial device; replaced in tests.
var openPort = serial.Open

// Transport is a serial link to the reader. A background loop reads the port
// and hands every chunk to the current subscribers.
type Transport struct {
	port        serial.Port
	subscribers map[int]func([]byte)
	done        chan struct{}
	loopDone    chan struct{}
	readErr     error
	portName    string
	nextID      int
	mu          syncutil.Mutex
	writeMu     syncutil.Mutex
	closeOnce   sync.Once
	closed      bool
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// readTimeout bounds how long the read loop blocks before checking for Close.
func readTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// postWriteDelay gives Windows USB-serial drivers time to flush a write.
func postWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond)
	}
}

// New opens portName at baud, 8N1, and starts the read loop.
func New(portName string, baud int) (*Transport, error) {
	port, err := openPort(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(readTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return NewWithPort(port, portName), nil
}

// NewWithPort wraps an already open port and starts the read loop.
func NewWithPort(port serial.Port, portName string) *Transport {
	t := &Transport{
		port:        port,
		portName:    portName,
		subscribers: make(map[int]func([]byte)),
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Factory opens a Transport; it satisfies mfreader.StreamFactory.
func Factory(path string, baud mfreader.BaudRate) (mfreader.Stream, error) {
	t, err := New(path, int(baud))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// PortName returns the device path.
func (t *Transport) PortName() string {
	return t.portName
}

// Write sends p in full.
func (t *Transport) Write(p []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.isClosed() {
		return ErrClosed
	}

	n, err := t.port.Write(p)
	if err != nil {
		return fmt.Errorf("UART write failed: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("UART short write: %d of %d bytes", n, len(p))
	}
	if err := t.drainWithRetry("write"); err != nil {
		return err
	}
	postWriteDelay()
	return nil
}

// Subscribe registers fn for every chunk read from the port.
func (t *Transport) Subscribe(fn func([]byte)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.subscribers[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subscribers, id)
	}
}

// Close stops the read loop and closes the port. Later calls return nil.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.done)

		if t.port != nil {
			if closeErr := t.port.Close(); closeErr != nil {
				err = fmt.Errorf("UART close failed: %w", closeErr)
			}
		}

		select {
		case <-t.loopDone:
		case <-time.After(2 * readTimeout()):
			mfreader.Debugf("UART %s: read loop still blocked after close", t.portName)
		}
	})
	return err
}

// Err returns the error that stopped the read loop, if any.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readErr
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) readLoop() {
	defer close(t.loopDone)
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-t.done:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if t.isClosed() {
				return
			}
			if isInterruptedSystemCall(err) {
				continue
			}
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
			mfreader.Debugf("UART %s read loop stopped: %v", t.portName, err)
			return
		}
		if n == 0 {
			continue
		}

		chunk := append([]byte(nil), buf[:n]...)
		t.mu.Lock()
		subs := make([]func([]byte), 0, len(t.subscribers))
		for _, fn := range t.subscribers {
			subs = append(subs, fn)
		}
		t.mu.Unlock()
		for _, fn := range subs {
			fn(chunk)
		}
	}
}

// isInterruptedSystemCall checks for EINTR, which Read and Drain return when
// a signal arrives mid-call.
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Path         string
	VIDPID       string
	Product      string
	SerialNumber string
	IsUSB        bool
}

// listPorts enumerates ports; replaced in tests.
var listPorts = enumerator.GetDetailedPortsList

// ListPorts returns the serial ports present on the system with their USB
// descriptors where available.
func ListPorts() ([]PortInfo, error) {
	details, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		info := PortInfo{
			Path:         d.Name,
			Product:      d.Product,
			SerialNumber: d.SerialNumber,
			IsUSB:        d.IsUSB,
		}
		if d.IsUSB && d.VID != "" && d.PID != "" {
			info.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
		}
		ports = append(ports, info)
	}
	return ports, nil
}
