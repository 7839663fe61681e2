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


// Package config reads reader settings from an HCL file:
//
//	reader {
//	  port            = "/dev/ttyUSB0"
//	  baud            = 19200
//	  max_retries     = 20
//	  retry_delay     = "500ms"
//	  command_timeout = "5s"
//	}
//
//	protocol {
//	  auth_prefix = "AABB0D000000070204"
//	}
//
//	detect {
//	  mode      = "safe"
//	  blocklist = ["1D50:6089"]
//	}
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/ZaparooProject/go-mfreader/detection"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
)

type Schema struct {
	Reader   *ReaderSchema   `hcl:"reader,block"`
	Protocol *ProtocolSchema `hcl:"protocol,block"`
	Detect   *DetectSchema   `hcl:"detect,block"`
}

type ReaderSchema struct {
	Port            string `hcl:"port,optional"`
	Baud            int    `hcl:"baud,optional"`
	MaxRetries      int    `hcl:"max_retries,optional"`
	RetryDelay      string `hcl:"retry_delay,optional"`
	CommandTimeout  string `hcl:"command_timeout,optional"`
	OpenPortTimeout string `hcl:"open_port_timeout,optional"`
	IdleGap         string `hcl:"idle_gap,optional"`
	TraceSize       int    `hcl:"trace_size,optional"`
}

// ProtocolSchema overrides individual byte tables. Values are hex strings;
// spaces are allowed. Empty attributes keep the built-in table.
type ProtocolSchema struct {
	OpenPortPrefix   string `hcl:"open_port_prefix,optional"`
	OpenPortResponse string `hcl:"open_port_response,optional"`
	SelectCommand    string `hcl:"select_command,optional"`
	SelectMarker     string `hcl:"select_marker,optional"`
	AuthPrefix       string `hcl:"auth_prefix,optional"`
	AuthResponse     string `hcl:"auth_response,optional"`
	KeyModeA         string `hcl:"key_mode_a,optional"`
	KeyModeB         string `hcl:"key_mode_b,optional"`
	ReadCommand      string `hcl:"read_command,optional"`
	ReadMarker       string `hcl:"read_marker,optional"`
	LEDPrefix        string `hcl:"led_prefix,optional"`
	LEDResponse      string `hcl:"led_response,optional"`
	BeepCommand      string `hcl:"beep_command,optional"`
	BeepResponse     string `hcl:"beep_response,optional"`
}

type DetectSchema struct {
	Mode         string   `hcl:"mode,optional"`
	Blocklist    []string `hcl:"blocklist,optional"`
	IgnorePaths  []string `hcl:"ignore_paths,optional"`
	Timeout      string   `hcl:"timeout,optional"`
	ProbeTimeout string   `hcl:"probe_timeout,optional"`
}

func ReadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	s := new(Schema)
	if err := s.Decode(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Schema) Decode(data []byte) error {
	file, diag := hclsyntax.ParseConfig(data, "", hcl.Pos{Line: 1, Column: 1})
	if diag.HasErrors() {
		return diag.Errs()[0]
	}

	diag = gohcl.DecodeBody(file.Body, nil, s)
	if diag.HasErrors() {
		return diag.Errs()[0]
	}

	return nil
}

func (s *Schema) Encode() []byte {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(s, f.Body())
	return f.Bytes()
}

// Default returns a schema holding the built-in reader settings.
func Default() *Schema {
	cfg := mfreader.DefaultConfig()
	return &Schema{
		Reader: &ReaderSchema{
			Baud:            int(cfg.BaudRate),
			MaxRetries:      cfg.MaxRetries,
			RetryDelay:      cfg.RetryDelay.String(),
			CommandTimeout:  cfg.CommandTimeout.String(),
			OpenPortTimeout: cfg.OpenPortTimeout.String(),
			TraceSize:       cfg.TraceSize,
		},
	}
}

// Port returns the configured port, or "" when none is set.
func (s *Schema) Port() string {
	if s.Reader == nil {
		return ""
	}
	return s.Reader.Port
}

// ReaderConfig merges the reader block over DefaultConfig and validates it.
func (s *Schema) ReaderConfig() (*mfreader.Config, error) {
	cfg := mfreader.DefaultConfig()
	rs := s.Reader
	if rs == nil {
		return cfg, nil
	}

	if rs.Baud != 0 {
		baud := mfreader.BaudRate(rs.Baud)
		if !baud.Valid() {
			return nil, fmt.Errorf("reader: unsupported baud rate %d", rs.Baud)
		}
		cfg.BaudRate = baud
	}
	if rs.MaxRetries != 0 {
		cfg.MaxRetries = rs.MaxRetries
	}
	if rs.TraceSize != 0 {
		cfg.TraceSize = rs.TraceSize
	}

	durations := []struct {
		dst  *time.Duration
		name string
		val  string
	}{
		{&cfg.RetryDelay, "retry_delay", rs.RetryDelay},
		{&cfg.CommandTimeout, "command_timeout", rs.CommandTimeout},
		{&cfg.OpenPortTimeout, "open_port_timeout", rs.OpenPortTimeout},
		{&cfg.IdleGap, "idle_gap", rs.IdleGap},
	}
	for _, d := range durations {
		if err := parseDuration(d.val, d.dst); err != nil {
			return nil, fmt.Errorf("reader: %s: %w", d.name, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("reader: %w", err)
	}
	return cfg, nil
}

// ProtocolTables merges the protocol block over DefaultProtocol.
func (s *Schema) ProtocolTables() (*mfreader.Protocol, error) {
	p := mfreader.DefaultProtocol()
	ps := s.Protocol
	if ps == nil {
		return p, nil
	}

	tables := []struct {
		dst  *[]byte
		name string
		val  string
	}{
		{&p.OpenPortPrefix, "open_port_prefix", ps.OpenPortPrefix},
		{&p.OpenPortExpectedResponse, "open_port_response", ps.OpenPortResponse},
		{&p.SelectCardCommand, "select_command", ps.SelectCommand},
		{&p.AuthCommandPrefix, "auth_prefix", ps.AuthPrefix},
		{&p.AuthExpectedResponse, "auth_response", ps.AuthResponse},
		{&p.ReadCardCommand, "read_command", ps.ReadCommand},
		{&p.LEDCommandPrefix, "led_prefix", ps.LEDPrefix},
		{&p.LEDExpectedResponse, "led_response", ps.LEDResponse},
		{&p.BeepCommand, "beep_command", ps.BeepCommand},
		{&p.BeepExpectedResponse, "beep_response", ps.BeepResponse},
	}
	for _, t := range tables {
		if t.val == "" {
			continue
		}
		b, err := parseHex(t.val)
		if err != nil {
			return nil, fmt.Errorf("protocol: %s: %w", t.name, err)
		}
		*t.dst = b
	}

	single := []struct {
		dst  *byte
		name string
		val  string
	}{
		{&p.SelectMarker, "select_marker", ps.SelectMarker},
		{&p.ReadMarker, "read_marker", ps.ReadMarker},
		{&p.KeyModeA, "key_mode_a", ps.KeyModeA},
		{&p.KeyModeB, "key_mode_b", ps.KeyModeB},
	}
	for _, b := range single {
		if b.val == "" {
			continue
		}
		v, err := parseHex(b.val)
		if err != nil {
			return nil, fmt.Errorf("protocol: %s: %w", b.name, err)
		}
		if len(v) != 1 {
			return nil, fmt.Errorf("protocol: %s: want one byte, got %d", b.name, len(v))
		}
		*b.dst = v[0]
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("protocol: %w", err)
	}
	return p, nil
}

// DetectOptions merges the detect block over detection.DefaultOptions. The
// probe speed follows the reader block.
func (s *Schema) DetectOptions() (detection.Options, error) {
	opts := detection.DefaultOptions()
	if s.Reader != nil && s.Reader.Baud != 0 {
		opts.BaudRate = s.Reader.Baud
	}
	ds := s.Detect
	if ds == nil {
		return opts, nil
	}

	if ds.Mode != "" {
		mode, err := detection.ParseMode(ds.Mode)
		if err != nil {
			return opts, fmt.Errorf("detect: %w", err)
		}
		opts.Mode = mode
	}
	for _, entry := range ds.Blocklist {
		vidpid := detection.NormalizeVIDPID(entry)
		if vidpid == "" {
			return opts, fmt.Errorf("detect: blocklist entry %q is not a VID:PID", entry)
		}
		opts.Blocklist = append(opts.Blocklist, vidpid)
	}
	opts.IgnorePaths = append(opts.IgnorePaths, ds.IgnorePaths...)
	if err := parseDuration(ds.Timeout, &opts.Timeout); err != nil {
		return opts, fmt.Errorf("detect: timeout: %w", err)
	}
	if err := parseDuration(ds.ProbeTimeout, &opts.ProbeTimeout); err != nil {
		return opts, fmt.Errorf("detect: probe_timeout: %w", err)
	}
	return opts, nil
}

func parseDuration(val string, dst *time.Duration) error {
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func parseHex(val string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(val)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", val, err)
	}
	return b, nil
}
