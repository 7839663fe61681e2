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


package main

import (
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-mfreader/config"
	"github.com/ZaparooProject/go-mfreader/detection"
	"github.com/ZaparooProject/go-mfreader/transport/uart"
	"github.com/spf13/cobra"
)

var (
	cmdPorts = &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE:  runPorts,
	}
	cmdDetect = &cobra.Command{
		Use:   "detect",
		Short: "Look for card readers on serial ports",
		Args:  cobra.NoArgs,
		RunE:  runDetect,
	}
	cmdConfig = &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration file",
		Args:  cobra.NoArgs,
		RunE:  runConfig,
	}
)

var (
	detectMode    string
	detectTimeout time.Duration
	detectNoCache bool
)

// listPorts is replaced in tests.
var listPorts = uart.ListPorts

func init() {
	rootCmd.AddCommand(cmdPorts, cmdDetect, cmdConfig)
	cmdDetect.Flags().StringVar(&detectMode, "mode", "", "Detection mode: passive, safe or full (default from config, else safe)")
	cmdDetect.Flags().DurationVar(&detectTimeout, "timeout", 0, "Overall detection timeout")
	cmdDetect.Flags().BoolVar(&detectNoCache, "no-cache", false, "Ignore cached detection results")
}

func runPorts(cmd *cobra.Command, _ []string) error {
	ports, err := listPorts()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(out, "No serial ports found")
		return nil
	}
	for _, p := range ports {
		printPort(out, p)
	}
	return nil
}

func printPort(out io.Writer, p uart.PortInfo) {
	if !p.IsUSB {
		_, _ = fmt.Fprintf(out, "%s\n", p.Path)
		return
	}
	_, _ = fmt.Fprintf(out, "%s\tUSB %s", p.Path, p.VIDPID)
	if p.Product != "" {
		_, _ = fmt.Fprintf(out, "\t%s", p.Product)
	}
	if p.SerialNumber != "" {
		_, _ = fmt.Fprintf(out, "\tserial=%s", p.SerialNumber)
	}
	_, _ = fmt.Fprintln(out)
}

func runDetect(cmd *cobra.Command, _ []string) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	opts, err := schema.DetectOptions()
	if err != nil {
		return err
	}
	if detectMode != "" {
		if opts.Mode, err = detection.ParseMode(detectMode); err != nil {
			return err
		}
	}
	if detectTimeout > 0 {
		opts.Timeout = detectTimeout
	}
	if flagBaud != 0 {
		opts.BaudRate = flagBaud
	}
	opts.EnableCache = !detectNoCache

	devices, err := detection.DetectAll(cmd.Context(), &opts)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, d := range devices {
		_, _ = fmt.Fprintln(out, d.String())
	}
	return nil
}

func runConfig(cmd *cobra.Command, _ []string) error {
	_, err := cmd.OutOrStdout().Write(config.Default().Encode())
	return err
}
