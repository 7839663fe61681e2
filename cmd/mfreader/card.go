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
	"context"
	"errors"
	"fmt"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/spf13/cobra"
)

var (
	cmdProbe = &cobra.Command{
		Use:   "probe",
		Short: "Open the port and run the handshake",
		Args:  cobra.NoArgs,
		RunE:  runProbe,
	}
	cmdSelect = &cobra.Command{
		Use:   "select",
		Short: "Select the card in the field",
		Args:  cobra.NoArgs,
		RunE:  runSelect,
	}
	cmdRead = &cobra.Command{
		Use:   "read",
		Short: "Authenticate and read one block",
		Args:  cobra.NoArgs,
		RunE:  runRead,
	}
	cmdLED = &cobra.Command{
		Use:       "led <green|red|yellow|off>",
		Short:     "Set the LED",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"green", "red", "yellow", "off"},
		RunE:      runLED,
	}
	cmdBeep = &cobra.Command{
		Use:   "beep",
		Short: "Sound the beeper",
		Args:  cobra.NoArgs,
		RunE:  runBeep,
	}
)

var (
	readKey      string
	readKeyMode  string
	waitAttempts int
	waitInterval time.Duration
)

func init() {
	rootCmd.AddCommand(cmdProbe, cmdSelect, cmdRead, cmdLED, cmdBeep)

	for _, c := range []*cobra.Command{cmdSelect, cmdRead} {
		c.Flags().IntVar(&waitAttempts, "wait", 1, "Select attempts before giving up")
		c.Flags().DurationVar(&waitInterval, "interval", 500*time.Millisecond, "Pause between select attempts")
	}
	cmdRead.Flags().StringVarP(&readKey, "key", "k", string(mfreader.DefaultKey), "Sector key as 12 hex characters")
	cmdRead.Flags().StringVar(&readKeyMode, "key-mode", string(mfreader.KeyA), "Key slot: A or B")
}

func runProbe(cmd *cobra.Command, _ []string) error {
	return withReader(cmd, func(_ context.Context, reader *mfreader.Reader) error {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Card reader answered on %s at %d baud\n", reader.Path(), reader.BaudRate())
		return nil
	})
}

func runSelect(cmd *cobra.Command, _ []string) error {
	return withReader(cmd, func(ctx context.Context, reader *mfreader.Reader) error {
		uid, ok, err := reader.WaitForCard(ctx, waitAttempts, waitInterval)
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No card")
			return nil
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Card ID: %s\n", uid)
		return nil
	})
}

func runRead(cmd *cobra.Command, _ []string) error {
	mode, err := mfreader.ParseKeyMode(readKeyMode)
	if err != nil {
		return err
	}
	key := mfreader.HexKey(readKey)
	if _, err := mfreader.NormalizeKey(key); err != nil {
		return err
	}

	return withReader(cmd, func(ctx context.Context, reader *mfreader.Reader) error {
		out := cmd.OutOrStdout()
		uid, ok, err := reader.WaitForCard(ctx, waitAttempts, waitInterval)
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(out, "No card")
			return nil
		}
		_, _ = fmt.Fprintf(out, "Card ID: %s\n", uid)

		data, ok, err := reader.ReadCard(ctx, key, mode)
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(out, "No data")
			return nil
		}
		_, _ = fmt.Fprintf(out, "Card Data: %s\n", data)
		return nil
	})
}

func runLED(cmd *cobra.Command, args []string) error {
	color, err := mfreader.ParseColor(args[0])
	if err != nil {
		return err
	}
	return withReader(cmd, func(ctx context.Context, reader *mfreader.Reader) error {
		if !reader.ChangeLedColor(ctx, color) {
			return fmt.Errorf("reader did not confirm LED %s", color)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "LED %s\n", color)
		return nil
	})
}

func runBeep(cmd *cobra.Command, _ []string) error {
	return withReader(cmd, func(ctx context.Context, reader *mfreader.Reader) error {
		if !reader.Beep(ctx) {
			return errors.New("reader did not confirm beep")
		}
		return nil
	})
}
