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
	"io"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/spf13/cobra"
)

var cmdDemo = &cobra.Command{
	Use:   "demo",
	Short: "Walk through LED, card wait, beep and read",
	Long: `Signals the card workflow on the reader: red while waiting for a card,
a beep and yellow while reading, then green and two beeps on success or red
and one beep on failure. The LED is switched off at the end.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

var demoAttempts int

func init() {
	rootCmd.AddCommand(cmdDemo)
	cmdDemo.Flags().IntVar(&demoAttempts, "wait", 20, "Select attempts before giving up")
}

// pause paces the demo so the LED states are visible; replaced in tests.
var pause = func(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// demoReader is the part of *mfreader.Reader the demo drives.
type demoReader interface {
	WaitForCard(ctx context.Context, attempts int, interval time.Duration) (string, bool, error)
	ReadCard(ctx context.Context, key mfreader.Key, mode mfreader.KeyMode) (string, bool, error)
	ChangeLedColor(ctx context.Context, color mfreader.Color) bool
	Beep(ctx context.Context) bool
}

func runDemo(cmd *cobra.Command, _ []string) error {
	return withReader(cmd, func(ctx context.Context, reader *mfreader.Reader) error {
		return demo(ctx, cmd.OutOrStdout(), reader, demoAttempts)
	})
}

type demoRun struct {
	ctx    context.Context
	out    io.Writer
	reader demoReader
}

func (d *demoRun) led(color mfreader.Color) {
	if !d.reader.ChangeLedColor(d.ctx, color) {
		_, _ = fmt.Fprintf(d.out, "✗ Failed to change LED to %s\n", color)
	}
}

func (d *demoRun) beep() {
	if !d.reader.Beep(d.ctx) {
		_, _ = fmt.Fprintln(d.out, "✗ Beep failed")
	}
}

// demo returns an error only for link failures; a missing card or a failed
// read is signalled on the reader and reported as output.
func demo(ctx context.Context, out io.Writer, reader demoReader, attempts int) error {
	d := &demoRun{ctx: ctx, out: out, reader: reader}

	_, _ = fmt.Fprintln(out, "Waiting for card (LED red)...")
	d.led(mfreader.ColorRed)
	pause(ctx, time.Second)

	uid, ok, err := reader.WaitForCard(ctx, attempts, 500*time.Millisecond)
	if err != nil {
		d.led(mfreader.ColorRed)
		d.beep()
		return err
	}
	if !ok {
		_, _ = fmt.Fprintf(out, "No card detected after %d attempts\n", attempts)
		d.led(mfreader.ColorOff)
		return nil
	}
	_, _ = fmt.Fprintf(out, "✓ Card detected! Card ID: %s\n", uid)
	pause(ctx, 500*time.Millisecond)

	d.beep()
	pause(ctx, 500*time.Millisecond)

	_, _ = fmt.Fprintln(out, "Reading card (LED yellow)...")
	d.led(mfreader.ColorYellow)
	pause(ctx, time.Second)

	data, ok, err := reader.ReadCard(ctx, mfreader.DefaultKey, mfreader.KeyA)
	if err == nil && ok {
		_, _ = fmt.Fprintf(out, "✓ Card Data: %s\n", data)
		d.led(mfreader.ColorGreen)
		pause(ctx, 300*time.Millisecond)
		d.beep()
		pause(ctx, 300*time.Millisecond)
		d.beep()
	} else {
		if err == nil {
			err = errors.New("no data")
		}
		_, _ = fmt.Fprintf(out, "✗ Failed to read card: %v\n", err)
		d.led(mfreader.ColorRed)
		d.beep()
	}

	pause(ctx, 2*time.Second)
	d.led(mfreader.ColorOff)
	_, _ = fmt.Fprintln(out, "Done")
	return nil
}
