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
	"github.com/ZaparooProject/go-mfreader/polling"
	"github.com/spf13/cobra"
)

var cmdWatch = &cobra.Command{
	Use:   "watch",
	Short: "Report cards as they arrive and leave",
	Long: `Polls the reader for cards until interrupted. A reader that stops
answering is reopened on the same port. With --read every new card is also
authenticated and its block printed; with --feedback the LED turns green and
the reader beeps for each card and turns red when it leaves.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchInterval time.Duration
	watchRemoval  time.Duration
	watchCount    int
	watchRead     bool
	watchFeedback bool
)

func init() {
	rootCmd.AddCommand(cmdWatch)
	f := cmdWatch.Flags()
	f.DurationVar(&watchInterval, "interval", 250*time.Millisecond, "Time between polls")
	f.DurationVar(&watchRemoval, "removal-timeout", 600*time.Millisecond, "How long a card may go unseen before it is reported removed")
	f.IntVarP(&watchCount, "count", "n", 0, "Stop after this many cards (0 watches forever)")
	f.BoolVar(&watchRead, "read", false, "Read the block of every new card")
	f.BoolVar(&watchFeedback, "feedback", false, "Signal cards with the LED and beeper")
	f.StringVarP(&readKey, "key", "k", string(mfreader.DefaultKey), "Sector key as 12 hex characters")
	f.StringVar(&readKeyMode, "key-mode", string(mfreader.KeyA), "Key slot: A or B")
}

type watchOptions struct {
	key      mfreader.Key
	mode     mfreader.KeyMode
	interval time.Duration
	removal  time.Duration
	count    int
	read     bool
	feedback bool
}

func runWatch(cmd *cobra.Command, _ []string) error {
	mode, err := mfreader.ParseKeyMode(readKeyMode)
	if err != nil {
		return err
	}
	key := mfreader.HexKey(readKey)
	if _, err := mfreader.NormalizeKey(key); err != nil {
		return err
	}

	opts := watchOptions{
		key:      key,
		mode:     mode,
		interval: watchInterval,
		removal:  watchRemoval,
		count:    watchCount,
		read:     watchRead,
		feedback: watchFeedback,
	}
	return withReader(cmd, func(ctx context.Context, reader *mfreader.Reader) error {
		return watch(ctx, cmd.OutOrStdout(), reader, opts)
	})
}

func watch(ctx context.Context, out io.Writer, reader *mfreader.Reader, opts watchOptions) error {
	cfg := polling.DefaultConfig()
	cfg.PollInterval = opts.interval
	cfg.CardRemovalTimeout = opts.removal
	session := polling.NewReaderSession(reader, cfg)

	seen := 0
	onCard := func(label string) func(string) error {
		return func(uid string) error {
			_, _ = fmt.Fprintf(out, "%s: %s\n", label, uid)
			if opts.feedback {
				reader.ChangeLedColor(ctx, mfreader.ColorGreen)
				reader.Beep(ctx)
			}
			if opts.read {
				data, ok, err := reader.ReadCard(ctx, opts.key, opts.mode)
				switch {
				case err != nil:
					_, _ = fmt.Fprintf(out, "Read failed: %v\n", err)
				case !ok:
					_, _ = fmt.Fprintln(out, "No data")
				default:
					_, _ = fmt.Fprintf(out, "Card Data: %s\n", data)
				}
			}
			seen++
			if opts.count > 0 && seen >= opts.count {
				_ = session.Close()
			}
			return nil
		}
	}
	session.SetOnCardDetected(onCard("Card detected"))
	session.SetOnCardChanged(onCard("Card changed"))
	session.SetOnCardRemoved(func() {
		_, _ = fmt.Fprintln(out, "Card removed")
		if opts.feedback {
			reader.ChangeLedColor(ctx, mfreader.ColorRed)
		}
	})

	_, _ = fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", reader.Path())
	err := session.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
