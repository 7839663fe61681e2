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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/spf13/cobra"
)

var cmdStress = &cobra.Command{
	Use:   "stress",
	Short: "Repeatedly select and read the card in the field",
	Long: `Runs select-card and authenticate/read rounds against one card and checks
that every round returns the same UID and block. The first failing round is
written to a JSON crash report with the wire trace.`,
	Args: cobra.NoArgs,
	RunE: runStress,
}

var (
	stressRounds int
	stressDir    string
)

func init() {
	rootCmd.AddCommand(cmdStress)
	cmdStress.Flags().IntVarP(&stressRounds, "rounds", "n", 50, "Rounds to run")
	cmdStress.Flags().StringVar(&stressDir, "report-dir", ".", "Directory for crash reports")
	cmdStress.Flags().StringVarP(&readKey, "key", "k", string(mfreader.DefaultKey), "Sector key as 12 hex characters")
	cmdStress.Flags().StringVar(&readKeyMode, "key-mode", string(mfreader.KeyA), "Key slot: A or B")
}

// StressResult holds the outcome of a stress run.
type StressResult struct {
	UID       string
	CrashFile string
	Passed    int
	Failed    int
	Duration  time.Duration
}

// CrashReport contains all information for debugging a failure.
type CrashReport struct {
	Timestamp    time.Time  `json:"timestamp"`
	CardUID      string     `json:"card_uid"`
	Port         string     `json:"port"`
	Operation    string     `json:"operation"`
	Error        string     `json:"error"`
	ExpectedHex  string     `json:"expected_hex,omitempty"`
	ActualHex    string     `json:"actual_hex,omitempty"`
	WireTrace    []string   `json:"wire_trace,omitempty"`
	OperationLog []LogEntry `json:"operation_log"`
	Baud         int        `json:"baud"`
	Round        int        `json:"round"`
}

// LogEntry represents a single operation in the log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	DataHex   string    `json:"data_hex,omitempty"`
	Error     string    `json:"error,omitempty"`
	Success   bool      `json:"success"`
}

// stressReader is the part of *mfreader.Reader the stress run drives.
type stressReader interface {
	SelectCard(ctx context.Context) (string, bool, error)
	ReadCard(ctx context.Context, key mfreader.Key, mode mfreader.KeyMode) (string, bool, error)
	Path() string
	BaudRate() mfreader.BaudRate
}

type stressRun struct {
	reader  stressReader
	out     io.Writer
	key     mfreader.Key
	failure *CrashReport
	mode    mfreader.KeyMode
	uid     string
	block   string
	opLog   []LogEntry
}

func runStress(cmd *cobra.Command, _ []string) error {
	mode, err := mfreader.ParseKeyMode(readKeyMode)
	if err != nil {
		return err
	}
	key := mfreader.HexKey(readKey)
	if _, err := mfreader.NormalizeKey(key); err != nil {
		return err
	}

	return withReader(cmd, func(ctx context.Context, reader *mfreader.Reader) error {
		result, err := stress(ctx, cmd.OutOrStdout(), reader, key, mode, stressRounds, stressDir)
		if err != nil {
			return err
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d of %d rounds failed", result.Failed, result.Passed+result.Failed)
		}
		return nil
	})
}

func stress(
	ctx context.Context, out io.Writer, reader stressReader, key mfreader.Key, mode mfreader.KeyMode, rounds int, dir string,
) (*StressResult, error) {
	if rounds < 1 {
		return nil, fmt.Errorf("%w: rounds must be at least 1", mfreader.ErrInvalidParameter)
	}
	printStressBanner(out, rounds)

	run := &stressRun{reader: reader, out: out, key: key, mode: mode, opLog: make([]LogEntry, 0, 2*rounds)}
	start := time.Now()
	result := &StressResult{}

	for round := 1; round <= rounds; round++ {
		if ctx.Err() != nil {
			break
		}
		if run.round(ctx, round) {
			result.Passed++
			continue
		}
		result.Failed++
		if run.failure != nil && result.CrashFile == "" {
			file, err := writeCrashReport(run.failure, dir)
			if err != nil {
				_, _ = fmt.Fprintf(out, "  %v\n", err)
			} else {
				result.CrashFile = file
			}
		}
	}

	result.UID = run.uid
	result.Duration = time.Since(start)
	printStressSummary(out, result)
	return result, nil
}

// round runs one select and read and checks them against the first round.
func (s *stressRun) round(ctx context.Context, n int) bool {
	uid, ok, err := s.reader.SelectCard(ctx)
	if err == nil && !ok {
		err = errors.New("no card")
	}
	s.log("select_card", uid, err)
	if err != nil {
		s.fail(n, "select_card", err, "", "")
		return false
	}
	if s.uid == "" {
		s.uid = uid
	} else if uid != s.uid {
		s.fail(n, "select_card", errors.New("UID changed"), s.uid, uid)
		return false
	}

	data, ok, err := s.reader.ReadCard(ctx, s.key, s.mode)
	if err == nil && !ok {
		err = errors.New("no data")
	}
	s.log("read_card", data, err)
	if err != nil {
		s.fail(n, "read_card", err, "", "")
		return false
	}
	if s.block == "" {
		s.block = data
	} else if data != s.block {
		s.fail(n, "read_card", errors.New("block contents changed"), s.block, data)
		return false
	}
	return true
}

func (s *stressRun) log(op, dataHex string, err error) {
	entry := LogEntry{Timestamp: time.Now(), Operation: op, DataHex: dataHex, Success: err == nil}
	if err != nil {
		entry.Error = err.Error()
	}
	s.opLog = append(s.opLog, entry)
}

func (s *stressRun) fail(round int, op string, err error, expected, actual string) {
	_, _ = fmt.Fprintf(s.out, "  [FAIL] round %d %s: %v\n", round, op, err)
	if s.failure != nil {
		return
	}
	report := &CrashReport{
		Timestamp:    time.Now(),
		CardUID:      s.uid,
		Port:         s.reader.Path(),
		Baud:         int(s.reader.BaudRate()),
		Round:        round,
		Operation:    op,
		Error:        err.Error(),
		ExpectedHex:  formatHexString(expected),
		ActualHex:    formatHexString(actual),
		OperationLog: append([]LogEntry(nil), s.opLog...),
	}
	if te := mfreader.GetTrace(err); te != nil {
		report.WireTrace = strings.Split(strings.TrimRight(te.FormatTrace(), "\n"), "\n")
	}
	s.failure = report
}

func writeCrashReport(report *CrashReport, dir string) (string, error) {
	uidSafe := report.CardUID
	if uidSafe == "" {
		uidSafe = "nocard"
	}
	timestamp := report.Timestamp.Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("stress_crash_%s_%s.json", uidSafe, timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal crash report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write crash report: %w", err)
	}
	return filename, nil
}

// formatHexString spaces out a hex string as "DE AD BE EF".
func formatHexString(h string) string {
	data, err := hex.DecodeString(h)
	if err != nil || len(data) == 0 {
		return h
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

func printStressBanner(out io.Writer, rounds int) {
	_, _ = fmt.Fprintln(out, "================================================================================")
	_, _ = fmt.Fprintln(out, "                         MIFARE Card Reader Stress Test")
	_, _ = fmt.Fprintln(out, "================================================================================")
	_, _ = fmt.Fprintf(out, "Rounds: %d (select + authenticate/read each)\n", rounds)
}

func printStressSummary(out io.Writer, result *StressResult) {
	status := "PASS"
	if result.Failed > 0 {
		status = "FAIL"
	}
	_, _ = fmt.Fprintln(out, "================================================================================")
	_, _ = fmt.Fprintf(out, "  [%s] %s - %d/%d rounds passed - %s\n",
		status,
		result.UID,
		result.Passed,
		result.Passed+result.Failed,
		result.Duration.Round(100*time.Millisecond),
	)
	if result.CrashFile != "" {
		_, _ = fmt.Fprintf(out, "Crash report written: %s\n", result.CrashFile)
	}
	_, _ = fmt.Fprintln(out, "================================================================================")
}
