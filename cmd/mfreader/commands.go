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
	"net/http"
	"os"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/ZaparooProject/go-mfreader/config"
	"github.com/ZaparooProject/go-mfreader/detection"
	_ "github.com/ZaparooProject/go-mfreader/detection/uart"
	mfprom "github.com/ZaparooProject/go-mfreader/metrics/prometheus"
	"github.com/ZaparooProject/go-mfreader/transport/uart"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:                "mfreader",
	Short:              "MIFARE card reader tool.",
	Long:               ``,
	SilenceErrors:      true,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

var (
	flagPort       string
	flagBaud       int
	flagRetries    int
	flagConfig     string
	flagDebug      bool
	flagSessionLog bool
	flagMetrics    string
)

// streamFactory opens the link; replaced in tests.
var streamFactory mfreader.StreamFactory = uart.Factory

var metricsSink mfreader.Metrics = mfreader.NoopMetrics{}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagPort, "port", "p", "", "Serial port (auto-detect if empty)")
	pf.IntVarP(&flagBaud, "baud", "b", 0, "Baud rate: 9600, 19200, 57600 or 115200 (default from config, else 19200)")
	pf.IntVarP(&flagRetries, "retries", "r", 0, "Open-port attempts (default from config, else 20)")
	pf.StringVarP(&flagConfig, "config", "c", "", "HCL configuration file")
	pf.BoolVarP(&flagDebug, "debug", "d", false, "Debug logging")
	pf.BoolVar(&flagSessionLog, "session-log", false, "Write a debug session log to the current directory")
	pf.StringVarP(&flagMetrics, "metrics", "m", "", "Prometheus metrics address")
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	if flagDebug {
		log.SetLevel(log.DebugLevel)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		mfreader.SetDebugEnabled(true)
	}

	if flagSessionLog {
		path, err := mfreader.InitSessionLog("")
		if err != nil {
			return err
		}
		cmd.Printf("Session log: %s\n", path)
	}

	if flagMetrics != "" {
		reg := prometheus.NewRegistry()
		metricsSink = mfprom.New(reg, nil)
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			Registry:          reg,
		}))
		srv := &http.Server{Addr: flagMetrics, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	return mfreader.CloseSessionLog()
}

func loadSchema() (*config.Schema, error) {
	if flagConfig == "" {
		return &config.Schema{}, nil
	}
	return config.ReadSchema(flagConfig)
}

// settings resolves the reader options and baud rate from the config file
// and flags.
func settings(schema *config.Schema) ([]mfreader.Option, mfreader.BaudRate, error) {
	cfg, err := schema.ReaderConfig()
	if err != nil {
		return nil, 0, err
	}
	proto, err := schema.ProtocolTables()
	if err != nil {
		return nil, 0, err
	}

	baud := cfg.BaudRate
	if flagBaud != 0 {
		baud = mfreader.BaudRate(flagBaud)
		if !baud.Valid() {
			return nil, 0, fmt.Errorf("unsupported baud rate %d", flagBaud)
		}
	}

	opts := []mfreader.Option{
		mfreader.WithConfig(cfg),
		mfreader.WithProtocol(proto),
		mfreader.WithMetrics(metricsSink),
	}
	return opts, baud, nil
}

// resolvePort picks the --port flag, then the config file, then the best
// detected reader.
func resolvePort(ctx context.Context, schema *config.Schema) (string, error) {
	if flagPort != "" {
		return flagPort, nil
	}
	if port := schema.Port(); port != "" {
		return port, nil
	}

	opts, err := schema.DetectOptions()
	if err != nil {
		return "", err
	}
	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return "", fmt.Errorf("no port given and auto-detection failed: %w", err)
	}
	best, _ := detection.Best(devices)
	log.WithField("device", best.String()).Info("using detected reader")
	return best.Path, nil
}

// openReader builds a Reader and runs the open-port handshake.
func openReader(ctx context.Context) (*mfreader.Reader, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}
	opts, baud, err := settings(schema)
	if err != nil {
		return nil, err
	}
	port, err := resolvePort(ctx, schema)
	if err != nil {
		return nil, err
	}

	reader, err := mfreader.New(streamFactory, opts...)
	if err != nil {
		return nil, err
	}
	if !reader.Initialize(ctx, port, baud, flagRetries) {
		return nil, fmt.Errorf("failed to initialize card reader on %s at %d baud", port, baud)
	}
	return reader, nil
}

// withReader opens the reader, runs fn and closes the port.
func withReader(cmd *cobra.Command, fn func(ctx context.Context, reader *mfreader.Reader) error) error {
	ctx := cmd.Context()
	reader, err := openReader(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close port: %v\n", err)
		}
	}()
	return fn(ctx, reader)
}
