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
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/ZaparooProject/go-mfreader/httpapi"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Expose the reader over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(cmdServe)
	cmdServe.Flags().StringVarP(&serveAddr, "addr", "a", ":8000", "Address to serve from")
}

func runServe(cmd *cobra.Command, _ []string) error {
	return withReader(cmd, func(ctx context.Context, reader *mfreader.Reader) error {
		h := &http.Server{
			Addr:              serveAddr,
			Handler:           httpapi.New(reader),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errs := make(chan error, 1)
		go func() { errs <- h.ListenAndServe() }()
		log.WithFields(log.Fields{"addr": serveAddr, "port": reader.Path()}).Info("serving card reader")

		select {
		case err := <-errs:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return ctx.Err()
	})
}
