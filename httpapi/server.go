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


// Package httpapi exposes a card reader over HTTP.
//
//	GET  /status        link state
//	GET  /card          select the card in the field
//	POST /card/read     authenticate and read one block
//	POST /led/{color}   set the LED
//	POST /beep          sound the beeper
//
// The reader takes one command at a time, so requests are served one after
// another.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	"github.com/ZaparooProject/go-mfreader/internal/syncutil"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// Device is the part of *mfreader.Reader the API drives.
type Device interface {
	SelectCard(ctx context.Context) (string, bool, error)
	ReadCard(ctx context.Context, key mfreader.Key, mode mfreader.KeyMode) (string, bool, error)
	ChangeLedColor(ctx context.Context, color mfreader.Color) bool
	Beep(ctx context.Context) bool
	IsOpen() bool
	Path() string
	BaudRate() mfreader.BaudRate
}

// Server routes HTTP requests to a Device.
type Server struct {
	dev    Device
	router *mux.Router
	mu     syncutil.Mutex
}

// New builds the router for dev.
func New(dev Device) *Server {
	s := &Server{dev: dev, router: mux.NewRouter()}

	s.router.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/card", s.getCard).Methods(http.MethodGet)
	s.router.HandleFunc("/card/read", s.readCard).Methods(http.MethodPost)
	s.router.HandleFunc("/led/{color}", s.setLED).Methods(http.MethodPost)
	s.router.HandleFunc("/beep", s.beep).Methods(http.MethodPost)
	s.router.Use(logRequests)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Status is the body of GET /status.
type Status struct {
	Port string `json:"port"`
	Baud int    `json:"baud"`
	Open bool   `json:"open"`
}

// CardResponse is the body of GET /card.
type CardResponse struct {
	UID     string `json:"uid,omitempty"`
	Present bool   `json:"present"`
}

// ReadRequest is the optional body of POST /card/read. Missing fields use the
// factory key and key slot A.
type ReadRequest struct {
	Key  string `json:"key"`
	Mode string `json:"mode"`
}

// ReadResponse is the body of POST /card/read.
type ReadResponse struct {
	Data string `json:"data,omitempty"`
	OK   bool   `json:"ok"`
}

// Result is the body of the LED and beep endpoints.
type Result struct {
	OK bool `json:"ok"`
}

// Error is the body of every failed request.
type Error struct {
	Error string `json:"error"`
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Status{
		Port: s.dev.Path(),
		Baud: int(s.dev.BaudRate()),
		Open: s.dev.IsOpen(),
	})
}

func (s *Server) getCard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	uid, ok, err := s.dev.SelectCard(r.Context())
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CardResponse{UID: uid, Present: ok})
}

func (s *Server) readCard(w http.ResponseWriter, r *http.Request) {
	var req ReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, fmt.Errorf("%w: %w", mfreader.ErrInvalidParameter, err))
		return
	}

	key := mfreader.DefaultKey
	if req.Key != "" {
		key = mfreader.HexKey(req.Key)
	}
	mode := mfreader.KeyA
	if req.Mode != "" {
		m, err := mfreader.ParseKeyMode(req.Mode)
		if err != nil {
			writeError(w, err)
			return
		}
		mode = m
	}

	s.mu.Lock()
	data, ok, err := s.dev.ReadCard(r.Context(), key, mode)
	s.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReadResponse{Data: data, OK: ok})
}

func (s *Server) setLED(w http.ResponseWriter, r *http.Request) {
	color, err := mfreader.ParseColor(mux.Vars(r)["color"])
	if err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	ok := s.dev.ChangeLedColor(r.Context(), color)
	s.mu.Unlock()
	writeResult(w, ok)
}

func (s *Server) beep(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ok := s.dev.Beep(r.Context())
	s.mu.Unlock()
	writeResult(w, ok)
}

// writeResult answers 200 on success and 502 when the reader did not confirm.
func writeResult(w http.ResponseWriter, ok bool) {
	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, Result{OK: ok})
}

// statusFor maps reader errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mfreader.ErrKeyFormat), errors.Is(err, mfreader.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, mfreader.ErrNotOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, mfreader.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, mfreader.ErrValidationMismatch):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), Error{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	e := json.NewEncoder(w)
	e.SetIndent("", "    ")
	if err := e.Encode(v); err != nil {
		log.WithError(err).Debug("failed to write response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(log.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"status":  rec.status,
			"elapsed": time.Since(start).Round(time.Millisecond),
		}).Debug("http request")
	})
}
