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


package httpapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mfreader "github.com/ZaparooProject/go-mfreader"
	virt "github.com/ZaparooProject/go-mfreader/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPort = "/dev/virtual0"

func newReader(t *testing.T, vr *virt.VirtualReader) *mfreader.Reader {
	t.Helper()
	cfg := mfreader.DefaultConfig()
	cfg.CommandTimeout = 50 * time.Millisecond
	cfg.OpenPortTimeout = 50 * time.Millisecond
	cfg.RetryDelay = time.Millisecond

	r, err := mfreader.New(func(string, mfreader.BaudRate) (mfreader.Stream, error) {
		if err := vr.Open(); err != nil {
			return nil, err
		}
		return vr, nil
	}, mfreader.WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(r.ClosePort)
	return r
}

func openServer(t *testing.T) (*Server, *virt.VirtualReader, *virt.VirtualCard) {
	t.Helper()
	vr := virt.NewVirtualReader()
	card := virt.NewVirtualMIFARE1K(nil)
	vr.SetCard(card)
	r := newReader(t, vr)
	require.True(t, r.Initialize(context.Background(), testPort, mfreader.Baud19200, 1))
	return New(r), vr, card
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	t.Parallel()

	s, _, _ := openServer(t)
	rec := do(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=UTF-8", rec.Header().Get("Content-Type"))

	status := decodeBody[Status](t, rec)
	assert.Equal(t, Status{Port: testPort, Baud: 19200, Open: true}, status)
}

func TestGetCard(t *testing.T) {
	t.Parallel()

	s, _, card := openServer(t)
	rec := do(t, s, http.MethodGet, "/card", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[CardResponse](t, rec)
	assert.True(t, resp.Present)
	assert.Equal(t, hex.EncodeToString(virt.BuildSelectResponse(card.UID)[6:]), resp.UID)

	card.Remove()
	rec = do(t, s, http.MethodGet, "/card", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CardResponse{}, decodeBody[CardResponse](t, rec))
}

func TestGetCard_NotOpen(t *testing.T) {
	t.Parallel()

	s := New(newReader(t, virt.NewVirtualReader()))
	rec := do(t, s, http.MethodGet, "/card", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decodeBody[Error](t, rec).Error, "not open")
}

func TestReadCard(t *testing.T) {
	t.Parallel()

	s, _, card := openServer(t)
	block := []byte("0123456789abcdef")
	card.SetBlock(4, block)

	rec := do(t, s, http.MethodPost, "/card/read", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ReadResponse{Data: hex.EncodeToString(block), OK: true}, decodeBody[ReadResponse](t, rec))

	rec = do(t, s, http.MethodPost, "/card/read", `{"key":"FFFFFFFFFFFF","mode":"b"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[ReadResponse](t, rec).OK)
}

func TestReadCard_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed body", `{"key":`, http.StatusBadRequest},
		{"short key", `{"key":"FFFF"}`, http.StatusBadRequest},
		{"unknown mode", `{"mode":"C"}`, http.StatusBadRequest},
		{"wrong key", `{"key":"010203040506"}`, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _, _ := openServer(t)
			rec := do(t, s, http.MethodPost, "/card/read", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody[Error](t, rec).Error)
		})
	}
}

func TestReadCard_NoData(t *testing.T) {
	t.Parallel()

	s, vr, _ := openServer(t)
	vr.Script(virt.CodeRead, virt.BuildReadErrorResponse())

	rec := do(t, s, http.MethodPost, "/card/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ReadResponse{}, decodeBody[ReadResponse](t, rec))
}

func TestLED(t *testing.T) {
	t.Parallel()

	s, vr, _ := openServer(t)
	rec := do(t, s, http.MethodPost, "/led/green", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[Result](t, rec).OK)
	assert.Equal(t, mfreader.ColorCode(mfreader.ColorGreen)[0], vr.GetState().LEDCode)

	rec = do(t, s, http.MethodPost, "/led/purple", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	vr.Silence(virt.CodeLED, 1)
	rec = do(t, s, http.MethodPost, "/led/off", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, decodeBody[Result](t, rec).OK)
}

func TestBeep(t *testing.T) {
	t.Parallel()

	s, vr, _ := openServer(t)
	rec := do(t, s, http.MethodPost, "/beep", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, vr.GetState().Beeps)

	rec = do(t, s, http.MethodGet, "/beep", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestConcurrentRequestsAreSerialized(t *testing.T) {
	t.Parallel()

	s, vr, _ := openServer(t)
	vr.SetResponseDelay(5 * time.Millisecond)

	const n = 4
	codes := make(chan int, n)
	for range n {
		go func() {
			codes <- do(t, s, http.MethodPost, "/beep", "").Code
		}()
	}
	for range n {
		assert.Equal(t, http.StatusOK, <-codes, "no request sees ErrBusy")
	}
	assert.Equal(t, n, vr.GetState().Beeps)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusConflict, statusFor(mfreader.ErrBusy))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusBadGateway, statusFor(mfreader.ErrNoResponse))
}
