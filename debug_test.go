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


package mfreader

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanupSessionLog(t *testing.T) {
	t.Helper()
	if sessionLogFile != nil {
		_ = sessionLogFile.Close()
	}
	sessionLogFile = nil
	sessionLogPath = ""
	sessionLog = nil
	sessionID = ""
}

func TestInitSessionLog_CreatesFile(t *testing.T) {
	t.Cleanup(func() { cleanupSessionLog(t) })

	dir := t.TempDir()
	path, err := InitSessionLog(dir)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "Log file should exist")
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, regexp.MustCompile(`^mfreader_\d{8}_\d{6}\.log$`), filepath.Base(path))
	assert.Equal(t, path, GetSessionLogPath())

	_, err = uuid.Parse(GetSessionID())
	require.NoError(t, err, "session id should be a UUID")

	again, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, path, again, "a second call keeps the open session")
}

func TestSessionLog_HeaderMessagesAndFooter(t *testing.T) {
	t.Cleanup(func() { cleanupSessionLog(t) })

	path, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)
	id := GetSessionID()

	Debugf("select_card %s: % X", "/dev/ttyUSB0", []byte{0xAA, 0xBB})
	Debugln("plain", "message")
	warnf(log.Fields{"port": "/dev/ttyUSB0"}, "reader went quiet")

	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())
	assert.Empty(t, GetSessionID())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)
	text := string(content)

	assert.Contains(t, text, "=== MIFARE Reader Debug Session Log ===")
	assert.Contains(t, text, "Session: "+id)
	assert.Contains(t, text, "PID:")
	assert.Contains(t, text, "Go Version:")
	assert.Contains(t, text, "Command Line:")
	assert.Contains(t, text, "select_card /dev/ttyUSB0: AA BB")
	assert.Contains(t, text, "plainmessage")
	assert.Contains(t, text, "reader went quiet")
	assert.Contains(t, text, "port=/dev/ttyUSB0")
	assert.Contains(t, text, "=== Session "+id+" ended ===")
}

func TestCloseSessionLog_NoSession(t *testing.T) {
	cleanupSessionLog(t)
	require.NoError(t, CloseSessionLog())
}

func TestInitSessionLog_BadDirectory(t *testing.T) {
	t.Cleanup(func() { cleanupSessionLog(t) })

	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
	assert.Empty(t, GetSessionLogPath())
}

func TestSetDebugEnabled(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	l := log.New()
	l.SetOutput(&buf)
	l.SetFormatter(&log.TextFormatter{DisableTimestamp: true, DisableColors: true})
	SetLogger(l)

	SetDebugEnabled(false)
	assert.False(t, DebugEnabled())
	Debugf("hidden %d", 1)
	assert.NotContains(t, buf.String(), "hidden 1")

	SetDebugEnabled(true)
	assert.True(t, DebugEnabled())
	Debugf("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")

	SetDebugEnabled(false)
	warnf(log.Fields{"op": "beep"}, "warnings always reach the console")
	assert.Contains(t, buf.String(), "warnings always reach the console")
	assert.Contains(t, buf.String(), "op=beep")
}

func TestSetLogger_NilRestoresDefault(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	SetLogger(nil)
	require.NotNil(t, Logger())
	assert.NotSame(t, orig, Logger())
	assert.Equal(t, os.Stderr, Logger().Out)
}
