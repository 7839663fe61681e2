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
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// logger is the console logger. Debug output reaches it only when debug mode
// is enabled; warnings always do.
var logger = newConsoleLogger()

func newConsoleLogger() *log.Logger {
	l := log.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	l.SetLevel(log.InfoLevel)
	return l
}

func init() {
	if os.Getenv("MFREADER_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		SetDebugEnabled(true)
	}
}

// SetDebugEnabled allows programmatic control of debug logging
func SetDebugEnabled(enabled bool) {
	if enabled {
		logger.SetLevel(log.DebugLevel)
		return
	}
	logger.SetLevel(log.InfoLevel)
}

// DebugEnabled reports whether debug output goes to the console.
func DebugEnabled() bool {
	return logger.IsLevelEnabled(log.DebugLevel)
}

// SetLogger replaces the console logger, e.g. to share a host application's
// logrus configuration. A nil logger restores the default.
func SetLogger(l *log.Logger) {
	if l == nil {
		l = newConsoleLogger()
	}
	logger = l
}

// Logger returns the console logger.
func Logger() *log.Logger {
	return logger
}

// Debugf prints debug information.
// Always writes to the session log (if initialized); reaches the console only
// when debug mode is enabled.
func Debugf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if sessionLog != nil {
		sessionLog.Debug(message)
	}
	logger.Debug(message)
}

// Debugln prints debug information, formatting args like fmt.Sprint.
func Debugln(args ...any) {
	Debugf("%s", fmt.Sprint(args...))
}

func debugf(format string, args ...any) {
	Debugf(format, args...)
}

// warnf reports something the caller will only see as a false/nil result.
func warnf(fields log.Fields, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if sessionLog != nil {
		sessionLog.WithFields(fields).Warn(message)
	}
	logger.WithFields(fields).Warn(message)
}
