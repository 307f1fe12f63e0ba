/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logging holds the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/lmittmann/tint"
)

// LevelEnv overrides the default level at process start.
const LevelEnv = "PLUGINMQ_LOG_LEVEL"

const timeFormat = "2006-01-02 15:04:05.000000"

var (
	level  = new(slog.LevelVar)
	logger atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelWarn)
	if v := os.Getenv(LevelEnv); v != "" {
		if l, err := ParseLevel(v); err == nil {
			level.Set(l)
		}
	}
	SetOutput(os.Stderr)
}

// Logger returns the process logger.
func Logger() *slog.Logger {
	return logger.Load()
}

// Named returns a child logger tagged with the component name.
func Named(component string) *slog.Logger {
	return Logger().With("component", component)
}

// SetLevel changes the minimum level of every logger handed out by this
// package, including ones created before the call. Default is warn.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level reports the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// SetOutput replaces the sink. Colors are only emitted for a terminal-ish
// writer (os.Stdout / os.Stderr).
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	noColor := w != os.Stdout && w != os.Stderr
	logger.Store(slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: timeFormat,
		AddSource:  true,
		NoColor:    noColor,
	})))
}

// ParseLevel accepts debug, info, warn/warning and error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
