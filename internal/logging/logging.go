// Copyright 2025 Kadir Pekel
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

// Package logging wires a single process-wide structured logger for
// paperforge. Every component logs through Get() rather than the
// standard log package or fmt.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var base *slog.Logger

const corePackagePrefix = "github.com/songhahaha66/PaperAgent-sub000"

// ParseLevel converts a string log level into a slog.Level.
// Unrecognized values fall back to warn.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// Init installs the process-wide logger at the given level, writing
// JSON records to w (os.Stderr when w is nil).
func Init(level slog.Level, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	handler := &filteringHandler{
		handler:  slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}),
		minLevel: level,
	}
	base = slog.New(handler)
	slog.SetDefault(base)
}

// Get returns the process-wide logger, lazily installed at warn level
// if Init was never called (e.g. in unit tests).
func Get() *slog.Logger {
	if base == nil {
		Init(slog.LevelWarn, os.Stderr)
	}
	return base
}

// With returns a logger annotated with a work_id, the common
// correlation key threaded through every component in this package.
func With(workID string) *slog.Logger {
	return Get().With("work_id", workID)
}

// filteringHandler suppresses third-party library noise unless the
// configured level is debug or lower.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isCorePackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isCorePackage(pc uintptr) bool {
	if pc == 0 {
		return true
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return strings.HasPrefix(frame.Function, corePackagePrefix)
}
