// Package bake runs the baking jobs: it loads inputs, drives the frame and
// pass loops with cancellation between them, and writes images, checkpoints
// and telemetry.
package bake

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Log formats accepted by NewLogger.
const (
	LogAuto = "auto"
	LogJSON = "json"
	LogText = "text"
)

// NewLogger returns a slog logger writing to w. The auto format picks the
// text handler when w is a terminal and JSON otherwise.
func NewLogger(w io.Writer, format string, level slog.Level) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case LogAuto, "":
		if isTerminal(w) {
			return slog.New(slog.NewTextHandler(w, opts)), nil
		}
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case LogJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case LogText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q (want auto, json or text)", format)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
