package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/server"
)

// logSink is the open log file of the current process, if any.
var logSink *os.File

// setupLogger configures the process-wide slog default logger. Records go to
// stderr, a dated log file, both, or nowhere, depending on the destination.
func setupLogger(cfg config.LogConfig, stderr io.Writer) error {
	lvl, err := server.ParseLogLevel(cfg.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	dest, err := config.NormalizeLogDestination(cfg.Destination)
	if err != nil {
		return err
	}

	if err := closeLogSink(); err != nil {
		return err
	}

	var w io.Writer
	switch dest {
	case config.LogNone:
		w = io.Discard
	case config.LogCLI:
		w = stderr
	case config.LogFile, config.LogAll:
		f, err := openLogFile(cfg.File, time.Now())
		if err != nil {
			return err
		}
		logSink = f
		w = f
		if dest == config.LogAll {
			w = io.MultiWriter(stderr, f)
		}
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
	return nil
}

// logFileName appends the local date to base so each day gets its own file.
func logFileName(base string, now time.Time) string {
	return base + "." + now.Format("2006-01-02")
}

func openLogFile(base string, now time.Time) (*os.File, error) {
	if base == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	name := logFileName(base, now)
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func closeLogSink() error {
	if logSink == nil {
		return nil
	}
	err := logSink.Close()
	logSink = nil
	return err
}
