package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"askdb/cmd"
)

// setupLogger creates the application logger. Logs are JSON, rotated by
// lumberjack, and optionally mirrored to stderr.
func setupLogger(path string, mirrorStderr bool) (*slog.Logger, error) {
	var out io.Writer = io.Discard
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,   // Megabytes
			MaxBackups: 5,    // Files
			MaxAge:     30,   // Days
			Compress:   true, // gzip
		}
	}
	if mirrorStderr {
		out = io.MultiWriter(out, os.Stderr)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true, // Include file:line information
	})

	logger := slog.New(handler)
	logger.Info("Application started", "version", "1.0", "log_file", path)
	return logger, nil
}

func main() {
	cmd.SetupLogger = setupLogger

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
