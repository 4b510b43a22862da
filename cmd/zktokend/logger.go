// logger.go - Structured logging setup for the daemon.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the daemon's zerolog logger: leveled console output, plus
// an append-only log file when configured.
func NewLogger(level string, logFile string) (zerolog.Logger, func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout}}
	cleanup := func() {}
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
		cleanup = func() { file.Close() }
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().Timestamp().Logger()
	return logger, cleanup, nil
}
