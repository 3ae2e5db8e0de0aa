package replay

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/posemon/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to the console and, when logFile is set,
// to that file as well. The returned func closes the file.
func SetupLogging(logFile, format string) (func(), error) {
	if logFile == "" {
		if err := logger.Init(logger.WithFormat(format)); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return func() {}, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithFormat(format), logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return func() { _ = file.Close() }, nil
}

// ShowHelp prints usage information for the replay tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `posemon replay
==============

Generates scripted camera sessions, submits their frames to a running
service and checks the activity text it settles on.

Scenarios: steady, flicker, dropout, switch.

Usage:
  go run ./cmd/replay [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -sessions int
        Number of sessions to generate (default 40)
  -frames int
        Frames per session (default 120)
  -workers int
        Sessions submitted concurrently (default CPU cores)
  -timeout duration
        HTTP request timeout (default 10s)
  -settle duration
        How long to wait for the service to apply every frame (default 30s)
  -seed uint
        Generator seed, 0 picks one (default 0)
  -duplicates
        Resend every tenth frame to exercise deduplication
  -cleanup
        End the sessions after verification
  -output string
        Write the generated sessions to this JSON file
  -log string
        Also log to this file
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Replay with default settings
  go run ./cmd/replay

  # Many short sessions with duplicate frames
  go run ./cmd/replay -sessions 500 -frames 30 -duplicates
`)
}
