package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/posemon/internal/replay"
	"github.com/okian/posemon/pkg/logger"
)

// Default configuration constants.
const (
	defaultSessions   = 40
	defaultFrames     = 120
	defaultTimeout    = 10 * time.Second
	defaultSettle     = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		sessions   = flag.Int("sessions", defaultSessions, "Number of sessions to generate")
		frames     = flag.Int("frames", defaultFrames, "Frames per session")
		workers    = flag.Int("workers", runtime.NumCPU(), "Sessions submitted concurrently")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", defaultSettle, "How long to wait for the service to apply every frame")
		seed       = flag.Uint64("seed", 0, "Generator seed, 0 picks one")
		duplicates = flag.Bool("duplicates", false, "Resend every tenth frame")
		cleanup    = flag.Bool("cleanup", false, "End the sessions after verification")
		outputFile = flag.String("output", "", "Write the generated sessions to this JSON file")
		logFile    = flag.String("log", "", "Also log to this file")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		replay.ShowHelp(os.Stdout)
		return
	}

	closeLog, err := replay.SetupLogging(*logFile, logger.FormatPretty)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closeLog()
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &replay.Config{
		BaseURL:    *baseURL,
		Sessions:   *sessions,
		Frames:     *frames,
		Workers:    *workers,
		Timeout:    *timeout,
		Settle:     *settle,
		Seed:       *seed,
		Duplicates: *duplicates,
		Cleanup:    *cleanup,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
		Progress:   os.Stderr,
	}

	if err := replay.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "replay failed", logger.Error(err))
		closeLog()
		os.Exit(1)
	}
}
