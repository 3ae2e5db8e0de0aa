package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/okian/posemon/internal/domain/types"
	"github.com/okian/posemon/pkg/logger"
)

// Runner configuration constants.
const (
	maxRetries          = 50
	retryBackoff        = 10 * time.Millisecond
	maxRetryBackoff     = 500 * time.Millisecond
	pollInterval        = 50 * time.Millisecond
	duplicateEvery      = 10
	directoryPermission = 0750
	filePermission      = 0600
	replayCamera        = "replay"
	percentage          = 100
)

// Run generates sessions, submits them to the service and verifies the
// display text the service settles on.
func Run(ctx context.Context, cfg *Config) error {
	applyDefaults(cfg)
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("replay")

	log.Info(ctx, "starting replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("frames", cfg.Frames),
		logger.Int("workers", cfg.Workers),
		logger.Bool("duplicates", cfg.Duplicates),
	)

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	sessions := Generate(cfg, time.Now())
	stats.SessionsGenerated = len(sessions)

	if err := submit(ctx, cfg, client, sessions, stats); err != nil {
		return fmt.Errorf("frame submission failed: %w", err)
	}

	verifyErr := verify(ctx, cfg, client, sessions, stats)

	if cfg.OutputFile != "" {
		if err := saveSessions(cfg.OutputFile, sessions); err != nil {
			log.Warn(ctx, "failed to save sessions to file", logger.Error(err))
		} else {
			log.Info(ctx, "sessions saved to file", logger.String("filename", cfg.OutputFile))
		}
	}
	if cfg.Cleanup {
		for i := range sessions {
			if err := client.EndSession(ctx, sessions[i].ID); err != nil {
				log.Warn(ctx, "failed to end session", logger.String("session_id", sessions[i].ID), logger.Error(err))
			}
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if verifyErr != nil {
		return fmt.Errorf("verification failed: %w", verifyErr)
	}
	log.Info(ctx, "replay completed successfully")
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 30 * time.Second
	}
}

type counters struct {
	submitted, accepted, duplicate, failed, retries atomic.Int64
}

// submit posts the sessions concurrently. Frames of one session are posted
// in order by a single worker.
func submit(ctx context.Context, cfg *Config, client *Client, sessions []Session, stats *Stats) error {
	total := 0
	for i := range sessions {
		total += len(sessions[i].Frames)
	}
	bar := newProgress(cfg, total)
	defer bar.Finish()

	var c counters
	jobs := make(chan *Session, cfg.Workers)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				submitSession(ctx, cfg, client, s, &c, bar)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range sessions {
			select {
			case <-ctx.Done():
				return
			case jobs <- &sessions[i]:
			}
		}
	}()
	wg.Wait()

	stats.FramesSubmitted = int(c.submitted.Load())
	stats.FramesAccepted = int(c.accepted.Load())
	stats.FramesDuplicate = int(c.duplicate.Load())
	stats.FramesFailed = int(c.failed.Load())
	stats.Retries = int(c.retries.Load())
	return ctx.Err()
}

func submitSession(ctx context.Context, cfg *Config, client *Client, s *Session, c *counters, bar *pb.ProgressBar) {
	log := logger.Get().Named("replay")
	if err := client.StartSession(ctx, s.ID, replayCamera); err != nil {
		log.Warn(ctx, "failed to start session", logger.String("session_id", s.ID), logger.Error(err))
	}
	for i := range s.Frames {
		if ctx.Err() != nil {
			return
		}
		outcome := postWithRetry(ctx, client, &s.Frames[i], c)
		c.submitted.Add(1)
		switch outcome {
		case outcomeAccepted:
			c.accepted.Add(1)
		case outcomeDuplicate:
			c.duplicate.Add(1)
		default:
			c.failed.Add(1)
			if cfg.Verbose {
				log.Warn(ctx, "frame not accepted",
					logger.String("session_id", s.ID),
					logger.Uint64("seq", s.Frames[i].Seq),
					logger.String("outcome", outcome),
				)
			}
		}
		bar.Increment()

		if cfg.Duplicates && (i+1)%duplicateEvery == 0 {
			c.submitted.Add(1)
			if postWithRetry(ctx, client, &s.Frames[i], c) == outcomeDuplicate {
				c.duplicate.Add(1)
			} else {
				c.failed.Add(1)
			}
		}
	}
}

func postWithRetry(ctx context.Context, client *Client, f *types.FrameRequest, c *counters) string {
	backoff := retryBackoff
	for attempt := 0; ; attempt++ {
		outcome, err := client.PostFrame(ctx, f)
		if outcome != outcomeBackpressure || attempt >= maxRetries {
			if err != nil {
				return outcomeFailed
			}
			return outcome
		}
		c.retries.Add(1)
		select {
		case <-ctx.Done():
			return outcomeFailed
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

// verify waits for every session to apply all its frames and compares the
// displayed text with the locally computed one.
func verify(ctx context.Context, cfg *Config, client *Client, sessions []Session, stats *Stats) error {
	log := logger.Get().Named("replay")
	deadline := time.Now().Add(cfg.Settle)
	unsettled := 0

	for i := range sessions {
		s := &sessions[i]
		var got types.Session
		var err error
		for {
			got, err = client.Session(ctx, s.ID)
			if err == nil && got.Frames >= uint64(len(s.Frames)) {
				break
			}
			if time.Now().After(deadline) || ctx.Err() != nil {
				break
			}
			time.Sleep(pollInterval)
		}
		switch {
		case err != nil:
			unsettled++
			log.Warn(ctx, "session not readable", logger.String("session_id", s.ID), logger.Error(err))
			continue
		case got.Frames < uint64(len(s.Frames)):
			unsettled++
			log.Warn(ctx, "session did not settle",
				logger.String("session_id", s.ID),
				logger.Uint64("frames", got.Frames),
				logger.Int("expected", len(s.Frames)),
			)
		}

		stats.SessionsVerified++
		if got.Text != s.Expected {
			stats.SessionsMismatched++
			log.Warn(ctx, "display text mismatch",
				logger.String("session_id", s.ID),
				logger.String("scenario", string(s.Scenario)),
				logger.String("expected", s.Expected),
				logger.String("got", got.Text),
			)
		} else if cfg.Verbose {
			log.Info(ctx, "session verified",
				logger.String("session_id", s.ID),
				logger.String("scenario", string(s.Scenario)),
				logger.String("text", got.Text),
			)
		}
	}

	switch {
	case stats.SessionsMismatched > 0:
		return fmt.Errorf("%w: %d of %d sessions", ErrMismatch, stats.SessionsMismatched, len(sessions))
	case unsettled > 0:
		return fmt.Errorf("%w: %d of %d sessions", ErrUnsettled, unsettled, len(sessions))
	}
	return nil
}

func newProgress(cfg *Config, total int) *pb.ProgressBar {
	bar := pb.Simple.New(total)
	if cfg.Progress == nil {
		return bar
	}
	return bar.SetWriter(cfg.Progress).Start()
}

func saveSessions(filename string, sessions []Session) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var acceptRate, framesPerSecond float64
	if stats.FramesSubmitted > 0 {
		acceptRate = float64(stats.FramesAccepted) / float64(stats.FramesSubmitted) * percentage
	}
	if stats.Duration > 0 {
		framesPerSecond = float64(stats.FramesSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("sessionsGenerated", stats.SessionsGenerated),
		logger.Int("framesSubmitted", stats.FramesSubmitted),
		logger.Int("framesAccepted", stats.FramesAccepted),
		logger.Int("framesDuplicate", stats.FramesDuplicate),
		logger.Int("framesFailed", stats.FramesFailed),
		logger.Int("retries", stats.Retries),
		logger.Int("sessionsVerified", stats.SessionsVerified),
		logger.Int("sessionsMismatched", stats.SessionsMismatched),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("framesPerSecond", framesPerSecond),
	)
}
