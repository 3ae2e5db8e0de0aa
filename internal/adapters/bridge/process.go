package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/okian/posemon/internal/domain/dedupe"
	"github.com/okian/posemon/internal/domain/model"
	"github.com/okian/posemon/pkg/logger"
	"github.com/okian/posemon/pkg/metrics"
)

const (
	defaultRestartDelay    = time.Second
	defaultMaxRestartDelay = 30 * time.Second
)

// Ingestor accepts frames for processing.
type Ingestor interface {
	Ingest(ctx context.Context, e model.FrameEvent) error
}

// Consume decodes results from r and passes them to handle until r ends,
// ctx is done or the stream becomes unreadable. Undecodable messages are
// logged and skipped. A clean end of stream returns nil.
func Consume(ctx context.Context, r io.Reader, maxSize int, handle func(context.Context, Result) error) error {
	log := logger.Get().Named("bridge")
	dec := NewDecoder(r, maxSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := dec.Decode()
		var decErr *DecodeError
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case errors.As(err, &decErr):
			metrics.RecordIngest("bridge", "rejected")
			log.Warn(ctx, "skipping undecodable result", logger.Error(err))
			continue
		default:
			return fmt.Errorf("read results: %w", err)
		}
		if err := handle(ctx, res); err != nil {
			return err
		}
	}
}

// Process runs an external classifier and ingests what it writes to stdout.
type Process struct {
	command        []string
	defaultSession string
	maxFrameSize   int
	restartDelay   time.Duration
	maxRestart     time.Duration
	ingestor       Ingestor
	logger         logger.Logger
}

// ProcessOption configures a Process.
type ProcessOption func(*Process)

// WithDefaultSession names the session for results that carry none.
func WithDefaultSession(id string) ProcessOption {
	return func(p *Process) { p.defaultSession = id }
}

// WithMaxFrameSize bounds a single message.
func WithMaxFrameSize(n int) ProcessOption {
	return func(p *Process) {
		if n > 0 {
			p.maxFrameSize = n
		}
	}
}

// WithRestartDelay sets the initial and maximum delay between restarts.
func WithRestartDelay(initial, maxDelay time.Duration) ProcessOption {
	return func(p *Process) {
		if initial > 0 {
			p.restartDelay = initial
		}
		if maxDelay >= p.restartDelay {
			p.maxRestart = maxDelay
		}
	}
}

// NewProcess creates a Process for command, e.g. ["python3", "classify.py"].
func NewProcess(command []string, ingestor Ingestor, opts ...ProcessOption) (*Process, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, ErrNoCommand
	}
	p := &Process{
		command:      command,
		maxFrameSize: DefaultMaxFrameSize,
		restartDelay: defaultRestartDelay,
		maxRestart:   defaultMaxRestartDelay,
		ingestor:     ingestor,
		logger:       logger.Get().Named("bridge"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run starts the classifier once and blocks until it exits or ctx is done.
func (p *Process) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.command[0], err)
	}
	p.logger.Info(ctx, "classifier started",
		logger.String("command", strings.Join(p.command, " ")),
		logger.Int("pid", cmd.Process.Pid),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.logStderr(ctx, stderr)
	}()

	consumeErr := Consume(ctx, stdout, p.maxFrameSize, p.handle)
	if consumeErr != nil {
		// Unframed output cannot be resynchronised.
		_ = cmd.Process.Kill()
	}
	wg.Wait()
	waitErr := cmd.Wait()

	switch {
	case ctx.Err() != nil:
		p.logger.Debug(ctx, "classifier stopped")
		return ctx.Err()
	case consumeErr != nil:
		return consumeErr
	case waitErr != nil:
		return fmt.Errorf("classifier exited: %w", waitErr)
	}
	return nil
}

// Supervise runs the classifier and restarts it with exponential backoff
// until ctx is done.
func (p *Process) Supervise(ctx context.Context) {
	delay := p.restartDelay
	for {
		started := time.Now()
		err := p.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		metrics.RecordErrorByComponent("bridge", "process_exit")
		if time.Since(started) > p.maxRestart {
			delay = p.restartDelay
		}
		p.logger.Warn(ctx, "classifier exited, restarting",
			logger.Duration("delay", delay),
			logger.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.maxRestart {
			delay = p.maxRestart
		}
	}
}

func (p *Process) handle(ctx context.Context, res Result) error {
	event, err := res.ToFrameEvent(p.defaultSession)
	if err != nil {
		metrics.RecordIngest("bridge", "rejected")
		p.logger.Warn(ctx, "invalid classifier result", logger.Error(err))
		return nil
	}
	switch err := p.ingestor.Ingest(ctx, event); {
	case err == nil:
		metrics.RecordIngest("bridge", "accepted")
	case errors.Is(err, dedupe.ErrDuplicate):
		metrics.RecordIngest("bridge", "duplicate")
	default:
		metrics.RecordIngest("bridge", "rejected")
		p.logger.Error(ctx, "frame not ingested",
			logger.String("session_id", event.SessionID),
			logger.Uint64("seq", event.Seq),
			logger.Error(err),
		)
	}
	return nil
}

// logStderr maps the classifier's log lines onto our levels.
func (p *Process) logStderr(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case containsAny(line, "[ERROR]", "[CRITICAL]"):
			p.logger.Error(ctx, "classifier error", logger.String("log", line))
		case containsAny(line, "[WARNING]", "[WARN]"):
			p.logger.Warn(ctx, "classifier warning", logger.String("log", line))
		default:
			p.logger.Debug(ctx, "classifier log", logger.String("log", line))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		p.logger.Error(ctx, "error reading classifier stderr", logger.Error(err))
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
