package service

import (
	"time"

	"github.com/okian/posemon/internal/adapters/sink"
	"github.com/okian/posemon/internal/domain/activity"
	"github.com/okian/posemon/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of workers, one per queue partition.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the total capacity of the frame queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many event ids are remembered for idempotency.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithShardCount sets the number of lock shards of the session store.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithAutoStart opens sessions on their first frame.
func WithAutoStart(enabled bool) Option {
	return func(s *Service) {
		s.autoStart = enabled
	}
}

// WithIdleTimeout ends sessions that received no frame for d. Zero disables
// the sweeper.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.idleTimeout = d
		}
	}
}

// WithStabilizerOptions configures the stabilizer of every session.
func WithStabilizerOptions(opts ...activity.Option) Option {
	return func(s *Service) {
		s.stabilizerOpts = append(s.stabilizerOpts, opts...)
	}
}

// WithSink adds a display sink next to the websocket hub.
func WithSink(sk sink.Sink) Option {
	return func(s *Service) {
		if sk != nil {
			s.extraSinks = append(s.extraSinks, sk)
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
