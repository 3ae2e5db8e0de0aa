package repository

import (
	"time"

	"github.com/okian/posemon/internal/domain/activity"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithShardCount sets the number of lock shards.
func WithShardCount(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithStabilizerOptions configures the stabilizer created for every session.
func WithStabilizerOptions(opts ...activity.Option) Option {
	return func(s *MemoryStore) {
		s.stabilizerOpts = append(s.stabilizerOpts, opts...)
	}
}

// WithAutoStart opens sessions on their first frame instead of rejecting
// frames for unknown sessions.
func WithAutoStart(enabled bool) Option {
	return func(s *MemoryStore) {
		s.autoStart = enabled
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
