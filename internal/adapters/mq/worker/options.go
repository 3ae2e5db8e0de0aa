// Package worker drains queue partitions into session stabilizers.
package worker

import (
	"github.com/okian/posemon/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithPartition selects the queue partition the worker drains.
func WithPartition(partition int) Option {
	return func(w *InMemoryWorker) {
		if partition >= 0 {
			w.partition = partition
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// withProcessedHook is used by the pool to count processed frames.
func withProcessedHook(fn func()) Option {
	return func(w *InMemoryWorker) {
		w.onProcessed = fn
	}
}
