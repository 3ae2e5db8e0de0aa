package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrClosed           = errors.New("queue closed")
	ErrFull             = errors.New("queue full")
	ErrInvalidPartition = errors.New("invalid partition")
)
