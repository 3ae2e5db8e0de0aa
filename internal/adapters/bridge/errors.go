package bridge

import "errors"

// Sentinel kinds for bridge errors.
var (
	ErrFrameTooLarge = errors.New("frame exceeds size limit")
	ErrNoCommand     = errors.New("bridge command is empty")
)
