package types

import "errors"

// Limits applied to submitted frames.
const (
	MaxSessionIDLength = 128
	MaxLabels          = 64
)

// ErrInvalidFrame reports a frame that cannot be applied to any session.
var ErrInvalidFrame = errors.New("invalid frame")
