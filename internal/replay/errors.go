package replay

import "errors"

// Sentinel kinds for replay errors.
var (
	ErrUnhealthy = errors.New("service unhealthy")
	ErrStatus    = errors.New("unexpected status")
	ErrMismatch  = errors.New("display text mismatch")
	ErrUnsettled = errors.New("service did not apply every frame")
)
