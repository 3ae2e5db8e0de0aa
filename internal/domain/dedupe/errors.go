package dedupe

import "errors"

// ErrDuplicate reports a frame whose event id was already recorded.
var ErrDuplicate = errors.New("duplicate frame")
