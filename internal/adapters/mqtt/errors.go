package mqtt

import "errors"

// Sentinel kinds for MQTT errors.
var (
	ErrNotConnected = errors.New("mqtt not connected")
	ErrTimeout      = errors.New("mqtt operation timed out")
)
