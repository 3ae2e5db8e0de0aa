// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and POSEMON_ env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/okian/posemon/internal/domain/activity"
	"github.com/okian/posemon/pkg/logger"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text, json or pretty.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory frame queue across all partitions.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of queue partitions, one worker each.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the number of frame ids remembered for redelivery checks.
	DedupeSize int `koanf:"dedupe_size"`

	// AutoStartSessions opens a session on its first frame.
	AutoStartSessions bool `koanf:"auto_start_sessions"`

	// SessionIdleTimeoutS ends sessions without frames for this many seconds.
	// Zero disables sweeping.
	SessionIdleTimeoutS int `koanf:"session_idle_timeout_s"`

	// Stabilizer thresholds.
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	MissingLimit        int     `koanf:"missing_limit"`
	TentativeAfter      int     `koanf:"tentative_after"`
	ConfirmAfter        int     `koanf:"confirm_after"`
	CountFirstFrame     bool    `koanf:"count_first_frame"`

	// MQTTBroker enables the MQTT transport when set, e.g. "tcp://localhost:1883".
	MQTTBroker      string `koanf:"mqtt_broker"`
	MQTTClientID    string `koanf:"mqtt_client_id"`
	MQTTTopicPrefix string `koanf:"mqtt_topic_prefix"`
	MQTTQoS         int    `koanf:"mqtt_qos"`
	// MQTTSubscribeFrames consumes frame events from the broker as well as
	// publishing display updates.
	MQTTSubscribeFrames bool `koanf:"mqtt_subscribe_frames"`

	// BridgeCommand starts an external classifier streaming results over stdout.
	BridgeCommand []string `koanf:"bridge_command"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           logger.FormatText,
		Addr:                ":9080",
		QueueSize:           10_000,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          100_000,
		AutoStartSessions:   true,
		SessionIdleTimeoutS: 300,
		ConfidenceThreshold: activity.DefaultConfidenceThreshold,
		MissingLimit:        activity.DefaultMissingLimit,
		TentativeAfter:      activity.DefaultTentativeAfter,
		ConfirmAfter:        activity.DefaultConfirmAfter,
		CountFirstFrame:     true,
		MQTTClientID:        "posemon",
		MQTTTopicPrefix:     "posemon",
		MQTTQoS:             1,
	}
}

// StabilizerOptions translates the thresholds into stabilizer options.
func (c *Config) StabilizerOptions() []activity.Option {
	return []activity.Option{
		activity.WithConfidenceThreshold(c.ConfidenceThreshold),
		activity.WithMissingLimit(c.MissingLimit),
		activity.WithTentativeAfter(c.TentativeAfter),
		activity.WithConfirmAfter(c.ConfirmAfter),
		activity.WithCountFirstFrame(c.CountFirstFrame),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.SessionIdleTimeoutS < 0:
		return fmt.Errorf("%w: session_idle_timeout_s must not be negative", ErrInvalidConfig)
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1:
		return fmt.Errorf("%w: confidence_threshold must be in [0,1)", ErrInvalidConfig)
	case c.MissingLimit < 0 || c.TentativeAfter < 0 || c.ConfirmAfter < 0:
		return fmt.Errorf("%w: stabilizer thresholds must not be negative", ErrInvalidConfig)
	case c.ConfirmAfter < c.TentativeAfter:
		return fmt.Errorf("%w: confirm_after must be >= tentative_after", ErrInvalidConfig)
	case c.MQTTQoS < 0 || c.MQTTQoS > 2:
		return fmt.Errorf("%w: mqtt_qos must be 0, 1 or 2", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case logger.FormatText, logger.FormatJSON, logger.FormatPretty:
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
