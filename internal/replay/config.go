package replay

import (
	"io"
	"time"

	"github.com/okian/posemon/internal/domain/activity"
	"github.com/okian/posemon/internal/domain/types"
)

// Config holds configuration for a replay run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Sessions   int           // Number of sessions to generate
	Frames     int           // Frames per session
	Workers    int           // Sessions submitted concurrently
	Timeout    time.Duration // HTTP request timeout
	Settle     time.Duration // How long to wait for the service to drain
	Seed       uint64        // Seed of the frame generator; 0 picks one
	Duplicates bool          // Resend every tenth frame to exercise deduplication
	Cleanup    bool          // End the sessions after verification
	OutputFile string        // Output file for generated sessions
	LogFile    string        // Log file for run output
	Verbose    bool          // Enable verbose logging

	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer

	// StabilizerOptions must match the service configuration.
	StabilizerOptions []activity.Option
}

// Session is one generated camera session and the text the service should
// show once all frames are applied.
type Session struct {
	ID       string               `json:"session_id"`
	Scenario Scenario             `json:"scenario"`
	Frames   []types.FrameRequest `json:"frames"`
	Expected string               `json:"expected_text"`
}

// AckResponse represents the response from frame submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	SessionsGenerated  int
	FramesSubmitted    int
	FramesAccepted     int
	FramesDuplicate    int
	FramesFailed       int
	Retries            int
	SessionsVerified   int
	SessionsMismatched int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
