package activity

// Default thresholds.
const (
	DefaultConfidenceThreshold = 0.3
	DefaultMissingLimit        = 5
	DefaultTentativeAfter      = 3
	DefaultConfirmAfter        = 5
)

// Option applies a configuration option to the Stabilizer.
type Option func(*Stabilizer)

// WithConfidenceThreshold sets the person score a frame must exceed to be
// counted.
func WithConfidenceThreshold(threshold float64) Option {
	return func(s *Stabilizer) {
		if threshold >= 0 && threshold < 1 {
			s.confidence = threshold
		}
	}
}

// WithMissingLimit sets how many consecutive unconfident frames are
// tolerated before the no-person text is shown.
func WithMissingLimit(limit int) Option {
	return func(s *Stabilizer) {
		if limit >= 0 {
			s.missingLimit = limit
		}
	}
}

// WithTentativeAfter sets the counter value a label must exceed before the
// "May <Label>" text is shown.
func WithTentativeAfter(n int) Option {
	return func(s *Stabilizer) {
		if n >= 0 {
			s.tentativeAfter = n
		}
	}
}

// WithConfirmAfter sets the counter value a label must exceed before it is
// confirmed.
func WithConfirmAfter(n int) Option {
	return func(s *Stabilizer) {
		if n >= 0 {
			s.confirmAfter = n
		}
	}
}

// WithCountFirstFrame controls whether the first frame of a newly dominant
// label counts towards its streak. When false, a label only accumulates on
// repeats, so every streak is one frame shorter.
func WithCountFirstFrame(enabled bool) Option {
	return func(s *Stabilizer) {
		s.countFirst = enabled
	}
}
