package activity

import "math"

// NoPersonText is shown once too many consecutive frames lack a confident
// detection.
const NoPersonText = "No Person or Not Run"

const tentativePrefix = "May "

// Status describes what a frame did to the display.
type Status uint8

// Display statuses.
const (
	StatusUnchanged Status = iota
	StatusTentative
	StatusConfirmed
	StatusNoPerson
)

var statusNames = [...]string{
	StatusUnchanged: "unchanged",
	StatusTentative: "tentative",
	StatusConfirmed: "confirmed",
	StatusNoPerson:  "no_person",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Score is one (label, score) pair produced by the pose classifier.
type Score struct {
	Label string
	Score float64
}

// Observation is the classification result for one camera frame.
// PersonScore is nil when the detector produced no score and Labels is
// empty when no person was classified.
type Observation struct {
	PersonScore *float64
	Labels      []Score
}

// DisplayText is the display state after a frame.
// Text holds the previously shown text when Status is StatusUnchanged.
type DisplayText struct {
	Text   string
	Status Status
	Label  Label
}

// Updated reports whether the frame wrote to the display.
func (d DisplayText) Updated() bool { return d.Status != StatusUnchanged }

// State is a copy of the stabilizer internals.
type State struct {
	Counters map[string]int
	Missing  int
	Register Label
	Text     string
}

// Stabilizer debounces the dominant pose label of consecutive frames.
//
// It is single-writer: callers serialize Observe and Reset for one
// session. Nothing inside blocks or allocates on the hot path.
type Stabilizer struct {
	confidence     float64
	missingLimit   int
	tentativeAfter int
	confirmAfter   int
	countFirst     bool

	counters [labelCount]int
	missing  int
	register Label
	text     string
}

// New creates a Stabilizer in the fresh session state.
func New(opts ...Option) *Stabilizer {
	s := &Stabilizer{
		confidence:     DefaultConfidenceThreshold,
		missingLimit:   DefaultMissingLimit,
		tentativeAfter: DefaultTentativeAfter,
		confirmAfter:   DefaultConfirmAfter,
		countFirst:     true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

// Reset restores the fresh session state. Thresholds are kept.
func (s *Stabilizer) Reset() {
	s.counters = [labelCount]int{}
	s.missing = 0
	s.register = Default
	s.text = ""
}

// Observe feeds one frame and returns the resulting display text.
func (s *Stabilizer) Observe(obs Observation) DisplayText {
	if !s.confident(obs) {
		s.missing++
		if s.missing > s.missingLimit {
			s.text = NoPersonText
			return DisplayText{Text: s.text, Status: StatusNoPerson, Label: s.register}
		}
		return s.unchanged()
	}
	s.missing = 0

	dominant := dominantLabel(obs.Labels)
	for i := range s.counters {
		if Label(i) != dominant {
			s.counters[i] = 0
		}
	}
	switch {
	case dominant == s.register:
		s.counters[dominant]++
	case s.countFirst:
		s.counters[dominant] = 1
	}
	s.register = dominant

	count := s.counters[dominant]
	switch {
	case count > s.confirmAfter:
		s.text = dominant.String()
		return DisplayText{Text: s.text, Status: StatusConfirmed, Label: dominant}
	case count > s.tentativeAfter && !dominant.IsDefault():
		s.text = tentativePrefix + dominant.String()
		return DisplayText{Text: s.text, Status: StatusTentative, Label: dominant}
	}
	return s.unchanged()
}

// Text returns the currently displayed text.
func (s *Stabilizer) Text() string { return s.text }

// Missing returns the number of consecutive unconfident frames.
func (s *Stabilizer) Missing() int { return s.missing }

// State returns a copy of the internal counters.
func (s *Stabilizer) State() State {
	counters := make(map[string]int, labelCount)
	for i, c := range s.counters {
		counters[Label(i).String()] = c
	}
	return State{
		Counters: counters,
		Missing:  s.missing,
		Register: s.register,
		Text:     s.text,
	}
}

func (s *Stabilizer) unchanged() DisplayText {
	return DisplayText{Text: s.text, Status: StatusUnchanged, Label: s.register}
}

// confident reports whether obs carries a detection worth counting.
// Labels without a score, or a score without labels, are treated as no
// detection.
func (s *Stabilizer) confident(obs Observation) bool {
	if obs.PersonScore == nil || len(obs.Labels) == 0 {
		return false
	}
	return *obs.PersonScore > s.confidence
}

// dominantLabel returns the label with the highest score. The first
// occurrence wins ties and NaN never wins.
func dominantLabel(scores []Score) Label {
	best := 0
	bestScore := math.Inf(-1)
	for i, sc := range scores {
		v := sc.Score
		if math.IsNaN(v) {
			continue
		}
		if v > bestScore {
			best, bestScore = i, v
		}
	}
	l, _ := ParseLabel(scores[best].Label)
	return l
}
