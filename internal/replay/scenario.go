package replay

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/okian/posemon/internal/domain/activity"
	"github.com/okian/posemon/internal/domain/types"
)

// Scenario names a scripted pattern of classifier output.
type Scenario string

// Known scenarios.
const (
	// ScenarioSteady holds one label with a confident person throughout.
	ScenarioSteady Scenario = "steady"
	// ScenarioFlicker alternates between two labels with unconfident frames mixed in.
	ScenarioFlicker Scenario = "flicker"
	// ScenarioDropout loses the person for the middle third of the session.
	ScenarioDropout Scenario = "dropout"
	// ScenarioSwitch changes label halfway through.
	ScenarioSwitch Scenario = "switch"
)

// Camera frame spacing used for generated timestamps.
const frameInterval = 33 * time.Millisecond

// Score ranges.
const (
	personMin    = 0.5
	personRange  = 0.49
	lowMin       = 0.05
	lowRange     = 0.25
	dominantMin  = 0.5
	dominantSpan = 0.45
	noiseRange   = 0.2
)

// Scenarios returns every scenario in generation order.
func Scenarios() []Scenario {
	return []Scenario{ScenarioSteady, ScenarioFlicker, ScenarioDropout, ScenarioSwitch}
}

// Generate builds cfg.Sessions sessions of cfg.Frames frames each, cycling
// through the scenarios. The expected text of each session is computed with
// a local stabilizer.
func Generate(cfg *Config, start time.Time) []Session {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	scenarios := Scenarios()
	out := make([]Session, cfg.Sessions)
	for i := range out {
		sc := scenarios[i%len(scenarios)]
		id := "replay-" + string(sc) + "-" + uuid.NewString()
		frames := sc.frames(rng, id, cfg.Frames, start)
		out[i] = Session{
			ID:       id,
			Scenario: sc,
			Frames:   frames,
			Expected: Expected(frames, cfg.StabilizerOptions...),
		}
	}
	return out
}

// Expected returns the display text a fresh stabilizer shows after frames.
// Invalid frames are skipped, as the service would reject them.
func Expected(frames []types.FrameRequest, opts ...activity.Option) string {
	st := activity.New(opts...)
	for i := range frames {
		e, err := frames[i].ToFrameEvent("")
		if err != nil {
			continue
		}
		st.Observe(e.Observation())
	}
	return st.Text()
}

func (s Scenario) frames(rng *rand.Rand, sessionID string, n int, start time.Time) []types.FrameRequest {
	primary := pickLabel(rng, activity.Default)
	secondary := pickLabel(rng, primary)

	out := make([]types.FrameRequest, n)
	for i := range out {
		f := types.FrameRequest{
			EventID:   uuid.NewString(),
			SessionID: sessionID,
			Seq:       uint64(i + 1),
			TS:        start.Add(time.Duration(i) * frameInterval),
		}
		switch s {
		case ScenarioSteady:
			f.PersonScore, f.Labels = detected(rng, primary)
		case ScenarioFlicker:
			label := primary
			if rng.IntN(2) == 0 {
				label = secondary
			}
			f.PersonScore, f.Labels = detected(rng, label)
			if rng.IntN(4) == 0 {
				low := lowMin + rng.Float64()*lowRange
				f.PersonScore = &low
			}
		case ScenarioDropout:
			if i >= n/3 && i < 2*n/3 {
				if rng.IntN(2) == 0 {
					low := lowMin + rng.Float64()*lowRange
					f.PersonScore = &low
				}
				break
			}
			f.PersonScore, f.Labels = detected(rng, primary)
		case ScenarioSwitch:
			label := primary
			if i >= n/2 {
				label = secondary
			}
			f.PersonScore, f.Labels = detected(rng, label)
		}
		out[i] = f
	}
	return out
}

// pickLabel returns a random non-default label other than not.
func pickLabel(rng *rand.Rand, not activity.Label) activity.Label {
	candidates := make([]activity.Label, 0, len(activity.Labels()))
	for _, l := range activity.Labels() {
		if !l.IsDefault() && l != not {
			candidates = append(candidates, l)
		}
	}
	return candidates[rng.IntN(len(candidates))]
}

// detected returns a confident person score and classifier output where
// dominant scores strictly highest.
func detected(rng *rand.Rand, dominant activity.Label) (*float64, []types.LabelScore) {
	ps := personMin + rng.Float64()*personRange
	labels := make([]types.LabelScore, 0, len(activity.Labels()))
	for _, l := range activity.Labels() {
		score := rng.Float64() * noiseRange
		if l == dominant {
			score = dominantMin + rng.Float64()*dominantSpan
		}
		labels = append(labels, types.LabelScore{Label: l.String(), Score: score})
	}
	return &ps, labels
}
