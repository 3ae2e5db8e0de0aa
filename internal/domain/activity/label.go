// Package activity turns a noisy per-frame pose label stream into a
// debounced activity text.
package activity

// Label identifies one running pose known to the classifier.
type Label uint8

// Known labels. NormalRun is the fallback used when no specific pose
// dominates and for names outside the enumeration.
const (
	ForrestGump Label = iota
	ForwardRun
	GirlRun
	Naruto
	NormalRun
	ShoulderRun
	SitWithRun
	UnswingingArm

	labelCount
)

// Default is the fallback label.
const Default = NormalRun

var labelNames = [labelCount]string{
	ForrestGump:   "ForrestGump",
	ForwardRun:    "ForwardRun",
	GirlRun:       "GirlRun",
	Naruto:        "Naruto",
	NormalRun:     "NormalRun",
	ShoulderRun:   "ShoulderRun",
	SitWithRun:    "SitWithRun",
	UnswingingArm: "UnswingingArm",
}

var labelsByName = func() map[string]Label {
	m := make(map[string]Label, labelCount)
	for i, name := range labelNames {
		m[name] = Label(i)
	}
	return m
}()

// String returns the classifier name of the label.
func (l Label) String() string {
	if l >= labelCount {
		return labelNames[Default]
	}
	return labelNames[l]
}

// IsDefault reports whether l is the fallback label.
func (l Label) IsDefault() bool { return l == Default }

// ParseLabel looks up a classifier label name. The boolean is false for
// names outside the enumeration, in which case Default is returned.
func ParseLabel(name string) (Label, bool) {
	if l, ok := labelsByName[name]; ok {
		return l, true
	}
	return Default, false
}

// Labels returns every known label in enumeration order.
func Labels() []Label {
	out := make([]Label, labelCount)
	for i := range out {
		out[i] = Label(i)
	}
	return out
}
