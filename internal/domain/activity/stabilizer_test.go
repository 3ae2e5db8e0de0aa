package activity_test

import (
	"math"
	"testing"

	"github.com/okian/posemon/internal/domain/activity"
	. "github.com/smartystreets/goconvey/convey"
)

func score(v float64) *float64 { return &v }

// frame builds a confident observation dominated by label.
func frame(label string) activity.Observation {
	return activity.Observation{
		PersonScore: score(0.9),
		Labels: []activity.Score{
			{Label: label, Score: 0.8},
			{Label: "NormalRun", Score: 0.1},
			{Label: "Naruto", Score: 0.05},
		},
	}
}

func missing(v float64) activity.Observation {
	return activity.Observation{PersonScore: score(v)}
}

func feed(s *activity.Stabilizer, obs ...activity.Observation) []activity.DisplayText {
	out := make([]activity.DisplayText, 0, len(obs))
	for _, o := range obs {
		out = append(out, s.Observe(o))
	}
	return out
}

func repeat(obs activity.Observation, n int) []activity.Observation {
	out := make([]activity.Observation, n)
	for i := range out {
		out[i] = obs
	}
	return out
}

func TestStabilizer_Confirmation(t *testing.T) {
	Convey("Given a fresh stabilizer", t, func() {
		s := activity.New()

		Convey("When the same non-default label dominates six frames", func() {
			got := feed(s, repeat(frame("Naruto"), 6)...)

			Convey("Then frames one to three leave the display untouched", func() {
				for _, d := range got[:3] {
					So(d.Status, ShouldEqual, activity.StatusUnchanged)
					So(d.Text, ShouldEqual, "")
					So(d.Updated(), ShouldBeFalse)
				}
			})

			Convey("And frames four and five are tentative", func() {
				So(got[3].Text, ShouldEqual, "May Naruto")
				So(got[3].Status, ShouldEqual, activity.StatusTentative)
				So(got[4].Text, ShouldEqual, "May Naruto")
			})

			Convey("And the sixth frame confirms the label", func() {
				So(got[5].Text, ShouldEqual, "Naruto")
				So(got[5].Status, ShouldEqual, activity.StatusConfirmed)
				So(got[5].Label, ShouldEqual, activity.Naruto)
			})
		})

		Convey("When the run continues past confirmation", func() {
			got := feed(s, repeat(frame("GirlRun"), 9)...)

			Convey("Then the confirmed text is re-emitted on every frame", func() {
				for _, d := range got[5:] {
					So(d.Text, ShouldEqual, "GirlRun")
					So(d.Updated(), ShouldBeTrue)
				}
			})
		})

		Convey("When the default label dominates six frames", func() {
			got := feed(s, repeat(frame("NormalRun"), 6)...)

			Convey("Then there is no tentative tier", func() {
				for _, d := range got[:5] {
					So(d.Status, ShouldEqual, activity.StatusUnchanged)
					So(d.Text, ShouldEqual, "")
				}
				So(got[5].Text, ShouldEqual, "NormalRun")
				So(got[5].Status, ShouldEqual, activity.StatusConfirmed)
			})
		})
	})
}

func TestStabilizer_Debounce(t *testing.T) {
	Convey("Given a fresh stabilizer", t, func() {
		s := activity.New()

		Convey("When the dominant label flickers every frame", func() {
			var seq []activity.Observation
			for i := 0; i < 20; i++ {
				if i%2 == 0 {
					seq = append(seq, frame("ForwardRun"))
				} else {
					seq = append(seq, frame("ShoulderRun"))
				}
			}
			got := feed(s, seq...)

			Convey("Then no tentative or confirmed text is ever produced", func() {
				for _, d := range got {
					So(d.Updated(), ShouldBeFalse)
				}
			})

			Convey("And no counter exceeds one", func() {
				for _, c := range s.State().Counters {
					So(c, ShouldBeLessThanOrEqualTo, 1)
				}
			})
		})

		Convey("When A dominates three frames and then B", func() {
			feed(s, frame("Naruto"), frame("Naruto"), frame("Naruto"), frame("SitWithRun"))
			st := s.State()

			Convey("Then A is reset and B starts a fresh streak", func() {
				So(st.Counters["Naruto"], ShouldEqual, 0)
				So(st.Counters["SitWithRun"], ShouldEqual, 1)
				So(st.Register, ShouldEqual, activity.SitWithRun)
			})
		})

		Convey("When a confirmed label is interrupted by another label", func() {
			feed(s, repeat(frame("Naruto"), 6)...)
			d := s.Observe(frame("ForrestGump"))

			Convey("Then the confirmed text stays on display", func() {
				So(d.Status, ShouldEqual, activity.StatusUnchanged)
				So(d.Text, ShouldEqual, "Naruto")
			})

			Convey("And at most one counter is non-zero", func() {
				nonZero := 0
				for _, c := range s.State().Counters {
					if c != 0 {
						nonZero++
					}
				}
				So(nonZero, ShouldEqual, 1)
			})
		})
	})
}

func TestStabilizer_NoPerson(t *testing.T) {
	Convey("Given a fresh stabilizer", t, func() {
		s := activity.New()

		Convey("When seven frames have a low person score", func() {
			got := feed(s, repeat(missing(0.1), 7)...)

			Convey("Then the no-person text appears from the sixth frame on", func() {
				for _, d := range got[:5] {
					So(d.Status, ShouldEqual, activity.StatusUnchanged)
					So(d.Text, ShouldEqual, "")
				}
				So(got[5].Text, ShouldEqual, activity.NoPersonText)
				So(got[6].Text, ShouldEqual, activity.NoPersonText)
				So(got[6].Status, ShouldEqual, activity.StatusNoPerson)
			})
		})

		Convey("When the score is exactly the threshold", func() {
			feed(s, repeat(missing(0.3), 6)...)

			Convey("Then the frame is not confident", func() {
				So(s.Text(), ShouldEqual, activity.NoPersonText)
			})
		})

		Convey("When the person score is absent", func() {
			obs := activity.Observation{Labels: frame("Naruto").Labels}
			feed(s, repeat(obs, 6)...)

			Convey("Then it counts as missing and labels are ignored", func() {
				So(s.Text(), ShouldEqual, activity.NoPersonText)
				So(s.State().Counters["Naruto"], ShouldEqual, 0)
			})
		})

		Convey("When a confident score arrives without labels", func() {
			obs := activity.Observation{PersonScore: score(0.95)}
			got := feed(s, repeat(obs, 6)...)

			Convey("Then it falls back to the missing path without panicking", func() {
				So(got[5].Text, ShouldEqual, activity.NoPersonText)
			})
		})

		Convey("When the person score is NaN", func() {
			got := feed(s, repeat(missing(math.NaN()), 6)...)

			Convey("Then the frame is not confident", func() {
				So(got[5].Status, ShouldEqual, activity.StatusNoPerson)
			})
		})

		Convey("When missing frames interrupt a streak", func() {
			feed(s, repeat(frame("Naruto"), 3)...)
			feed(s, repeat(missing(0.0), 2)...)
			got := s.Observe(frame("Naruto"))

			Convey("Then the streak and register survive", func() {
				So(s.State().Counters["Naruto"], ShouldEqual, 4)
				So(got.Text, ShouldEqual, "May Naruto")
			})
		})

		Convey("When a confident frame arrives before the limit", func() {
			feed(s, repeat(missing(0.1), 5)...)
			s.Observe(frame("Naruto"))
			got := feed(s, repeat(missing(0.1), 5)...)

			Convey("Then the missing counter starts over", func() {
				for _, d := range got {
					So(d.Status, ShouldEqual, activity.StatusUnchanged)
				}
				So(s.State().Missing, ShouldEqual, 5)
			})
		})
	})
}

func TestStabilizer_Dominance(t *testing.T) {
	Convey("Given a fresh stabilizer", t, func() {
		s := activity.New()

		Convey("When two labels tie", func() {
			obs := activity.Observation{
				PersonScore: score(0.8),
				Labels: []activity.Score{
					{Label: "GirlRun", Score: 0.5},
					{Label: "Naruto", Score: 0.5},
				},
			}
			s.Observe(obs)

			Convey("Then the first occurrence wins", func() {
				So(s.State().Register, ShouldEqual, activity.GirlRun)
			})
		})

		Convey("When the top label is outside the enumeration", func() {
			got := feed(s, repeat(frame("Moonwalk"), 6)...)

			Convey("Then it folds into the default label", func() {
				So(s.State().Register, ShouldEqual, activity.NormalRun)
				So(got[5].Text, ShouldEqual, "NormalRun")
			})
		})

		Convey("When a score is NaN", func() {
			obs := activity.Observation{
				PersonScore: score(0.8),
				Labels: []activity.Score{
					{Label: "Naruto", Score: math.NaN()},
					{Label: "UnswingingArm", Score: 0.2},
				},
			}
			s.Observe(obs)

			Convey("Then it never dominates", func() {
				So(s.State().Register, ShouldEqual, activity.UnswingingArm)
			})
		})

		Convey("When labels are out of score order", func() {
			obs := activity.Observation{
				PersonScore: score(0.8),
				Labels: []activity.Score{
					{Label: "NormalRun", Score: 0.1},
					{Label: "ForwardRun", Score: 0.7},
					{Label: "Naruto", Score: 0.2},
				},
			}
			s.Observe(obs)

			Convey("Then the highest score dominates", func() {
				So(s.State().Register, ShouldEqual, activity.ForwardRun)
			})
		})
	})
}

func TestStabilizer_Reset(t *testing.T) {
	Convey("Given a stabilizer with accumulated state", t, func() {
		s := activity.New()
		feed(s, repeat(frame("Naruto"), 7)...)
		feed(s, repeat(missing(0.1), 2)...)

		Convey("When it is reset", func() {
			s.Reset()

			Convey("Then it matches a fresh instance", func() {
				fresh := activity.New()
				So(s.State(), ShouldResemble, fresh.State())
			})

			Convey("And it behaves like a fresh instance", func() {
				seq := append(repeat(frame("ShoulderRun"), 5), repeat(missing(0.2), 7)...)
				fresh := activity.New()
				So(feed(s, seq...), ShouldResemble, feed(fresh, seq...))
			})
		})
	})
}

func TestStabilizer_Options(t *testing.T) {
	Convey("Given a stabilizer that counts only repeats", t, func() {
		s := activity.New(activity.WithCountFirstFrame(false))

		Convey("When a non-default label dominates seven frames", func() {
			got := feed(s, repeat(frame("Naruto"), 7)...)

			Convey("Then every threshold is reached one frame later", func() {
				So(got[3].Status, ShouldEqual, activity.StatusUnchanged)
				So(got[4].Text, ShouldEqual, "May Naruto")
				So(got[5].Text, ShouldEqual, "May Naruto")
				So(got[6].Text, ShouldEqual, "Naruto")
			})
		})

		Convey("When the default label dominates six frames", func() {
			got := feed(s, repeat(frame("NormalRun"), 6)...)

			Convey("Then it confirms on the sixth frame as the register starts on it", func() {
				So(got[4].Status, ShouldEqual, activity.StatusUnchanged)
				So(got[5].Text, ShouldEqual, "NormalRun")
			})
		})
	})

	Convey("Given custom thresholds", t, func() {
		s := activity.New(
			activity.WithConfidenceThreshold(0.5),
			activity.WithMissingLimit(1),
			activity.WithTentativeAfter(1),
			activity.WithConfirmAfter(2),
		)

		Convey("Then they drive every transition", func() {
			So(s.Observe(frame("Naruto")).Status, ShouldEqual, activity.StatusUnchanged)
			So(s.Observe(frame("Naruto")).Text, ShouldEqual, "May Naruto")
			So(s.Observe(frame("Naruto")).Text, ShouldEqual, "Naruto")
			So(s.Observe(missing(0.4)).Status, ShouldEqual, activity.StatusUnchanged)
			So(s.Observe(missing(0.4)).Text, ShouldEqual, activity.NoPersonText)
		})
	})

	Convey("Given out-of-range options", t, func() {
		s := activity.New(
			activity.WithConfidenceThreshold(2),
			activity.WithMissingLimit(-1),
		)

		Convey("Then the defaults are kept", func() {
			got := feed(s, repeat(missing(0.31), 1)...)
			So(got[0].Status, ShouldEqual, activity.StatusUnchanged)
			So(s.State().Missing, ShouldEqual, 1)
		})
	})
}
