package replay_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/posemon/internal/adapters/http/api"
	service "github.com/okian/posemon/internal/app"
	"github.com/okian/posemon/internal/domain/activity"
	"github.com/okian/posemon/internal/domain/types"
	"github.com/okian/posemon/internal/replay"
	"github.com/okian/posemon/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestGenerate(t *testing.T) {
	Convey("Given a generator configuration", t, func() {
		cfg := &replay.Config{Sessions: 8, Frames: 60, Seed: 42}
		start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		sessions := replay.Generate(cfg, start)

		Convey("Then every scenario is generated in turn", func() {
			So(len(sessions), ShouldEqual, 8)
			for i, s := range sessions {
				So(s.Scenario, ShouldEqual, replay.Scenarios()[i%4])
				So(len(s.Frames), ShouldEqual, 60)
			}
		})

		Convey("And frames are numbered and timestamped in order", func() {
			for _, s := range sessions {
				for i, f := range s.Frames {
					So(f.Seq, ShouldEqual, uint64(i+1))
					So(f.SessionID, ShouldEqual, s.ID)
					So(f.EventID, ShouldNotBeEmpty)
					So(f.TS.After(start) || f.TS.Equal(start), ShouldBeTrue)
				}
			}
		})

		Convey("And a steady session confirms its label", func() {
			steady := sessions[0]
			So(steady.Scenario, ShouldEqual, replay.ScenarioSteady)
			_, known := activity.ParseLabel(steady.Expected)
			So(known, ShouldBeTrue)
			So(steady.Frames[0].Labels, ShouldNotBeEmpty)
		})

		Convey("And a dropout session ends on its label again", func() {
			dropout := sessions[2]
			So(dropout.Scenario, ShouldEqual, replay.ScenarioDropout)
			So(dropout.Expected, ShouldEqual, replay.Expected(dropout.Frames))
			So(dropout.Frames[30].Labels, ShouldBeEmpty)
		})

		Convey("And the same seed yields the same frames", func() {
			again := replay.Generate(cfg, start)
			So(*again[1].Frames[5].PersonScore, ShouldEqual, *sessions[1].Frames[5].PersonScore)
			So(again[1].Expected, ShouldEqual, sessions[1].Expected)
		})
	})
}

func TestExpected(t *testing.T) {
	Convey("Given frames without a person", t, func() {
		frames := make([]types.FrameRequest, 6)
		for i := range frames {
			frames[i] = types.FrameRequest{SessionID: "cam-1", Seq: uint64(i + 1)}
		}

		Convey("Then the expected text is the no-person text", func() {
			So(replay.Expected(frames), ShouldEqual, activity.NoPersonText)
		})

		Convey("And stabilizer options are honoured", func() {
			So(replay.Expected(frames, activity.WithMissingLimit(10)), ShouldEqual, "")
		})
	})
}

func newTestServer(t *testing.T) (*httptest.Server, *service.Service) {
	t.Helper()
	svc := service.New(service.WithWorkerCount(4), service.WithQueueSize(512))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	server := api.NewServer(svc, svc.Hub())
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		ts.Close()
		svc.Stop()
	})
	return ts, svc
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		ts, svc := newTestServer(t)
		out := filepath.Join(t.TempDir(), "sessions.json")
		var progress bytes.Buffer

		Convey("When a replay runs against it", func() {
			cfg := &replay.Config{
				BaseURL:    ts.URL,
				Sessions:   8,
				Frames:     40,
				Workers:    4,
				Settle:     10 * time.Second,
				Seed:       7,
				Duplicates: true,
				Cleanup:    true,
				OutputFile: out,
				Progress:   &progress,
			}
			err := replay.Run(context.Background(), cfg)

			Convey("Then every session settles on the expected text", func() {
				So(err, ShouldBeNil)
			})

			Convey("And the generated sessions are saved", func() {
				data, readErr := os.ReadFile(out)
				So(readErr, ShouldBeNil)
				var saved []replay.Session
				So(json.Unmarshal(data, &saved), ShouldBeNil)
				So(len(saved), ShouldEqual, 8)
			})

			Convey("And the sessions are cleaned up", func() {
				So(len(svc.Sessions(context.Background())), ShouldEqual, 0)
			})
		})
	})

	Convey("Given no service", t, func() {
		ts := httptest.NewServer(http.NotFoundHandler())
		defer ts.Close()

		Convey("Then the health check fails", func() {
			err := replay.Run(context.Background(), &replay.Config{BaseURL: ts.URL, Sessions: 1, Frames: 1})
			So(errors.Is(err, replay.ErrUnhealthy), ShouldBeTrue)
		})
	})
}
