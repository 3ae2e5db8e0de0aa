package sink_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/okian/posemon/internal/adapters/sink"
	"github.com/okian/posemon/internal/domain/types"
	"github.com/okian/posemon/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingSink struct {
	name string
	err  error
	mu   sync.Mutex
	got  []types.Update
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Publish(_ context.Context, u types.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, u)
	return r.err
}

func TestFanout(t *testing.T) {
	Convey("Given a fanout over two sinks", t, func() {
		_ = logger.Init()
		ok := &recordingSink{name: "ok"}
		bad := &recordingSink{name: "bad", err: errors.New("broker down")}
		f := sink.NewFanout(ok, nil, bad)

		Convey("When an update is published", func() {
			err := f.Publish(context.Background(), types.Update{SessionID: "cam-1", Text: "May Naruto"})

			Convey("Then every sink receives it", func() {
				So(ok.got, ShouldHaveLength, 1)
				So(bad.got, ShouldHaveLength, 1)
			})

			Convey("And the failing sink is reported", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "bad: broker down")
			})
		})

		Convey("When every sink succeeds", func() {
			f := sink.NewFanout(ok)
			f.Add(&recordingSink{name: "other"})

			Convey("Then no error is returned", func() {
				So(f.Publish(context.Background(), types.Update{SessionID: "cam-1"}), ShouldBeNil)
			})
		})
	})
}

func TestHub(t *testing.T) {
	Convey("Given a hub with a watcher on cam-1", t, func() {
		hub := sink.NewHub(2)
		ch, cancel := hub.Subscribe("cam-1")
		defer cancel()

		So(hub.Watchers("cam-1"), ShouldEqual, 1)

		Convey("When updates are published for two sessions", func() {
			ctx := context.Background()
			So(hub.Publish(ctx, types.Update{SessionID: "cam-2", Text: "Naruto"}), ShouldBeNil)
			So(hub.Publish(ctx, types.Update{SessionID: "cam-1", Text: "May GirlRun"}), ShouldBeNil)

			Convey("Then the watcher only sees its own session", func() {
				u := <-ch
				So(u.Text, ShouldEqual, "May GirlRun")
				So(len(ch), ShouldEqual, 0)
			})
		})

		Convey("When the watcher falls behind", func() {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				So(hub.Publish(ctx, types.Update{SessionID: "cam-1", Seq: uint64(i)}), ShouldBeNil)
			}

			Convey("Then the publisher is not blocked and excess updates are dropped", func() {
				So(len(ch), ShouldEqual, 2)
			})
		})

		Convey("When the watcher cancels", func() {
			cancel()
			cancel()

			Convey("Then its channel is closed and the session has no watchers", func() {
				_, open := <-ch
				So(open, ShouldBeFalse)
				So(hub.Watchers("cam-1"), ShouldEqual, 0)
				So(hub.Publish(context.Background(), types.Update{SessionID: "cam-1"}), ShouldBeNil)
			})
		})
	})
}
