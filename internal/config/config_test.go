package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/posemon/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.ConfidenceThreshold, convey.ShouldEqual, 0.3)
			convey.So(cfg.MissingLimit, convey.ShouldEqual, 5)
			convey.So(cfg.TentativeAfter, convey.ShouldEqual, 3)
			convey.So(cfg.ConfirmAfter, convey.ShouldEqual, 5)
			convey.So(cfg.CountFirstFrame, convey.ShouldBeTrue)
			convey.So(cfg.MQTTBroker, convey.ShouldBeEmpty)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then it yields one stabilizer option per threshold", func() {
			convey.So(cfg.StabilizerOptions(), convey.ShouldHaveLength, 5)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = " " }},
			{"zero queue", func(c *config.Config) { c.QueueSize = 0 }},
			{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
			{"negative idle", func(c *config.Config) { c.SessionIdleTimeoutS = -1 }},
			{"threshold one", func(c *config.Config) { c.ConfidenceThreshold = 1 }},
			{"negative missing", func(c *config.Config) { c.MissingLimit = -1 }},
			{"confirm before may", func(c *config.Config) { c.ConfirmAfter = 2 }},
			{"qos three", func(c *config.Config) { c.MQTTQoS = 3 }},
			{"unknown format", func(c *config.Config) { c.LogFormat = "xml" }},
		}

		for _, tc := range cases {
			convey.Convey("When "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					err := cfg.Validate()
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}
	})
}
