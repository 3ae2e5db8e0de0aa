package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	service "github.com/okian/posemon/internal/app"
	"github.com/okian/posemon/internal/config"
	"github.com/okian/posemon/pkg/logger"
	"github.com/okian/posemon/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			t.Setenv("POSEMON_ADDR", ":8080")
			t.Setenv("POSEMON_QUEUE_SIZE", "1000")
			t.Setenv("POSEMON_WORKER_COUNT", "4")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When building the service from configuration", func() {
			cfg := config.New()
			cfg.WorkerCount = 3
			cfg.AutoStartSessions = false
			cfg.SessionIdleTimeoutS = 0

			svc := newService(cfg)
			stats := svc.GetStats()

			convey.Convey("Then the configured values are applied", func() {
				convey.So(stats["workerCount"], convey.ShouldEqual, 3)
				convey.So(stats["autoStart"], convey.ShouldBeFalse)
				convey.So(stats["idleTimeout"], convey.ShouldEqual, "0s")
			})
		})

		convey.Convey("When testing metrics initialization", func() {
			convey.Convey("Then metrics manager should be creatable", func() {
				manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMux(t *testing.T) {
	convey.Convey("Given the wired HTTP mux", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.WorkerCount = 2

		svc := newService(cfg)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		mux, apiServer := newMux(ctx, svc)
		srv := httptest.NewServer(mux)

		defer func() {
			apiServer.Close()
			srv.Close()
			svc.Stop()
		}()

		for _, path := range []string{"/healthz", "/labels", "/stats", "/sessions", "/metrics", "/openapi.yaml", "/api-docs"} {
			convey.Convey("Then GET "+path+" answers 200", func() {
				resp, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				defer resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		}

		convey.Convey("Then an unknown session answers 404", func() {
			resp, err := http.Get(srv.URL + "/sessions/nobody")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			convey.Convey("Then it returns once the context is done", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSystemMetricsUpdater(ctx)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing service metrics updater", func() {
			svc := service.New()

			convey.Convey("Then it returns once the context is done", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startServiceMetricsUpdater(ctx, svc)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing system metrics update", func() {
			convey.Convey("Then it should update metrics without panicking", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing service metrics update on a stopped service", func() {
			svc := service.New()

			convey.Convey("Then it should update metrics without panicking", func() {
				convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
			})
		})
	})
}

func TestRunShutdown(t *testing.T) {
	convey.Convey("Given a running application", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"
		cfg.WorkerCount = 1

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg) }()

		convey.Convey("When the context is cancelled", func() {
			time.Sleep(50 * time.Millisecond)
			cancel()

			convey.Convey("Then run returns without error", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(5 * time.Second):
					t.Fatal("run did not return")
				}
			})
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When the listen address is empty", func() {
			t.Setenv("POSEMON_ADDR", " ")

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the bridge command is blank", func() {
			cfg := config.New()
			cfg.Addr = "127.0.0.1:0"
			cfg.BridgeCommand = []string{" "}

			convey.Convey("Then run fails before serving", func() {
				err := run(context.Background(), cfg)
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
