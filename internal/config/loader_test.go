package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/posemon/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.AutoStartSessions, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("POSEMON_ADDR", ":8080")
			_ = os.Setenv("POSEMON_QUEUE_SIZE", "500")
			_ = os.Setenv("POSEMON_WORKER_COUNT", "4")
			_ = os.Setenv("POSEMON_CONFIDENCE_THRESHOLD", "0.5")
			_ = os.Setenv("POSEMON_COUNT_FIRST_FRAME", "false")
			_ = os.Setenv("POSEMON_BRIDGE_COMMAND", "python3 classify.py --stdout")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.ConfidenceThreshold, convey.ShouldEqual, 0.5)
				convey.So(cfg.CountFirstFrame, convey.ShouldBeFalse)
				convey.So(cfg.BridgeCommand, convey.ShouldResemble, []string{"python3", "classify.py", "--stdout"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
queue_size: 3000
mqtt_broker: "tcp://localhost:1883"
mqtt_topic_prefix: gym
bridge_command: ["./classifier", "--camera", "0"]
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("POSEMON_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 3000)
				convey.So(cfg.MQTTBroker, convey.ShouldEqual, "tcp://localhost:1883")
				convey.So(cfg.MQTTTopicPrefix, convey.ShouldEqual, "gym")
				convey.So(cfg.BridgeCommand, convey.ShouldResemble, []string{"./classifier", "--camera", "0"})
				convey.So(cfg.ConfirmAfter, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile("addr: \":9090\"\nqueue_size: 3000\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("POSEMON_CONFIG", tmpFile)
			_ = os.Setenv("POSEMON_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 3000)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("POSEMON_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("POSEMON_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("POSEMON_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the layered result is invalid", func() {
			_ = os.Setenv("POSEMON_TENTATIVE_AFTER", "8")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "confirm_after")
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"POSEMON_CONFIG",
		"POSEMON_ADDR",
		"POSEMON_QUEUE_SIZE",
		"POSEMON_WORKER_COUNT",
		"POSEMON_CONFIDENCE_THRESHOLD",
		"POSEMON_COUNT_FIRST_FRAME",
		"POSEMON_BRIDGE_COMMAND",
		"POSEMON_TENTATIVE_AFTER",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "posemon-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
