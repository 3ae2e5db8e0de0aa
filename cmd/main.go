package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/posemon/internal/adapters/bridge"
	"github.com/okian/posemon/internal/adapters/http/api"
	"github.com/okian/posemon/internal/adapters/http/swagger"
	"github.com/okian/posemon/internal/adapters/mqtt"
	service "github.com/okian/posemon/internal/app"
	"github.com/okian/posemon/internal/config"
	"github.com/okian/posemon/pkg/logger"
	"github.com/okian/posemon/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Bootstrap logger so config errors have somewhere to go.
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Get().Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "posemon stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires every component from cfg and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	var mqttClient *mqtt.Client
	var opts []service.Option
	if cfg.MQTTBroker != "" {
		mqttClient = mqtt.NewClient(cfg.MQTTBroker, cfg.MQTTClientID)
		if err := mqttClient.Connect(ctx); err != nil {
			return err
		}
		defer mqttClient.Disconnect()
		opts = append(opts, service.WithSink(mqtt.NewPublisher(mqttClient, cfg.MQTTTopicPrefix, byte(cfg.MQTTQoS))))
	}

	svc := newService(cfg, opts...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	if mqttClient != nil && cfg.MQTTSubscribeFrames {
		sub := mqtt.NewSubscriber(mqttClient, cfg.MQTTTopicPrefix, byte(cfg.MQTTQoS), svc)
		if err := sub.Start(ctx); err != nil {
			return err
		}
		log.Info(ctx, "consuming frames over MQTT", logger.String("filter", mqtt.FramesFilter(cfg.MQTTTopicPrefix)))
	}

	if len(cfg.BridgeCommand) > 0 {
		proc, err := bridge.NewProcess(cfg.BridgeCommand, svc)
		if err != nil {
			return err
		}
		go proc.Supervise(ctx)
		log.Info(ctx, "classifier bridge started", logger.Any("command", cfg.BridgeCommand))
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	mux, apiServer := newMux(ctx, svc)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	apiServer.Close()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(shutdownErr))
	}

	log.Info(ctx, "server stopped")
	return err
}

// newService builds the activity service from cfg.
func newService(cfg *config.Config, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithAutoStart(cfg.AutoStartSessions),
		service.WithIdleTimeout(time.Duration(cfg.SessionIdleTimeoutS) * time.Second),
		service.WithStabilizerOptions(cfg.StabilizerOptions()...),
	}
	return service.New(append(base, opts...)...)
}

// newMux registers the business API and the API docs.
func newMux(ctx context.Context, svc *service.Service) (*http.ServeMux, *api.Server) {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc.Hub())
	apiServer.Register(ctx, mux)
	return mux, apiServer
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the queue, worker and session gauges.
func updateServiceMetrics(svc *service.Service) {
	// GetStats updates the gauges as a side effect.
	_ = svc.GetStats()
}
