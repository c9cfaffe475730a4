package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"darkgrid/config"
	"darkgrid/core/engine"
	"darkgrid/core/events"
	"darkgrid/core/rules"
	"darkgrid/gateway/middleware"
	"darkgrid/observability/logging"
	otelobs "darkgrid/observability/otel"
	"darkgrid/pubsub"
	"darkgrid/server"
	"darkgrid/storage"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("darkgridd", "", cfg.LogFile).Error("load config", "err", err)
		os.Exit(1)
	}

	logger := logging.Setup("darkgridd", cfg.Env, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Endpoint != "" {
		shutdownTelemetry, err := otelobs.Init(ctx, otelobs.Config{
			ServiceName: "darkgridd",
			Environment: cfg.Env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("init telemetry", "err", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "err", err)
			}
		}()
	}

	db, err := storage.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Error("open storage", "err", err)
		os.Exit(1)
	}
	if err := storage.Migrate(db); err != nil {
		logger.Error("migrate storage", "err", err)
		os.Exit(1)
	}

	broker := pubsub.NewBroker()
	recorder := events.NewRecorder(broker, logger)
	registry := rules.Default(recorder)
	manager := engine.NewManager(registry, recorder, cfg.Seed, cfg.RulesetVersion)

	srv := server.New(server.Config{
		DB:      db,
		Engine:  manager,
		Stream:  broker,
		DevMode: cfg.DevMode,
		Log:     logger,
		ActionsRate: middleware.RateLimit{
			RequestsPerMinute: cfg.ActionsPerMinute,
			Burst:             cfg.ActionsRateBurst,
		},
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           otelhttp.NewHandler(srv.Handler(), "darkgridd"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "dev_mode", cfg.DevMode)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
