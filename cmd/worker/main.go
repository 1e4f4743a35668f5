// Package main provides the entrypoint for the SkyGlance refresh worker. It
// keeps the favourite locations warm in the shared cache mirror on a schedule
// and, when a subscription is configured, on Pub/Sub triggers.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyglance/skyglance/internal/app"
	"github.com/skyglance/skyglance/internal/config"
	"github.com/skyglance/skyglance/internal/telemetry"
	"github.com/skyglance/skyglance/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "skyglance-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting SkyGlance worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	favourites, err := worker.ParseFavourites(cfg.Worker.Favourites)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid FAVOURITES")
	}
	if len(favourites) == 0 {
		log.Warn().Msg("no favourites configured, scheduled refresh will be a no-op")
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize application")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	defer a.Close()

	a.Region.Detect(ctx)

	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Favourites:   favourites,
			Concurrency:  cfg.Worker.Concurrency,
			Timeout:      cfg.Worker.Timeout,
			Units:        cfg.DefaultUnits,
			Language:     cfg.DefaultLanguage,
			RefreshNames: cfg.Worker.RefreshNames,
		},
		Logger: log,
		Facade: a.Weather,
		Region: a.Region,
	})

	scheduler, err := worker.NewScheduler(worker.SchedulerConfig{
		Cron:     cfg.Worker.Cron,
		Interval: cfg.Worker.Interval,
		Job:      refreshJob,
		Logger:   log,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create scheduler")
		os.Exit(1)
	}
	scheduler.Start()
	log.Info().
		Int("favourites", len(favourites)).
		Str("cron", cfg.Worker.Cron).
		Dur("interval", cfg.Worker.Interval).
		Msg("refresh scheduler started")

	if cfg.Worker.PubSubProject != "" && cfg.Worker.PubSubSubscription != "" {
		dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
			RefreshJob: refreshJob,
			Region:     a.Region,
			Cache:      a.Weather,
			Logger:     log,
		})
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Worker.PubSubProject,
			SubscriptionName: cfg.Worker.PubSubSubscription,
			Dispatcher:       dispatcher,
			Logger:           log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create pubsub handler")
			os.Exit(1)
		}
		defer func() { _ = handler.Close() }()

		go func() {
			if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	// Worker also exposes a health endpoint for Cloud Run
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"refresh": refreshJob.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
