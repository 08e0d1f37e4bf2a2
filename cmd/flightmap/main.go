package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/rookhaven/flightmap/internal/adapter/http"
	kafkaadapter "github.com/rookhaven/flightmap/internal/adapter/kafka"
	"github.com/rookhaven/flightmap/internal/adapter/opensky"
	"github.com/rookhaven/flightmap/internal/config"
	"github.com/rookhaven/flightmap/internal/observability"
	"github.com/rookhaven/flightmap/internal/render"
	"github.com/rookhaven/flightmap/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	feedOpts := []opensky.ClientOption{
		opensky.WithBaseURL(cfg.FeedBaseURL),
		opensky.WithHTTPClient(&http.Client{Timeout: cfg.FeedTimeout}),
	}
	if cfg.FeedToken != "" {
		feedOpts = append(feedOpts, opensky.WithToken(cfg.FeedToken))
	}
	feed := opensky.NewClient(feedOpts...)

	flights := store.New(feed, logger, metrics)

	aggregator, err := render.NewAggregator(cfg.MaxZoom, cfg.AggCacheSize, metrics)
	if err != nil {
		logger.Error("failed to create aggregator", "error", err)
		os.Exit(1)
	}

	defaults := render.Viewport{Zoom: 4, ClusterRadiusPx: cfg.ClusterRadiusPx}
	srv := httpadapter.NewServer(cfg.HTTPAddr, flights, aggregator, defaults, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Snapshot publishing is feature-flagged via KAFKA_BROKERS. The publisher
	// observes the store so a publish failure can never fail a refresh.
	var publisher *kafkaadapter.Writer
	if cfg.PublishEnabled() {
		publisher = kafkaadapter.NewWriter(cfg, logger)
		logger.Info("snapshot publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)

		snapshots, unsubscribe := flights.Subscribe()
		defer unsubscribe()
		go func() {
			for snap := range snapshots {
				if snap.Status != store.StatusReady {
					continue
				}
				if err := publisher.PublishSnapshot(ctx, snap.Generation, snap.Flights); err != nil {
					metrics.PublishErrors.Inc()
					logger.Error("snapshot publish failed", "error", err, "generation", snap.Generation)
					continue
				}
				metrics.SnapshotsPublished.Inc()
			}
		}()
	} else {
		logger.Info("snapshot publishing disabled")
	}

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// One automatic refresh at startup; everything after that is triggered
	// manually through POST /api/refresh.
	go func() {
		if err := flights.Refresh(ctx); err != nil {
			logger.Error("startup refresh did not run", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
