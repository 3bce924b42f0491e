// Command dashboard serves the drought and city risk dashboards' data API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/bdu-carp/risk-dashboard/internal/adapter/http"
	kafkaadapter "github.com/bdu-carp/risk-dashboard/internal/adapter/kafka"
	"github.com/bdu-carp/risk-dashboard/internal/adapter/mapbox"
	"github.com/bdu-carp/risk-dashboard/internal/cache"
	"github.com/bdu-carp/risk-dashboard/internal/config"
	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/bdu-carp/risk-dashboard/internal/loader"
	"github.com/bdu-carp/risk-dashboard/internal/observability"
	"github.com/bdu-carp/risk-dashboard/internal/pipeline"
	"github.com/bdu-carp/risk-dashboard/internal/refresh"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	variants, err := pipeline.LoadVariants(cfg.VariantsFile)
	if err != nil {
		logger.Error("failed to load variants", "error", err, "file", cfg.VariantsFile)
		os.Exit(1)
	}
	if _, err := variants.Get(cfg.DashboardVariant); err != nil {
		logger.Error("unknown dashboard variant", "variant", cfg.DashboardVariant)
		os.Exit(1)
	}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	store := cache.New(loader.New(logger), logger, metrics)

	opts := pipeline.DefaultOptions()
	opts.MaxZoneCode = cfg.MaxZoneCode
	p := pipeline.New(store, geocoder, datasets(cfg), variants, opts, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Preload {
		if err := p.Warm(ctx); err != nil {
			// Missing files only disable the views that need them; the
			// failures are retried on the first request for each file.
			logger.Error("dataset preload incomplete", "error", err)
			p.MarkReady()
		}
	} else {
		p.MarkReady()
	}

	var (
		reader   *kafkaadapter.Reader
		listener *refresh.Listener
	)
	ready := httpadapter.AllReady(p)
	if cfg.RefreshEnabled() {
		reader = kafkaadapter.NewReader(cfg, logger)
		listener = refresh.New(reader, store, cfg.DataDir, logger, metrics, cfg.BatchSize)
		ready = httpadapter.AllReady(p, listener)
	} else {
		logger.Info("dataset refresh listener disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, store, ready,
		httpadapter.Options{DefaultVariant: cfg.DashboardVariant}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh listener.
	if listener != nil {
		go func() {
			if err := listener.Run(ctx); err != nil {
				logger.Error("refresh listener error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func datasets(cfg *config.Config) pipeline.Datasets {
	return pipeline.Datasets{
		Zones:      loader.Spec{Path: cfg.ZonesFile, Fields: cfg.ZonesFields},
		YearRank:   loader.Spec{Path: cfg.YearRankFile},
		CityRisk:   loader.Spec{Path: cfg.CityRiskFile, Fields: cfg.CityRiskFields},
		Hazard:     loader.Spec{Path: cfg.HazardFile},
		Eigen:      loader.Spec{Path: cfg.EigenFile},
		Resilience: loader.Spec{Path: cfg.ResilienceFile},
	}
}
