package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/readmission/dashboard/internal/config"
	"github.com/readmission/dashboard/internal/domain/readmission"
	"github.com/readmission/dashboard/internal/platform/export"
	"github.com/readmission/dashboard/internal/platform/middleware"
	"github.com/readmission/dashboard/internal/platform/telemetry"
	"github.com/readmission/dashboard/internal/presentation/live"
	"github.com/readmission/dashboard/internal/presentation/plotly"
)

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	svc, err := newService(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load dataset")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, hub := newServer(ctx, cfg, svc, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	hub.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
		return err
	}
	return nil
}

// newServer builds the echo instance with every route registered. The rate
// limiter and response cache cleanup loops run until ctx is cancelled.
func newServer(ctx context.Context, cfg *config.Config, svc *readmission.Service, logger zerolog.Logger) (*echo.Echo, *live.Hub) {
	tp := telemetry.NewProvider(telemetry.Config{
		ServiceVersion: version,
		Environment:    cfg.Env,
		MetricsEnabled: telemetry.BoolPtr(cfg.MetricsEnabled),
	})
	tp.SetDatasetRecords(svc.Dataset().Len())
	svc.SetObserver(tp)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders: []string{"Accept", "If-None-Match", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Audit(logger))
	e.Use(tp.MetricsMiddleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"version": version,
			"records": svc.Dataset().Len(),
		})
	})

	if cfg.MetricsEnabled {
		e.GET("/metrics", tp.PrometheusHandler())
	}

	rlCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rlCfg.BurstSize = cfg.RateLimitBurst
	}

	cacheCfg := middleware.DefaultCacheConfig()
	cacheCfg.MaxAge = cfg.CacheMaxAge

	apiV1 := e.Group("/api/v1")
	limiter := middleware.NewRateLimiter(rlCfg)
	limiter.StartCleanup(ctx, time.Minute)
	apiV1.Use(limiter.Middleware())
	apiV1.Use(middleware.ETag(cacheCfg))
	if cfg.CacheMaxAge > 0 {
		store := middleware.NewInMemoryCacheStore()
		store.StartCleanup(ctx, time.Minute)
		apiV1.Use(middleware.ResponseCache(store, time.Duration(cfg.CacheMaxAge)*time.Second, cacheCfg.ExcludePrefixes...))
	}

	readmission.NewHandler(svc, cfg.PageSize).RegisterRoutes(apiV1)
	export.NewHandler(svc).RegisterRoutes(apiV1)
	plotly.NewHandler(svc).RegisterRoutes(e, apiV1)

	hub := live.NewHub(logger)
	live.NewHandler(hub, svc, cfg.PageSize, logger).RegisterRoutes(e.Group(""))

	return e, hub
}
