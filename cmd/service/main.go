package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rowanhenning/weather-data-service/internal/cache"
	"github.com/rowanhenning/weather-data-service/internal/client"
	"github.com/rowanhenning/weather-data-service/internal/config"
	httphandler "github.com/rowanhenning/weather-data-service/internal/http"
	"github.com/rowanhenning/weather-data-service/internal/observability"
	"github.com/rowanhenning/weather-data-service/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewOpenWeatherClient(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIBaseURL,
		cfg.WeatherAPITimeout,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	var cacheSvc cache.Cache
	var cachePing func() error
	var cacheCloser interface{ Close() error }
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		cacheSvc = mc
		cachePing = mc.Ping
		cacheCloser = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "redis":
		rc, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis cache", zap.Error(err))
		}
		cacheSvc = rc
		cachePing = rc.Ping
		cacheCloser = rc
		logger.Info("cache backend: redis")
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	weatherService := service.NewWeatherService(weatherClient, cacheSvc, cfg.CacheTTL, cfg.CoalesceEnabled, cfg.CoalesceTimeout)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, weatherClient, logger, limiter, cfg.LocationMinLength, cfg.LocationMaxLength, cachePing)

	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	if cfg.WarmCache && len(cfg.TrackedLocations) > 0 {
		warmer := cache.NewWarmer(weatherService, logger)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.TrackedLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(context.Background(), cfg.TrackedLocations, cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	apiRouter := router.NewRoute().Subrouter()
	apiRouter.Use(httphandler.RateLimitMiddleware(limiter))
	apiRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	apiRouter.HandleFunc("/weather/{location}", handler.GetWeather).Methods("GET")
	apiRouter.HandleFunc("/forecast/{location}", handler.GetForecast).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	if cacheCloser != nil {
		if err := cacheCloser.Close(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
