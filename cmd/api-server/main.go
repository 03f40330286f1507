package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/staffportal/staffportal/pkg/activity"
	"github.com/staffportal/staffportal/pkg/apiserver"
	"github.com/staffportal/staffportal/pkg/auth"
	"github.com/staffportal/staffportal/pkg/bootstrap"
	"github.com/staffportal/staffportal/pkg/config"
	"github.com/staffportal/staffportal/pkg/eventbus"
	"github.com/staffportal/staffportal/pkg/livehub"
	"github.com/staffportal/staffportal/pkg/notification"
	"github.com/staffportal/staffportal/pkg/pipeline"
	redisclient "github.com/staffportal/staffportal/pkg/store/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := bootstrap.NewLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := bootstrap.OpenBackend(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer backend.Close()

	registry := pipeline.NewStageRegistry(backend.Repositories.Stages, logger)
	if err := registry.SeedStages(ctx, pipeline.StagesFromConfig(cfg.Pipeline.Stages)); err != nil {
		logger.Fatal("failed to seed stages", zap.Error(err))
	}

	blobs, closeBlobs, err := bootstrap.OpenBlobStore(ctx, cfg.Documents)
	if err != nil {
		logger.Fatal("failed to open document store", zap.Error(err))
	}
	defer closeBlobs()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("auth.jwt_secret is required")
	}
	tokens := auth.NewTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	hub := livehub.NewHub(tokens, livehub.Options{
		PingInterval:   cfg.Live.PingInterval,
		SendBufferSize: cfg.Live.SendBufferSize,
	}, logger)
	hub.Start()
	defer hub.Stop()

	var emitter livehub.Emitter = hub
	moveOpts := pipeline.Options{StrictFromStage: cfg.Pipeline.StrictFromStage}

	if cfg.Redis.Enabled() {
		redis, err := redisclient.NewClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redis.Close()

		bus := eventbus.NewBus(redis.Client(), cfg.Live.Channel, logger)
		go bus.Forward(ctx, hub)
		emitter = bus

		if cfg.Pipeline.MoveLockTTL > 0 {
			moveOpts.Locker = pipeline.NewRedisLocker(redis.Locker(), cfg.Pipeline.MoveLockTTL, cfg.Pipeline.MoveLockTTL)
		}
		logger.Info("live updates fan out through redis", zap.String("channel", cfg.Live.Channel))
	}

	notifications := notification.NewService(backend.Repositories.Notifications, logger)
	server := apiserver.NewServer(cfg, apiserver.Dependencies{
		Pipeline:      pipeline.NewService(backend.Repositories, notifications, emitter, moveOpts, logger),
		Notifications: notifications,
		Activity:      activity.NewService(blobs, backend.Repositories.Cards, backend.Repositories.Audit, emitter, logger),
		Hub:           hub,
		Tokens:        tokens,
	}, logger)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:     server.Router(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: metricsMux,
	}

	go func() {
		logger.Info("starting metrics server", zap.Int("port", cfg.Server.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("starting API server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server forced to shutdown", zap.Error(err))
	}
}
