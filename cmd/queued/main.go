package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"equipment-queue-backend/config"
	"equipment-queue-backend/internal/api"
	"equipment-queue-backend/internal/autoupdate"
	"equipment-queue-backend/internal/broadcast"
	"equipment-queue-backend/internal/db"
	"equipment-queue-backend/internal/logger"
	"equipment-queue-backend/internal/mw"
	"equipment-queue-backend/internal/notification"
	"equipment-queue-backend/internal/queue"
	"equipment-queue-backend/internal/ratelimit"
	"equipment-queue-backend/internal/reconcile"
	"equipment-queue-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Init(cfg.Log.Level)
	logger.Info().Str("path", configPath).Msg("configuration loaded")

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("auth.jwt_secret must be configured")
	}
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Warn().Msg("VAPID keys are not configured, push fallback is disabled")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, &webpushOptions)
	workerPool.Start(ctx)

	hub := broadcast.NewHub(workerPool)

	scheduler := autoupdate.New(appStore, hub, cfg.Queue.AutoUpdateInterval, cfg.Queue.OperationTimeout)
	scheduler.Start()

	limiter := ratelimit.New(
		time.Duration(cfg.Refresh.CooldownSeconds)*time.Second,
		time.Duration(cfg.Refresh.WindowSeconds)*time.Second,
		cfg.Refresh.MaxPerWindow,
	)

	coordinator := queue.NewCoordinator(appStore, hub, scheduler, limiter, queue.Options{
		NotifyDelay:      cfg.Queue.NotifyDelay,
		SettleDelay:      cfg.Queue.SettleDelay,
		OperationTimeout: cfg.Queue.OperationTimeout,
	})

	reconciler := reconcile.NewService(cfg.Reconcile, appStore, coordinator, scheduler)
	go reconciler.Run(ctx)

	handler := api.NewHandler(coordinator, appStore, hub, &webpushOptions)
	router := api.NewRouter(&cfg.Server, handler, mw.NewTokenValidator(cfg.Auth.JWTSecret))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Open event streams end when the request contexts are cancelled.
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
		server.Close()
	}

	coordinator.Shutdown()
	scheduler.Stop()
	cancel()

	logger.Info().Msg("server gracefully stopped")
}
