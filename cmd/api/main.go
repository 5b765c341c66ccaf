package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inkpost/inkpost-backend/internal/api"
	"github.com/inkpost/inkpost-backend/internal/assets"
	"github.com/inkpost/inkpost-backend/internal/config"
	"github.com/inkpost/inkpost-backend/internal/db"
	"github.com/inkpost/inkpost-backend/internal/log"
	"github.com/inkpost/inkpost-backend/internal/metrics"
	"github.com/inkpost/inkpost-backend/internal/posts"
	"github.com/inkpost/inkpost-backend/internal/session"
	"github.com/inkpost/inkpost-backend/pkg/kv"

	_ "github.com/inkpost/inkpost-backend/pkg/kv/memory"
	_ "github.com/inkpost/inkpost-backend/pkg/kv/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(log.Options{Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting inkpost server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"db_backend", cfg.Database.Backend,
		"asset_strategy", cfg.Assets.Strategy,
		"session_backend", cfg.Session.Backend,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("inkpost")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect and migrate the post backend
	exec, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatalw("Failed to initialize database", "error", err)
	}
	defer exec.Close()
	logger.Infow("Database initialized", "dialect", exec.Dialect())

	repo := posts.NewRepository(exec, logger, posts.WithRecorder(metricsObj))

	// Resolve the asset strategy once
	store, err := assets.New(ctx, cfg.Assets, logger)
	if err != nil {
		logger.Fatalw("Failed to setup asset store", "error", err)
	}
	assetSvc := assets.NewService(store, logger, metricsObj)

	var files api.FileOpener
	if local, ok := store.(*assets.LocalStore); ok {
		files = local
	}

	// Session store with in-memory failover for redis
	sessions, err := kv.NewStoreFromConfig(kv.Config{
		Backend:         kv.Backend(cfg.Session.Backend),
		RedisURL:        cfg.Session.RedisURL,
		FailoverEnabled: true,
		Logger:          logger.Warnw,
	})
	if err != nil {
		logger.Fatalw("Failed to setup session store", "error", err)
	}
	defer sessions.Close()

	gate := session.NewGate(sessions, cfg.Security.PasswordHash(), session.Options{
		TTL:          cfg.Session.TTL,
		CookieSecure: cfg.Session.CookieSecure,
	}, logger)

	// Setup API handler and middleware
	handler, err := api.NewHandler(repo, assetSvc, files, gate, logger, metricsObj, api.Options{
		MaxUploadBytes: cfg.Assets.MaxUploadBytes,
		ReadyTimeout:   cfg.Database.Timeout,
	})
	if err != nil {
		logger.Fatalw("Failed to setup handlers", "error", err)
	}
	middleware := api.NewMiddleware(logger, metricsObj, cfg.IsProd())

	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.LoginRateLimitRPM)
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Add metrics endpoint
	router.Handle("/metrics", metricsHandler)

	// Setup HTTP server
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
