// Package main is the entry point for the decollage-api server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/lukas-andre/decollage-cl-sub000/internal/auth"
	"github.com/lukas-andre/decollage-cl-sub000/internal/config"
	"github.com/lukas-andre/decollage-cl-sub000/internal/database"
	"github.com/lukas-andre/decollage-cl-sub000/internal/http/handlers"
	"github.com/lukas-andre/decollage-cl-sub000/internal/http/mw"
	"github.com/lukas-andre/decollage-cl-sub000/internal/http/routes"
	"github.com/lukas-andre/decollage-cl-sub000/internal/logging"
	"github.com/lukas-andre/decollage-cl-sub000/internal/repository"
	"github.com/lukas-andre/decollage-cl-sub000/internal/service"
	"github.com/lukas-andre/decollage-cl-sub000/internal/shutdown"
	"github.com/lukas-andre/decollage-cl-sub000/internal/version"
	"github.com/lukas-andre/decollage-cl-sub000/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting decollage-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(database.Options{
		DSN:            cfg.DatabaseURL,
		TursoURL:       cfg.TursoURL,
		TursoAuthToken: cfg.TursoAuthToken,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, logger); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	} else if pending, err := database.Pending(ctx, db); err != nil {
		logger.Warn("failed to check migrations", "error", err)
	} else if len(pending) > 0 {
		logger.Warn("database has pending migrations", "count", len(pending))
	}

	repos := repository.NewRepositories(db)

	services, err := service.NewServices(ctx, cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer func() { _ = services.Close() }()

	// Batches left running by a previous process will never finish
	if _, err := services.Batches.RecoverStale(ctx, cfg.StaleBatchAge); err != nil {
		logger.Warn("failed to clean up stale batches", "error", err)
	}

	if n, err := services.Styles.Refresh(ctx); err != nil {
		logger.Warn("failed to load custom styles", "error", err)
	} else if n > 0 {
		logger.Info("custom styles loaded", "count", n)
	}

	batchWorker := worker.New(repos.BatchJob, services.Batches, worker.Config{
		PollInterval: cfg.WorkerPollInterval,
		Concurrency:  cfg.WorkerConcurrency,
		JobTimeout:   cfg.WorkerJobTimeout,
	}, logger)
	batchWorker.Start(ctx)

	scheduler := service.NewScheduler(0, logger)
	if err := services.Schedule(scheduler); err != nil {
		logger.Error("failed to schedule jobs", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	idle := shutdown.NewIdleMonitor(shutdown.Config{
		Timeout:         cfg.IdleTimeout,
		ExcludePrefixes: []string{"/healthz", "/readyz", "/api/v1/health"},
		Busy:            batchWorker.Busy,
		Logger:          logger,
	})
	idle.Start(ctx)

	router := chi.NewRouter()

	// Global middleware
	router.Use(idle.Middleware)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          cfg.RequestTimeout,
		Extended:         cfg.GenerationTimeout,
		ExtendedPatterns: []string{"/generations", "/analyses", "/batches"},
	}))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-API-Version", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Uploads are base64 in JSON, so allow a third on top of the image limit
	router.Use(middleware.RequestSize(int64(cfg.MaxImageBytes)*4/3*int64(max(cfg.MaxBatchItems, 1)) + 64<<10))

	// Global IP rate limit to prevent abuse
	router.Use(httprate.LimitByIP(100, time.Minute))

	// Cap concurrent in-flight requests
	router.Use(middleware.Throttle(100))

	h := &routes.Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(db).Readyz,
		Staging:     handlers.NewStagingHandler(services.Staging),
		Batch:       handlers.NewBatchHandler(services.Batches, services.Staging),
		Token:       handlers.NewTokenHandler(services.Tokens),
		Usage:       handlers.NewUsageHandler(services.Accountant),
	}

	// Main API with OpenAPI docs
	humaConfig := routes.NewHumaConfig(cfg.BaseURL)
	api := humachi.New(router, humaConfig)
	routes.RegisterPublic(api, h)

	// Protected routes share the main OpenAPI document but serve no docs of their own
	protectedConfig := humaConfig
	protectedConfig.DocsPath = ""
	protectedConfig.OpenAPIPath = ""
	protectedConfig.SchemasPath = ""

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(verifier))
		r.Use(mw.RateLimitByUser(cfg.RequestsPerMinute))

		protectedAPI := humachi.New(r, protectedConfig)
		protectedAPI.UseMiddleware(mw.HumaAuth(protectedAPI))
		routes.RegisterProtected(protectedAPI, h)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-sigChan:
			logger.Info("shutting down server")
		case <-idle.Idle():
			logger.Info("shutting down idle server")
		}

		// Stop background work first
		cancel()
		batchWorker.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		scheduler.Stop(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "providers", services.Router.Order())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
