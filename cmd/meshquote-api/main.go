// Package main is the entry point for the meshquote-api server. The HTTP API
// and the background model worker run in one process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jmylchreest/meshquote-api/internal/config"
	"github.com/jmylchreest/meshquote-api/internal/database"
	"github.com/jmylchreest/meshquote-api/internal/events"
	"github.com/jmylchreest/meshquote-api/internal/http/handlers"
	"github.com/jmylchreest/meshquote-api/internal/http/mw"
	"github.com/jmylchreest/meshquote-api/internal/http/routes"
	"github.com/jmylchreest/meshquote-api/internal/logging"
	"github.com/jmylchreest/meshquote-api/internal/queue"
	"github.com/jmylchreest/meshquote-api/internal/repository"
	"github.com/jmylchreest/meshquote-api/internal/service"
	"github.com/jmylchreest/meshquote-api/internal/shutdown"
	"github.com/jmylchreest/meshquote-api/internal/version"
	"github.com/jmylchreest/meshquote-api/internal/worker"
)

const (
	defaultRequestTimeout  = 30 * time.Second
	extendedRequestTimeout = 2 * time.Minute
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting meshquote-api",
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

	db, err := database.New(cfg.DatabaseURL, cfg.TursoURL, cfg.TursoAuthToken)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if schemaVersion, err := database.SchemaVersion(db); err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else {
		logger.Info("database schema ready", "schema_version", schemaVersion)
	}

	repos := repository.NewRepositories(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := newQueue(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to queue", "error", err)
		os.Exit(1)
	}
	defer func() { _ = q.Close() }()

	publisher := newPublisher(cfg, logger)
	defer func() { _ = publisher.Close() }()

	services, err := service.NewServices(cfg, repos, q, publisher, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	// Models left in processing by a previous run are failed before the
	// worker starts so they are not mistaken for live work.
	if n, err := services.Cleanup.SweepStale(ctx, cfg.StaleProcessingAge); err != nil {
		logger.Warn("failed to sweep stale models", "error", err)
	} else if n > 0 {
		logger.Info("marked interrupted models as failed", "count", n)
	}

	modelWorker := worker.New(services.Model, q, worker.Config{
		PollInterval:        cfg.WorkerPollInterval,
		Concurrency:         cfg.WorkerConcurrency,
		ProcessingTimeout:   cfg.ProcessingTimeout,
		ShutdownGracePeriod: cfg.WorkerShutdownGracePeriod,
	}, logger)
	services.SetCanceller(modelWorker)
	modelWorker.Start(ctx)

	if cfg.CleanupEnabled {
		go services.Cleanup.RunScheduledCleanup(ctx, cfg.StaleProcessingAge, cfg.OrphanGracePeriod, cfg.CleanupInterval)
	}

	idle := shutdown.NewIdleMonitor(shutdown.IdleConfig{
		Timeout:      cfg.IdleTimeout,
		ExcludePaths: []string{"/healthz", "/readyz"},
		Busy:         modelWorker.Busy,
		Logger:       logger,
	})
	idle.Start()
	defer idle.Stop()

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(idle.Middleware)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.APIVersion())
	router.Use(mw.Cache(mw.DefaultCacheConfig()))
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:  defaultRequestTimeout,
		Extended: extendedRequestTimeout,
		// Uploads read large bodies and texts may call a language model
		ExtendedPatterns: []string{"/ai-text", "/model"},
	}))
	router.Use(mw.ExtendWriteDeadlineForWait(service.MaxWait))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-API-Version", "X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Use(mw.RateLimitByIP(cfg.RateLimitPerMinute, "/healthz", "/readyz"))

	// Global concurrency throttle - prevent system overload
	router.Use(middleware.Throttle(100))

	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))

	modelHandler := handlers.NewModelHandler(services.Model, cfg.MaxUploadBytes())
	routes.Register(api, &routes.Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(db, q).Readyz,
		Project:     handlers.NewProjectHandler(services.Project),
		Model:       modelHandler,
		Calc:        handlers.NewCalcHandler(services.Calc, services.AiText),
	})

	// Raw handlers replace the documentation placeholders registered above.
	router.Post("/api/v1/projects/{id}/model", modelHandler.UploadModel)
	router.Get("/api/v1/projects/{id}/model/file", modelHandler.DownloadModel)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			logger.Info("shutting down server", "signal", sig.String())
		case <-idle.Idle():
			logger.Info("shutting down idle server", "idle_timeout", cfg.IdleTimeout.String())
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Stop accepting uploads before the worker drains
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		modelWorker.Stop()
		cancel()
	}()

	logger.Info("starting server",
		"port", cfg.Port,
		"base_url", cfg.BaseURL,
		"storage", services.Storage.Backend(),
		"queue", cfg.QueueEnabled(),
		"events", cfg.EventsEnabled(),
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("server stopped")
}

// newQueue connects the Redis queue when configured and falls back to an
// in-process queue otherwise.
func newQueue(ctx context.Context, cfg *config.Config, logger *slog.Logger) (queue.Queue, error) {
	if !cfg.QueueEnabled() {
		logger.Info("using in-process queue")
		return queue.NewMemoryQueue(1024), nil
	}
	q, err := queue.NewRedisQueue(ctx, cfg.RedisURL, cfg.RedisQueueKey)
	if err != nil {
		return nil, err
	}
	logger.Info("using redis queue", "key", cfg.RedisQueueKey)
	return q, nil
}

func newPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if !cfg.EventsEnabled() {
		return events.NopPublisher{}
	}
	logger.Info("publishing lifecycle events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}
