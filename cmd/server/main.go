package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/alejandroruanova/itv-catalog-service/internal/api"
	"github.com/alejandroruanova/itv-catalog-service/internal/app"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/queue"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/storage"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/config"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/logger"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/metrics"
)

const megabyte = 1024 * 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger.Initialize(cfg.Environment, cfg.LogLevel)
	appLogger := logger.NewServiceLogger("itv-catalog")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	catalog, err := app.Build(cfg, metrics.NewMetrics(), appLogger)
	if err != nil {
		appLogger.Error("failed to build catalog services", slog.Any("error", err))
		log.Fatal(err)
	}
	defer catalog.Close()

	deps := api.Deps{
		Runner:  catalog.Runner,
		Loader:  catalog.Loader,
		Sources: catalog.Storage,
		Formats: catalog.Parsers,
		Search:  catalog.Search,
		Dedupe:  catalog.Dedupe,
		Catalog: catalog.Catalog,
		Checks:  map[string]api.ReadinessChecker{"database": catalog.DB},
	}
	if catalog.Cache != nil {
		deps.Checks["redis"] = catalog.Cache
	}

	if cfg.Storage.Retention > 0 {
		go pruneUploads(ctx, catalog.Storage, cfg.Storage.Retention, appLogger)
	}

	if cfg.Queue.Enabled {
		client, err := queue.NewAsynqClient(&cfg.Queue, appLogger)
		if err != nil {
			appLogger.Error("failed to create queue client", slog.Any("error", err))
			log.Fatal(err)
		}
		defer client.Close()
		deps.Queue = client

		worker, err := startWorker(cfg, catalog, appLogger)
		if err != nil {
			appLogger.Error("failed to start load worker", slog.Any("error", err))
			log.Fatal(err)
		}
		defer worker.Shutdown()
	}

	srv := api.New(api.Options{
		Addr:       cfg.ListenAddr(),
		MaxUpload:  cfg.MaxFileSize * megabyte,
		MaxRetries: cfg.Queue.MaxRetries,
	}, deps, appLogger)

	if err := srv.Run(ctx); err != nil {
		appLogger.Error("server error", slog.Any("error", err))
	}
	appLogger.Info("server stopped")
}

// startWorker runs the asynq worker that executes background loads.
func startWorker(cfg *config.Config, catalog *app.App, logger *slog.Logger) (*queue.AsynqServer, error) {
	worker, err := queue.NewAsynqServer(&cfg.Queue, logger)
	if err != nil {
		return nil, err
	}

	worker.Use(func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, t)
			logger.Info("task finished",
				slog.String("task_type", t.Type()),
				slog.Duration("duration", time.Since(start)),
				slog.Bool("ok", err == nil))
			return err
		})
	})
	worker.HandleFunc(queue.TaskTypeLoadRegion, queue.NewLoadHandler(catalog.Runner.Process, logger).ProcessTask)

	if err := worker.Start(); err != nil {
		return nil, err
	}
	return worker, nil
}

// pruneUploads deletes uploads older than retention, once at startup and then hourly.
func pruneUploads(ctx context.Context, store *storage.LocalStorage, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		if err := store.CleanupOldFiles(ctx, retention); err != nil {
			logger.Warn("upload cleanup failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
