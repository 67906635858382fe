// Package api is the catalog's HTTP surface: source uploads, loads,
// station search and catalog maintenance.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/deduplication"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/extraction"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/search"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/database/repositories"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/parsers"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/queue"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/storage"
)

// ReadinessChecker reports whether a dependency can serve traffic.
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

// LoadRunner runs a load described by a payload.
type LoadRunner interface {
	Run(ctx context.Context, p queue.LoadPayload) (*extraction.Summary, error)
}

// Loader runs a load straight from an uploaded body.
type Loader interface {
	LoadReader(ctx context.Context, region, filename string, r io.Reader) (*extraction.Summary, error)
}

// SourceStore keeps uploaded source files.
type SourceStore interface {
	SaveSource(ctx context.Context, region, filename string, r io.Reader) (*storage.FileMetadata, error)
	ListSources(ctx context.Context, region string) ([]storage.FileMetadata, error)
	DeleteSource(ctx context.Context, region, fileID string) error
}

// Formats reports which source file extensions can be parsed.
type Formats interface {
	IsSupported(ext string) bool
	SupportedFormats() []string
}

// Searcher runs station searches.
type Searcher interface {
	Search(ctx context.Context, f search.Filter) ([]search.Hit, error)
}

// Catalog is the maintenance and statistics access to the store.
type Catalog interface {
	DeleteAllStations(ctx context.Context) (int64, error)
	CountStations(ctx context.Context, q domain.StationQuery) (int64, error)
	CountByProvince(ctx context.Context) ([]repositories.ProvinceCount, error)
	CountProvinces(ctx context.Context) (int64, error)
	CountLocalities(ctx context.Context) (int64, error)
	ListLoadRuns(ctx context.Context, source string, limit int) ([]domain.LoadRun, error)
}

// Enqueuer queues background loads.
type Enqueuer interface {
	EnqueueLoad(ctx context.Context, p queue.LoadPayload, maxRetry int) (*asynq.TaskInfo, error)
	TaskInfo(queueName, taskID string) (*asynq.TaskInfo, error)
}

// Deps are the services the API is built on. Sources, Queue and Checks
// are optional.
type Deps struct {
	Runner  LoadRunner
	Loader  Loader
	Sources SourceStore
	Formats Formats
	Search  Searcher
	Dedupe  deduplication.Deduplicator
	Catalog Catalog
	Queue   Enqueuer
	Checks  map[string]ReadinessChecker
}

// Options are the HTTP settings.
type Options struct {
	Addr        string
	MaxUpload   int64 // bytes
	MaxRetries  int
	LoadTimeout time.Duration
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	opts   Options
	deps   Deps
	engine *gin.Engine
	logger *slog.Logger
}

// New constructs a server with routes and middleware.
func New(opts Options, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 30 * time.Minute
	}
	if deps.Formats == nil {
		deps.Formats = parsers.NewParserFactory(nil)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(corsMiddleware())
	if opts.MaxUpload > 0 {
		engine.MaxMultipartMemory = opts.MaxUpload
	}

	server := &Server{opts: opts, deps: deps, engine: engine, logger: logger}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", slog.String("addr", s.opts.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	s.engine.GET("/readyz", s.handleReady)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	{
		api.GET("/sources/:region", s.handleListSources)
		api.POST("/sources/:region", s.handleUploadSource)
		api.DELETE("/sources/:region/:id", s.handleDeleteSource)

		api.GET("/loads", s.handleListLoads)
		api.POST("/loads/:region", s.handleLoad)
		api.POST("/loads/:region/async", s.handleEnqueueLoad)
		api.GET("/loads/tasks/:id", s.handleTaskStatus)

		api.GET("/stations", s.handleSearch)
		api.DELETE("/stations", s.handleDeleteAll)
		api.GET("/stations/duplicates", s.handleFindDuplicates)
		api.DELETE("/stations/duplicates", s.handleRemoveDuplicates)

		api.GET("/stats", s.handleStats)
	}
}
