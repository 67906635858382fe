package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/reference"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/deduplication"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/extraction"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/geocoding"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/search"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/validation"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/cache"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/database"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/database/repositories"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/parsers"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/storage"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/config"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/metrics"
)

const megabyte = 1024 * 1024

// App holds the constructed catalog services. Close releases what Build opened.
type App struct {
	Config    *config.Config
	DB        *database.DB
	Catalog   *repositories.CatalogRepository
	Cache     *cache.RedisCache
	Storage   *storage.LocalStorage
	Parsers   *parsers.ParserFactory
	Loader    *extraction.Loader
	Runner    *LoadRunner
	Dedupe    *deduplication.Service
	Search    *search.Service
	Metrics   *metrics.Metrics
	Reference *reference.Data

	logger *slog.Logger
}

// Build opens the database, migrates it and wires the services. The Redis
// geocode cache is attached only when both geocoding and the cache are enabled.
func Build(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewMetricsForTesting()
	}

	ref, err := reference.Load(cfg.ReferenceDataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}

	db, err := database.Open(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		Config:    cfg,
		DB:        db,
		Catalog:   repositories.NewCatalogRepository(db.DB, logger),
		Metrics:   m,
		Reference: ref,
		logger:    logger,
	}

	store, err := storage.NewLocalStorage(&storage.LocalStorageConfig{
		BasePath: cfg.Storage.BasePath,
		MaxSize:  cfg.MaxFileSize * megabyte,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Storage = store

	geocoder, err := a.buildGeocoder()
	if err != nil {
		a.Close()
		return nil, err
	}

	validator := validation.NewValidator(ref,
		validation.WithStrictProvinces(cfg.StrictProvinces),
		validation.WithLogger(logger))

	a.Parsers = parsers.NewParserFactory(&parsers.ParserConfig{
		SkipEmptyRows:  true,
		TrimWhitespace: true,
		MaxFileSize:    cfg.MaxFileSize * megabyte,
	})

	opts := []extraction.Option{
		extraction.WithParsers(a.Parsers),
		extraction.WithMetrics(m),
		extraction.WithLogger(logger),
	}
	if geocoder != nil {
		opts = append(opts, extraction.WithGeocoder(geocoder))
	}
	a.Loader = extraction.NewLoader(a.Catalog, validator, opts...)

	a.Dedupe = deduplication.NewService(deduplication.Config{
		Strategy: deduplication.Strategy(cfg.DedupeStrategy),
	}, a.Catalog, m, logger)
	a.Search = search.NewService(a.Catalog, logger)
	a.Runner = NewLoadRunner(a.Loader, a.Storage, a.Dedupe, cfg.SourcePath, logger).WithHistory(a.Catalog)

	return a, nil
}

// buildGeocoder chains Nominatim, the politeness delay and, when enabled,
// the Redis cache in front of both.
func (a *App) buildGeocoder() (geocoding.Geocoder, error) {
	cfg := a.Config
	if !cfg.Geocoding.Enabled {
		a.logger.Warn("geocoding disabled, stations from feeds without coordinates are stored without position")
		return nil, nil
	}

	var g geocoding.Geocoder = geocoding.NewNominatimClient(
		cfg.Geocoding.BaseURL, cfg.Geocoding.UserAgent, cfg.Geocoding.Timeout, a.Metrics, a.logger)
	g = geocoding.NewPoliteGeocoder(g, cfg.Geocoding.Delay, clockwork.NewRealClock())

	if !cfg.Cache.Enabled {
		return g, nil
	}

	redisCache, err := cache.NewRedisCache(&cfg.Cache, a.logger)
	if err != nil {
		return nil, err
	}
	a.Cache = redisCache
	return geocoding.NewCachedGeocoder(g, redisCache, cfg.Cache.GeocodeTTL, a.Metrics, a.logger), nil
}

// Close releases the database and cache connections.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
