package geocoding

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/metrics"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/normalizer"
)

// Cache is a string key/value store with expiry. Get reports found=false on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// CachedGeocoder wraps a Geocoder with a shared cache so repeated loads do
// not hit the upstream service for addresses already resolved.
type CachedGeocoder struct {
	inner   Geocoder
	cache   Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner Geocoder, cache Cache, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *CachedGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGeocoder{inner: inner, cache: cache, ttl: ttl, metrics: m, logger: logger}
}

// Geocode serves from cache when possible. Cache failures fall through to
// the inner geocoder.
func (c *CachedGeocoder) Geocode(ctx context.Context, q Query) (Coordinates, bool, error) {
	key := cacheKey(q)

	raw, found, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("geocode cache read failed", slog.String("key", key), slog.Any("error", err))
	}
	if err == nil && found {
		var coords Coordinates
		if jsonErr := json.Unmarshal([]byte(raw), &coords); jsonErr == nil {
			c.observe("hit")
			return coords, true, nil
		}
	}
	c.observe("miss")

	coords, ok, err := c.inner.Geocode(ctx, q)
	if err != nil || !ok {
		// Misses are not cached so a later run can retry them.
		return coords, ok, err
	}

	payload, _ := json.Marshal(coords)
	if err := c.cache.Set(ctx, key, string(payload), c.ttl); err != nil {
		c.logger.Warn("geocode cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return coords, true, nil
}

func (c *CachedGeocoder) observe(result string) {
	if c.metrics != nil {
		c.metrics.GeocodeCache.WithLabelValues(result).Inc()
	}
}

func cacheKey(q Query) string {
	return "geocode:" + normalizer.Key(q.String())
}
