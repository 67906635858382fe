package geocoding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/logger"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/metrics"
)

type mockCache struct {
	data   map[string]string
	getErr error
	sets   int
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string]string{}}
}

func (m *mockCache) Get(ctx context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.sets++
	m.data[key] = value
	return nil
}

type mockGeocoder struct {
	coords Coordinates
	found  bool
	err    error
	calls  int
}

func (m *mockGeocoder) Geocode(ctx context.Context, q Query) (Coordinates, bool, error) {
	m.calls++
	return m.coords, m.found, m.err
}

func TestCachedGeocoder_HitAfterMiss(t *testing.T) {
	inner := &mockGeocoder{coords: Coordinates{Lat: 39.47, Lon: -0.37}, found: true}
	cache := newMockCache()
	m := metrics.NewMetricsForTesting()
	g := NewCachedGeocoder(inner, cache, time.Hour, m, logger.Discard())

	q := Query{Address: "Calle Colón 1", Locality: "Valencia", Province: "Valencia"}
	first, ok, err := g.Geocode(context.Background(), q)
	require.NoError(t, err)
	require.True(t, ok)

	second, ok, err := g.Geocode(context.Background(), q)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("miss")))
}

func TestCachedGeocoder_KeyIgnoresAccentsAndCase(t *testing.T) {
	inner := &mockGeocoder{coords: Coordinates{Lat: 39.98, Lon: -0.04}, found: true}
	g := NewCachedGeocoder(inner, newMockCache(), time.Hour, nil, logger.Discard())

	_, _, err := g.Geocode(context.Background(), Query{Locality: "Castellón"})
	require.NoError(t, err)
	_, _, err = g.Geocode(context.Background(), Query{Locality: "CASTELLON"})
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoder_MissesNotCached(t *testing.T) {
	inner := &mockGeocoder{found: false}
	cache := newMockCache()
	g := NewCachedGeocoder(inner, cache, time.Hour, nil, logger.Discard())

	for i := 0; i < 2; i++ {
		_, ok, err := g.Geocode(context.Background(), Query{Locality: "Nowhere"})
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 2, inner.calls)
	assert.Zero(t, cache.sets)
}

func TestCachedGeocoder_CacheErrorFallsThrough(t *testing.T) {
	inner := &mockGeocoder{coords: Coordinates{Lat: 41.38, Lon: 2.17}, found: true}
	cache := newMockCache()
	cache.getErr = errors.New("redis down")
	g := NewCachedGeocoder(inner, cache, time.Hour, nil, logger.Discard())

	coords, ok, err := g.Geocode(context.Background(), Query{Locality: "Barcelona"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 41.38, coords.Lat)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoder_InnerError(t *testing.T) {
	inner := &mockGeocoder{err: errors.New("timeout")}
	g := NewCachedGeocoder(inner, newMockCache(), time.Hour, nil, logger.Discard())

	_, ok, err := g.Geocode(context.Background(), Query{Locality: "Lugo"})
	require.Error(t, err)
	assert.False(t, ok)
}
