package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/logger"
)

type mockRepository struct {
	stations []domain.Station
	err      error
	lastQ    domain.StationQuery
}

func (m *mockRepository) SearchStations(_ context.Context, q domain.StationQuery) ([]domain.Station, error) {
	m.lastQ = q
	return m.stations, m.err
}

func station(id int64, name string, lat, lon float64) domain.Station {
	return domain.Station{
		ID:        id,
		Name:      name,
		Type:      domain.StationFixed,
		Latitude:  lat,
		Longitude: lon,
		Locality: &domain.Locality{
			Name:     name,
			Province: &domain.Province{Name: "Valencia"},
		},
	}
}

func TestHaversine(t *testing.T) {
	madrid := Point{Lat: 40.4168, Lon: -3.7038}
	barcelona := Point{Lat: 41.3874, Lon: 2.1686}

	assert.InDelta(t, 505, Haversine(madrid, barcelona), 2)
	assert.InDelta(t, Haversine(madrid, barcelona), Haversine(barcelona, madrid), 1e-9)
	assert.Zero(t, Haversine(madrid, madrid))
}

func TestService_SearchSortsByDistance(t *testing.T) {
	repo := &mockRepository{stations: []domain.Station{
		station(1, "Gandia", 38.9671, -0.1819),
		station(2, "Sagunto", 39.6797, -0.2784),
		{ID: 3, Name: "Móvil 1", Type: domain.StationMobile},
		station(4, "Valencia", 39.4699, -0.3763),
	}}
	svc := NewService(repo, logger.Discard())

	hits, err := svc.Search(context.Background(), Filter{
		Province: "valencia",
		Near:     &Point{Lat: 39.4699, Lon: -0.3763},
	})
	require.NoError(t, err)
	require.Len(t, hits, 4)

	assert.Equal(t, "valencia", repo.lastQ.Province)
	assert.Equal(t, int64(4), hits[0].Station.ID)
	assert.Equal(t, int64(2), hits[1].Station.ID)
	assert.Equal(t, int64(1), hits[2].Station.ID)
	assert.Equal(t, int64(3), hits[3].Station.ID)
	assert.InDelta(t, 0, *hits[0].DistanceKm, 1e-9)
	assert.Nil(t, hits[3].DistanceKm)
	assert.Equal(t, "Valencia", hits[0].Province)
}

func TestService_SearchRadius(t *testing.T) {
	repo := &mockRepository{stations: []domain.Station{
		station(1, "Gandia", 38.9671, -0.1819),
		station(2, "Sagunto", 39.6797, -0.2784),
		{ID: 3, Name: "Móvil 1", Type: domain.StationMobile},
	}}
	svc := NewService(repo, logger.Discard())

	hits, err := svc.Search(context.Background(), Filter{
		Near:     &Point{Lat: 39.4699, Lon: -0.3763},
		RadiusKm: 30,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Sagunto", hits[0].Station.Name)
}

func TestService_SearchWithoutPointKeepsRepositoryOrder(t *testing.T) {
	repo := &mockRepository{stations: []domain.Station{
		station(2, "Alzira", 39.15, -0.43),
		station(1, "Burjassot", 39.50, -0.41),
	}}
	svc := NewService(repo, logger.Discard())

	hits, err := svc.Search(context.Background(), Filter{Type: domain.StationFixed, Limit: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Alzira", hits[0].Station.Name)
	assert.Nil(t, hits[0].DistanceKm)
	assert.Equal(t, domain.StationFixed, repo.lastQ.Type)
}

func TestFilter_Validate(t *testing.T) {
	tests := []struct {
		name    string
		filter  Filter
		wantErr bool
	}{
		{"empty", Filter{}, false},
		{"valid type", Filter{Type: domain.StationMobile}, false},
		{"unknown type", Filter{Type: "Garaje"}, true},
		{"radius without point", Filter{RadiusKm: 10}, true},
		{"negative radius", Filter{Near: &Point{Lat: 40, Lon: -3}, RadiusKm: -1}, true},
		{"bad point", Filter{Near: &Point{Lat: 100, Lon: 0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_SearchRepositoryError(t *testing.T) {
	svc := NewService(&mockRepository{err: errors.New("db down")}, logger.Discard())

	_, err := svc.Search(context.Background(), Filter{})
	assert.Error(t, err)
}
