package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/logger"
)

// mockStore implements Store in memory for testing
type mockStore struct {
	provinces  []domain.Province
	localities []domain.Locality

	findCalls   int
	insertCalls int

	findErr   error
	insertErr error
	// raceOnInsert simulates another writer creating the row between find and insert.
	raceOnInsert bool
}

func (m *mockStore) FindProvinceByName(_ context.Context, name string) (*domain.Province, error) {
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	for i := range m.provinces {
		if m.provinces[i].Name == name {
			return &m.provinces[i], nil
		}
	}
	return nil, nil
}

func (m *mockStore) InsertProvince(_ context.Context, name string) (*domain.Province, error) {
	m.insertCalls++
	if m.raceOnInsert {
		m.provinces = append(m.provinces, domain.Province{ID: int64(len(m.provinces) + 100), Name: name})
		return nil, errors.New("duplicated key not allowed")
	}
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	p := domain.Province{ID: int64(len(m.provinces) + 1), Name: name}
	m.provinces = append(m.provinces, p)
	return &p, nil
}

func (m *mockStore) FindLocality(_ context.Context, name string, provinceID int64) (*domain.Locality, error) {
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	for i := range m.localities {
		if m.localities[i].Name == name && m.localities[i].ProvinceID == provinceID {
			return &m.localities[i], nil
		}
	}
	return nil, nil
}

func (m *mockStore) InsertLocality(_ context.Context, name string, provinceID int64) (*domain.Locality, error) {
	m.insertCalls++
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	l := domain.Locality{ID: int64(len(m.localities) + 1), Name: name, ProvinceID: provinceID}
	m.localities = append(m.localities, l)
	return &l, nil
}

func TestResolver_GetOrCreateProvince(t *testing.T) {
	store := &mockStore{}
	r := NewResolver(store, logger.Discard())
	ctx := context.Background()

	id, err := r.GetOrCreateProvince(ctx, "Lugo")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, 1, store.insertCalls)

	again, err := r.GetOrCreateProvince(ctx, " Lugo ")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, store.insertCalls, "memoized lookups do not insert")
	assert.Len(t, store.provinces, 1)
}

func TestResolver_ExistingProvinceFromStore(t *testing.T) {
	store := &mockStore{provinces: []domain.Province{{ID: 7, Name: "Girona"}}}
	r := NewResolver(store, logger.Discard())

	id, err := r.GetOrCreateProvince(context.Background(), "Girona")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Zero(t, store.insertCalls)
}

func TestResolver_ProvinceInsertRace(t *testing.T) {
	store := &mockStore{raceOnInsert: true}
	r := NewResolver(store, logger.Discard())

	id, err := r.GetOrCreateProvince(context.Background(), "Ourense")
	require.NoError(t, err)
	assert.Equal(t, int64(100), id)
	assert.Len(t, store.provinces, 1)
}

func TestResolver_StoreErrors(t *testing.T) {
	ctx := context.Background()

	r := NewResolver(&mockStore{findErr: errors.New("connection reset")}, logger.Discard())
	_, err := r.GetOrCreateProvince(ctx, "Lugo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	r = NewResolver(&mockStore{insertErr: errors.New("disk full")}, logger.Discard())
	_, err = r.GetOrCreateProvince(ctx, "Lugo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, err = r.GetOrCreateLocality(ctx, "Foz", 1)
	require.Error(t, err)

	_, err = r.GetOrCreateProvince(ctx, "  ")
	assert.Error(t, err)
}

func TestResolver_LocalityScopedByProvince(t *testing.T) {
	store := &mockStore{}
	r := NewResolver(store, logger.Discard())
	ctx := context.Background()

	a, err := r.GetOrCreateLocality(ctx, "Sant Julià", 1)
	require.NoError(t, err)
	b, err := r.GetOrCreateLocality(ctx, "Sant Julià", 2)
	require.NoError(t, err)
	again, err := r.GetOrCreateLocality(ctx, "Sant Julià", 1)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, again)
	assert.Len(t, store.localities, 2)

	_, err = r.GetOrCreateLocality(ctx, "Foz", 0)
	assert.Error(t, err)
}
