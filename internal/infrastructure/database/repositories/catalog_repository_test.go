package repositories

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/database"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/config"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/logger"
)

func setupTestRepo(t *testing.T) *CatalogRepository {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "catalog.db"),
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	return NewCatalogRepository(db.DB, logger.Discard())
}

// seedStation creates the province and locality when needed and inserts a station.
func seedStation(t *testing.T, repo *CatalogRepository, province, locality, name string, typ domain.StationType, lat, lon float64) *domain.Station {
	t.Helper()
	ctx := context.Background()

	p, err := repo.FindProvinceByName(ctx, province)
	require.NoError(t, err)
	if p == nil {
		p, err = repo.InsertProvince(ctx, province)
		require.NoError(t, err)
	}
	l, err := repo.FindLocality(ctx, locality, p.ID)
	require.NoError(t, err)
	if l == nil {
		l, err = repo.InsertLocality(ctx, locality, p.ID)
		require.NoError(t, err)
	}

	st := &domain.Station{
		Name:       name,
		Type:       typ,
		PostalCode: "00000",
		Latitude:   lat,
		Longitude:  lon,
		LocalityID: l.ID,
	}
	require.NoError(t, repo.InsertStation(ctx, st))
	return st
}

func TestCatalogRepository_ProvinceAndLocality(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	missing, err := repo.FindProvinceByName(ctx, "Lugo")
	require.NoError(t, err)
	assert.Nil(t, missing)

	lugo, err := repo.InsertProvince(ctx, "Lugo")
	require.NoError(t, err)
	assert.NotZero(t, lugo.ID)

	found, err := repo.FindProvinceByName(ctx, "Lugo")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, lugo.ID, found.ID)

	_, err = repo.InsertProvince(ctx, "Lugo")
	assert.Error(t, err, "province names are unique")

	ourense, err := repo.InsertProvince(ctx, "Ourense")
	require.NoError(t, err)

	// Same locality name under two provinces is allowed.
	_, err = repo.InsertLocality(ctx, "Vilanova", lugo.ID)
	require.NoError(t, err)
	_, err = repo.InsertLocality(ctx, "Vilanova", ourense.ID)
	require.NoError(t, err)
	_, err = repo.InsertLocality(ctx, "Vilanova", lugo.ID)
	assert.Error(t, err)

	loc, err := repo.FindLocality(ctx, "Vilanova", ourense.ID)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, ourense.ID, loc.ProvinceID)

	none, err := repo.FindLocality(ctx, "Vilanova", 999)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCatalogRepository_StationLifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	st := seedStation(t, repo, "Alicante", "Elche", "ITV Elche", domain.StationFixed, 38.26, -0.70)
	assert.NotZero(t, st.ID)
	assert.False(t, st.CreatedAt.IsZero())

	exists, err := repo.StationExists(ctx, "ITV Elche", st.LocalityID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.StationExists(ctx, "ITV Elche", st.LocalityID+1)
	require.NoError(t, err)
	assert.False(t, exists)

	dup := seedStation(t, repo, "Alicante", "Elche", "ITV Elche", domain.StationFixed, 38.26, -0.70)

	all, err := repo.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "ITV Elche", all[0].Name)
	assert.Equal(t, st.LocalityID, all[1].LocalityID)

	require.NoError(t, repo.DeleteStationsByIDs(ctx, []int64{dup.ID}))
	require.NoError(t, repo.DeleteStationsByIDs(ctx, nil))

	count, err := repo.CountStations(ctx, domain.StationQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	removed, err := repo.DeleteAllStations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	provinces, err := repo.CountProvinces(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), provinces)
}

func TestCatalogRepository_SearchStations(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	seedStation(t, repo, "Valencia", "Alzira", "ITV Alzira", domain.StationFixed, 39.15, -0.43)
	seedStation(t, repo, "Valencia", "Valencia", "ITV Valencia Norte", domain.StationFixed, 39.50, -0.38)
	seedStation(t, repo, "Valencia", "Valencia", "ITV Móvil Valencia", domain.StationMobile, 0, 0)
	seedStation(t, repo, "Barcelona", "Sabadell", "ITV Sabadell", domain.StationFixed, 41.55, 2.11)

	tests := []struct {
		name  string
		query domain.StationQuery
		want  []string
	}{
		{
			name:  "no filter",
			query: domain.StationQuery{},
			want:  []string{"ITV Alzira", "ITV Móvil Valencia", "ITV Sabadell", "ITV Valencia Norte"},
		},
		{
			name:  "province substring ignores case",
			query: domain.StationQuery{Province: "VALEN"},
			want:  []string{"ITV Alzira", "ITV Móvil Valencia", "ITV Valencia Norte"},
		},
		{
			name:  "locality substring",
			query: domain.StationQuery{Locality: "sabad"},
			want:  []string{"ITV Sabadell"},
		},
		{
			name:  "type",
			query: domain.StationQuery{Province: "valencia", Type: domain.StationMobile},
			want:  []string{"ITV Móvil Valencia"},
		},
		{
			name:  "no match",
			query: domain.StationQuery{Province: "Lugo"},
			want:  []string{},
		},
		{
			name:  "underscore is literal",
			query: domain.StationQuery{Province: "_"},
			want:  []string{},
		},
		{
			name:  "percent is literal",
			query: domain.StationQuery{Locality: "%"},
			want:  []string{},
		},
		{
			name:  "wildcard inside a word is literal",
			query: domain.StationQuery{Locality: "sabad_ll"},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stations, err := repo.SearchStations(ctx, tt.query)
			require.NoError(t, err)

			names := make([]string, 0, len(stations))
			for _, s := range stations {
				names = append(names, s.Name)
				require.NotNil(t, s.Locality)
				require.NotNil(t, s.Locality.Province)
			}
			assert.Equal(t, tt.want, names)

			count, err := repo.CountStations(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), count)
		})
	}
}

func TestCatalogRepository_CountByProvince(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	seedStation(t, repo, "Girona", "Girona", "ITV Girona", domain.StationFixed, 41.98, 2.82)
	seedStation(t, repo, "Girona", "Figueres", "ITV Figueres", domain.StationFixed, 42.26, 2.96)
	_, err := repo.InsertProvince(ctx, "Lleida")
	require.NoError(t, err)

	counts, err := repo.CountByProvince(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ProvinceCount{
		{Province: "Girona", Stations: 2},
		{Province: "Lleida", Stations: 0},
	}, counts)

	localities, err := repo.CountLocalities(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), localities)
}

func TestCatalogRepository_ContextCancelled(t *testing.T) {
	repo := setupTestRepo(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := repo.ListStations(ctx)
	assert.Error(t, err)
}

func TestCatalogRepository_LoadRuns(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, src := range []string{"cv", "gal", "cv"} {
		run := &domain.LoadRun{
			Source:    src,
			Status:    domain.LoadCompleted,
			Loaded:    i + 1,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, repo.SaveLoadRun(ctx, run))
		assert.NotEqual(t, uuid.Nil, run.ID)
	}

	all, err := repo.ListLoadRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 3, all[0].Loaded, "newest first")

	cv, err := repo.ListLoadRuns(ctx, "cv", 1)
	require.NoError(t, err)
	require.Len(t, cv, 1)
	assert.Equal(t, "cv", cv[0].Source)
	assert.Equal(t, 3, cv[0].Loaded)
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%valencia%", likePattern("Valencia"))
	assert.Equal(t, `%\_%`, likePattern("_"))
	assert.Equal(t, `%50\%%`, likePattern("50%"))
	assert.Equal(t, `%a\\b%`, likePattern(`a\b`))
}
