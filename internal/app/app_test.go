package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/search"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/queue"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/config"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/logger"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/metrics"
)

const galiciaCSV = "NOME DA ESTACIÓN;ENDEREZO;CONCELLO;CÓDIGO POSTAL;PROVINCIA;COORDENADAS GMAPS\n" +
	"Vigo - Valladares;Rúa Industrial 1;Vigo;36314;Pontevedra;42.2256, -8.6927\n" +
	"Lugo;Polígono O Ceao;Lugo;27003;Lugo;43.0226, -7.5900\n" +
	"Sen coordenadas;Rúa Nova;Ourense;32001;Ourense;\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Database:       config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "itv.db")},
		Storage:        config.StorageConfig{BasePath: filepath.Join(dir, "sources")},
		Sources:        config.SourcesConfig{GALPath: filepath.Join(dir, "gal.csv")},
		MaxFileSize:    50,
		DedupeStrategy: "exact",
	}
}

func TestBuild_LoadSearchAndDedupe(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Sources.GALPath, []byte(galiciaCSV), 0o644))

	a, err := Build(cfg, metrics.NewMetricsForTesting(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	assert.True(t, a.Parsers.IsSupported(".xml"))

	ctx := context.Background()
	summary, err := a.Runner.Run(ctx, queue.LoadPayload{Region: "gal"})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 2, summary.Loaded)
	assert.Equal(t, 1, summary.Rejected)

	again, err := a.Runner.Run(ctx, queue.LoadPayload{Region: "gal", Dedupe: true})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Duplicates)

	count, err := a.Catalog.CountStations(ctx, domain.StationQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	hits, err := a.Search.Search(ctx, search.Filter{
		Near:     &search.Point{Lat: 42.24, Lon: -8.72},
		RadiusKm: 50,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Vigo - Valladares", hits[0].Station.Name)
	assert.Equal(t, "Pontevedra", hits[0].Province)
	assert.Equal(t, "Vigo", hits[0].Locality)

	runs, err := a.Catalog.ListLoadRuns(ctx, "gal", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, summary.RunID, runs[1].ID.String())
	assert.Equal(t, domain.LoadCompleted, runs[0].Status)
	assert.Equal(t, 2, runs[0].Duplicates)
}

func TestBuild_StoredUpload(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.GALPath = ""

	a, err := Build(cfg, nil, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx := context.Background()
	meta, err := a.Storage.SaveSource(ctx, "gal", "estacions.csv", strings.NewReader(galiciaCSV))
	require.NoError(t, err)

	summary, err := a.Runner.Run(ctx, queue.LoadPayload{Region: "gal", FileID: meta.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Loaded)

	latest, err := a.Runner.Run(ctx, queue.LoadPayload{Region: "gal"})
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Duplicates)
}

func TestBuild_BadReferencePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReferenceDataPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(cfg, nil, logger.Discard())
	assert.Error(t, err)
}
