package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/logger"
)

func setupTestStorage(t *testing.T, maxSize int64) (*LocalStorage, string) {
	tempDir := t.TempDir()

	storage, err := NewLocalStorage(&LocalStorageConfig{
		BasePath: tempDir,
		MaxSize:  maxSize,
	}, logger.Discard())
	require.NoError(t, err)

	return storage, tempDir
}

func TestLocalStorage_SaveAndOpenSource(t *testing.T) {
	storage, basePath := setupTestStorage(t, 0)
	ctx := context.Background()

	content := []byte("NOME DA ESTACIÓN;CONCELLO\nITV Vigo;Vigo\n")
	meta, err := storage.SaveSource(ctx, "gal", "../../Estacions_ITVs.csv", bytes.NewReader(content))
	require.NoError(t, err)

	assert.NotEmpty(t, meta.ID)
	assert.Equal(t, "gal", meta.Region)
	assert.Equal(t, "Estacions_ITVs.csv", meta.OriginalName)
	assert.Equal(t, int64(len(content)), meta.Size)
	assert.Len(t, meta.Hash, 64)
	assert.Equal(t, "text/csv", meta.ContentType)
	assert.True(t, strings.HasPrefix(meta.StoredPath, filepath.Join(basePath, "sources", "gal")))

	rc, opened, err := storage.OpenSource(ctx, "gal", meta.ID)
	require.NoError(t, err)
	defer rc.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	assert.Equal(t, content, buf.Bytes())
	assert.Equal(t, meta.OriginalName, opened.OriginalName)
}

func TestLocalStorage_SourceNotFound(t *testing.T) {
	storage, _ := setupTestStorage(t, 0)

	_, _, err := storage.OpenSource(context.Background(), "cat", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = storage.LatestSource(context.Background(), "cat")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_MaxSize(t *testing.T) {
	storage, basePath := setupTestStorage(t, 8)

	_, err := storage.SaveSource(context.Background(), "cv", "estaciones.json", strings.NewReader(`[{"PROVINCIA":"Alicante"}]`))
	require.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(filepath.Join(basePath, "sources", "cv"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStorage_ListAndLatest(t *testing.T) {
	storage, _ := setupTestStorage(t, 0)
	ctx := context.Background()

	older, err := storage.SaveSource(ctx, "cat", "ITV-CAT.xml", strings.NewReader("<a/>"))
	require.NoError(t, err)
	newer, err := storage.SaveSource(ctx, "cat", "ITV-CAT-2.xml", strings.NewReader("<b/>"))
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older.StoredPath, past, past))

	files, err := storage.ListSources(ctx, "cat")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, newer.ID, files[0].ID)

	latest, err := storage.LatestSource(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
	assert.Equal(t, "application/xml", latest.ContentType)

	empty, err := storage.ListSources(ctx, "gal")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLocalStorage_DeleteSource(t *testing.T) {
	storage, _ := setupTestStorage(t, 0)
	ctx := context.Background()

	meta, err := storage.SaveSource(ctx, "gal", "itv.csv", strings.NewReader("a;b\n"))
	require.NoError(t, err)

	require.NoError(t, storage.DeleteSource(ctx, "gal", meta.ID))

	_, err = os.Stat(meta.StoredPath)
	assert.True(t, os.IsNotExist(err))

	err = storage.DeleteSource(ctx, "gal", "..")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_CleanupOldFiles(t *testing.T) {
	storage, basePath := setupTestStorage(t, 0)
	ctx := context.Background()

	oldDir := filepath.Join(basePath, "sources", "cv", "old-upload")
	require.NoError(t, os.MkdirAll(oldDir, 0755))
	twoHoursAgo := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldDir, twoHoursAgo, twoHoursAgo))

	recentDir := filepath.Join(basePath, "sources", "cv", "recent-upload")
	require.NoError(t, os.MkdirAll(recentDir, 0755))

	require.NoError(t, storage.CleanupOldFiles(ctx, time.Hour))

	_, err := os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(recentDir)
	assert.NoError(t, err)
}

func TestLocalStorage_GetContentType(t *testing.T) {
	tests := []struct {
		filename    string
		contentType string
	}{
		{"file.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"file.csv", "text/csv"},
		{"file.json", "application/json"},
		{"file.xml", "application/xml"},
		{"file.unknown", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.contentType, getContentType(tt.filename))
		})
	}
}

func TestLocalStorage_HashConsistency(t *testing.T) {
	storage, _ := setupTestStorage(t, 0)
	ctx := context.Background()

	content := []byte("PROVINCIA;CONCELLO\nLugo;Lugo\n")

	meta1, err := storage.SaveSource(ctx, "gal", "a.csv", bytes.NewReader(content))
	require.NoError(t, err)
	meta2, err := storage.SaveSource(ctx, "gal", "b.csv", bytes.NewReader(content))
	require.NoError(t, err)

	assert.NotEqual(t, meta1.ID, meta2.ID)
	assert.Equal(t, meta1.Hash, meta2.Hash)
}
