package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/deduplication"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/extraction"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/queue"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/storage"
	apperrors "github.com/alejandroruanova/itv-catalog-service/internal/pkg/errors"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/logger"
)

type mockLoader struct {
	files   []string
	readers []string
	err     error
}

func (m *mockLoader) LoadFile(_ context.Context, region, path string) (*extraction.Summary, error) {
	m.files = append(m.files, path)
	if m.err != nil {
		return nil, m.err
	}
	return &extraction.Summary{Source: region}, nil
}

func (m *mockLoader) LoadReader(_ context.Context, region, filename string, r io.Reader) (*extraction.Summary, error) {
	body, _ := io.ReadAll(r)
	m.readers = append(m.readers, filename+":"+string(body))
	if m.err != nil {
		return nil, m.err
	}
	return &extraction.Summary{Source: region}, nil
}

type mockSources struct {
	files map[string]string
	names map[string]string
}

func (m *mockSources) OpenSource(_ context.Context, region, fileID string) (io.ReadCloser, *storage.FileMetadata, error) {
	body, ok := m.files[fileID]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), &storage.FileMetadata{ID: fileID, Region: region, OriginalName: m.names[fileID]}, nil
}

func (m *mockSources) LatestSource(_ context.Context, region string) (*storage.FileMetadata, error) {
	for id := range m.files {
		return &storage.FileMetadata{ID: id, Region: region}, nil
	}
	return nil, storage.ErrNotFound
}

type mockDedupe struct {
	calls int
	err   error
}

func (m *mockDedupe) FindDuplicates(_ context.Context) (*deduplication.Result, error) {
	return &deduplication.Result{DryRun: true}, m.err
}

func (m *mockDedupe) RemoveDuplicates(_ context.Context) (*deduplication.Result, error) {
	m.calls++
	return &deduplication.Result{RemovedCount: 2}, m.err
}

func (m *mockDedupe) GetConfig() deduplication.Config {
	return deduplication.DefaultConfig()
}

type mockHistory struct {
	runs []domain.LoadRun
	err  error
}

func (m *mockHistory) SaveLoadRun(_ context.Context, run *domain.LoadRun) error {
	m.runs = append(m.runs, *run)
	return m.err
}

func TestLoadRunner_ResolutionOrder(t *testing.T) {
	sources := &mockSources{
		files: map[string]string{"f1": "[]"},
		names: map[string]string{"f1": "cv.json"},
	}
	defaults := func(region string) string {
		if region == "gal" {
			return "/data/gal.csv"
		}
		return ""
	}

	tests := []struct {
		name       string
		payload    queue.LoadPayload
		wantFile   string
		wantReader string
	}{
		{"stored upload", queue.LoadPayload{Region: "cv", FileID: "f1"}, "", "cv.json:[]"},
		{"explicit path", queue.LoadPayload{Region: "cv", Path: "/tmp/x.json"}, "/tmp/x.json", ""},
		{"configured default", queue.LoadPayload{Region: "gal"}, "/data/gal.csv", ""},
		{"latest upload", queue.LoadPayload{Region: "cat"}, "", "cv.json:[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &mockLoader{}
			runner := NewLoadRunner(loader, sources, nil, defaults, logger.Discard())

			summary, err := runner.Run(context.Background(), tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.payload.Region, summary.Source)

			if tt.wantFile != "" {
				assert.Equal(t, []string{tt.wantFile}, loader.files)
			}
			if tt.wantReader != "" {
				assert.Equal(t, []string{tt.wantReader}, loader.readers)
			}
		})
	}
}

func TestLoadRunner_Errors(t *testing.T) {
	runner := NewLoadRunner(&mockLoader{}, &mockSources{}, nil, nil, logger.Discard())

	_, err := runner.Run(context.Background(), queue.LoadPayload{Region: "mad"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnknownRegion))

	_, err = runner.Run(context.Background(), queue.LoadPayload{Region: "cv", FileID: "nope"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))

	_, err = runner.Run(context.Background(), queue.LoadPayload{Region: "cv"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))

	noStorage := NewLoadRunner(&mockLoader{}, nil, nil, nil, logger.Discard())
	_, err = noStorage.Run(context.Background(), queue.LoadPayload{Region: "cv"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestLoadRunner_Dedupe(t *testing.T) {
	dedupe := &mockDedupe{}
	runner := NewLoadRunner(&mockLoader{}, nil, dedupe, nil, logger.Discard())

	_, err := runner.Run(context.Background(), queue.LoadPayload{Region: "cv", Path: "a.json", Dedupe: true})
	require.NoError(t, err)
	assert.Equal(t, 1, dedupe.calls)

	_, err = runner.Run(context.Background(), queue.LoadPayload{Region: "cv", Path: "a.json"})
	require.NoError(t, err)
	assert.Equal(t, 1, dedupe.calls)

	dedupe.err = errors.New("db down")
	err = runner.Process(context.Background(), queue.LoadPayload{Region: "cv", Path: "a.json", Dedupe: true})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabaseError))
}

func TestLoadRunner_LoadFailureSkipsDedupe(t *testing.T) {
	dedupe := &mockDedupe{}
	runner := NewLoadRunner(&mockLoader{err: apperrors.UnsupportedFormat(".pdf")}, nil, dedupe, nil, logger.Discard())

	err := runner.Process(context.Background(), queue.LoadPayload{Region: "cv", Path: "a.pdf", Dedupe: true})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedFormat))
	assert.Zero(t, dedupe.calls)
}

func TestLoadRunner_History(t *testing.T) {
	history := &mockHistory{}
	loader := &mockLoader{}
	runner := NewLoadRunner(loader, nil, nil, nil, logger.Discard()).WithHistory(history)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	runner.now = func() time.Time { return start }

	_, err := runner.Run(context.Background(), queue.LoadPayload{Region: "cv", Path: "/data/cv.json"})
	require.NoError(t, err)

	loader.err = apperrors.UnsupportedFormat(".pdf")
	_, err = runner.Run(context.Background(), queue.LoadPayload{Region: "gal", Path: "/data/gal.pdf"})
	require.Error(t, err)

	loader.err = context.Canceled
	_, err = runner.Run(context.Background(), queue.LoadPayload{Region: "cat", Path: "/data/cat.xml"})
	require.Error(t, err)

	_, err = runner.Run(context.Background(), queue.LoadPayload{Region: "mad"})
	require.Error(t, err)

	require.Len(t, history.runs, 3, "unknown regions are not recorded")

	assert.Equal(t, "cv", history.runs[0].Source)
	assert.Equal(t, "/data/cv.json", history.runs[0].FileName)
	assert.Equal(t, domain.LoadCompleted, history.runs[0].Status)
	assert.Equal(t, start, history.runs[0].StartedAt)
	require.NotNil(t, history.runs[0].CompletedAt)
	assert.Empty(t, history.runs[0].Error)

	assert.Equal(t, domain.LoadFailed, history.runs[1].Status)
	assert.NotEmpty(t, history.runs[1].Error)

	assert.Equal(t, domain.LoadCancelled, history.runs[2].Status)
}

func TestLoadRunner_HistoryFailureIgnored(t *testing.T) {
	history := &mockHistory{err: errors.New("db down")}
	runner := NewLoadRunner(&mockLoader{}, nil, nil, nil, logger.Discard()).WithHistory(history)

	summary, err := runner.Run(context.Background(), queue.LoadPayload{Region: "cv", Path: "a.json"})
	require.NoError(t, err)
	assert.Equal(t, "cv", summary.Source)
	assert.Len(t, history.runs, 1)
}
