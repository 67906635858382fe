// Package app composes the catalog services for the HTTP API, the queue
// worker and the command line loader.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/deduplication"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/extraction"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/queue"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/storage"
	apperrors "github.com/alejandroruanova/itv-catalog-service/internal/pkg/errors"
)

// Loader runs regional loads.
type Loader interface {
	LoadFile(ctx context.Context, region, path string) (*extraction.Summary, error)
	LoadReader(ctx context.Context, region, filename string, r io.Reader) (*extraction.Summary, error)
}

// SourceStore holds uploaded source files.
type SourceStore interface {
	OpenSource(ctx context.Context, region, fileID string) (io.ReadCloser, *storage.FileMetadata, error)
	LatestSource(ctx context.Context, region string) (*storage.FileMetadata, error)
}

// History records finished loads.
type History interface {
	SaveLoadRun(ctx context.Context, run *domain.LoadRun) error
}

// LoadRunner resolves which file a load request refers to and runs it,
// optionally followed by a duplicate sweep.
type LoadRunner struct {
	loader      Loader
	sources     SourceStore
	dedupe      deduplication.Deduplicator
	defaultPath func(region string) string
	history     History
	now         func() time.Time
	logger      *slog.Logger
}

// NewLoadRunner creates a runner. sources and dedupe may be nil; defaultPath
// returns the configured file of a region, or "" when there is none.
func NewLoadRunner(loader Loader, sources SourceStore, dedupe deduplication.Deduplicator, defaultPath func(string) string, logger *slog.Logger) *LoadRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultPath == nil {
		defaultPath = func(string) string { return "" }
	}

	return &LoadRunner{
		loader:      loader,
		sources:     sources,
		dedupe:      dedupe,
		defaultPath: defaultPath,
		now:         time.Now,
		logger:      logger,
	}
}

// WithHistory makes the runner record every load it finishes.
func (r *LoadRunner) WithHistory(h History) *LoadRunner {
	r.history = h
	return r
}

// Run loads the file named by p. Lookup order: the stored upload FileID,
// the local Path, the region's configured file, the region's latest upload.
func (r *LoadRunner) Run(ctx context.Context, p queue.LoadPayload) (*extraction.Summary, error) {
	if _, err := extraction.SourceFor(p.Region); err != nil {
		return nil, err
	}

	started := r.now()
	summary, file, err := r.load(ctx, p)
	r.record(ctx, p.Region, file, started, summary, err)
	if err != nil {
		return summary, err
	}

	if p.Dedupe && r.dedupe != nil {
		res, err := r.dedupe.RemoveDuplicates(ctx)
		if err != nil {
			return summary, apperrors.DatabaseError(err)
		}
		r.logger.Info("duplicate sweep after load",
			slog.String("region", p.Region),
			slog.Int("removed", res.RemovedCount))
	}

	return summary, nil
}

// Process adapts Run to the queue worker.
func (r *LoadRunner) Process(ctx context.Context, p queue.LoadPayload) error {
	_, err := r.Run(ctx, p)
	return err
}

// load returns the summary and the name of the file it read.
func (r *LoadRunner) load(ctx context.Context, p queue.LoadPayload) (*extraction.Summary, string, error) {
	switch {
	case p.FileID != "":
		return r.loadStored(ctx, p.Region, p.FileID)
	case p.Path != "":
		summary, err := r.loader.LoadFile(ctx, p.Region, p.Path)
		return summary, p.Path, err
	}

	if path := r.defaultPath(p.Region); path != "" {
		summary, err := r.loader.LoadFile(ctx, p.Region, path)
		return summary, path, err
	}

	if r.sources == nil {
		return nil, "", apperrors.NotFound(fmt.Sprintf("no source file configured for region %s", p.Region))
	}
	latest, err := r.sources.LatestSource(ctx, p.Region)
	if err != nil {
		return nil, "", storageError(err)
	}
	return r.loadStored(ctx, p.Region, latest.ID)
}

func (r *LoadRunner) loadStored(ctx context.Context, region, fileID string) (*extraction.Summary, string, error) {
	if r.sources == nil {
		return nil, "", apperrors.NotFound("source storage is not configured")
	}

	rc, meta, err := r.sources.OpenSource(ctx, region, fileID)
	if err != nil {
		return nil, "", storageError(err)
	}
	defer rc.Close()

	r.logger.Info("loading stored source",
		slog.String("region", region),
		slog.String("file_id", fileID),
		slog.String("file", meta.OriginalName))

	summary, err := r.loader.LoadReader(ctx, region, meta.OriginalName, rc)
	return summary, meta.OriginalName, err
}

// record saves the load outcome. A history failure is logged, never returned.
func (r *LoadRunner) record(ctx context.Context, region, file string, started time.Time, summary *extraction.Summary, loadErr error) {
	if r.history == nil {
		return
	}

	finished := r.now()
	run := &domain.LoadRun{
		Source:      region,
		FileName:    file,
		Status:      domain.LoadCompleted,
		StartedAt:   started,
		CompletedAt: &finished,
	}
	if summary != nil {
		if id, err := uuid.Parse(summary.RunID); err == nil {
			run.ID = id
		}
		run.TotalProcessed = summary.TotalProcessed
		run.Loaded = summary.Loaded
		run.Corrected = summary.Corrected
		run.Rejected = summary.Rejected
		run.Duplicates = summary.Duplicates
	}
	switch {
	case loadErr == nil:
	case errors.Is(loadErr, context.Canceled) || errors.Is(loadErr, context.DeadlineExceeded):
		run.Status = domain.LoadCancelled
		run.Error = loadErr.Error()
	default:
		run.Status = domain.LoadFailed
		run.Error = loadErr.Error()
	}

	// The load context may already be cancelled; the record must still land.
	if err := r.history.SaveLoadRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn("failed to record load run",
			slog.String("region", region),
			slog.Any("error", err))
	}
}

func storageError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound(err.Error())
	}
	return apperrors.InternalWrap(err, "failed to read stored source")
}
