package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no stored source file matches.
var ErrNotFound = errors.New("source file not found")

// ErrTooLarge is returned when an upload exceeds the configured size limit.
var ErrTooLarge = errors.New("source file exceeds maximum size")

// LocalStorage keeps uploaded regional source files on the local filesystem,
// laid out as <base>/sources/<region>/<file id>/<original name>.
type LocalStorage struct {
	basePath string
	maxSize  int64
	logger   *slog.Logger
}

// LocalStorageConfig configures local storage
type LocalStorageConfig struct {
	BasePath string // Base directory (e.g. "/tmp/itv-sources")
	MaxSize  int64  // Maximum upload size in bytes, 0 for unlimited
}

// FileMetadata describes a stored source file
type FileMetadata struct {
	ID           string    `json:"id"`
	Region       string    `json:"region"`
	OriginalName string    `json:"original_name"`
	StoredPath   string    `json:"-"`
	Size         int64     `json:"size"`
	Hash         string    `json:"sha256"`
	ContentType  string    `json:"content_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(cfg *LocalStorageConfig, logger *slog.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		basePath: cfg.BasePath,
		maxSize:  cfg.MaxSize,
		logger:   logger,
	}, nil
}

// SaveSource stores an uploaded source file for region under a new id.
func (s *LocalStorage) SaveSource(ctx context.Context, region, filename string, reader io.Reader) (*FileMetadata, error) {
	fileID := uuid.NewString()
	uploadDir := s.sourceDir(region, fileID)
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	safeName := filepath.Base(filename)
	destPath := filepath.Join(uploadDir, safeName)

	destFile, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer destFile.Close()

	src := reader
	if s.maxSize > 0 {
		src = io.LimitReader(reader, s.maxSize+1)
	}

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(destFile, hash), src)
	if err != nil {
		_ = os.RemoveAll(uploadDir)
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}
	if s.maxSize > 0 && size > s.maxSize {
		destFile.Close()
		_ = os.RemoveAll(uploadDir)
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, s.maxSize)
	}

	metadata := &FileMetadata{
		ID:           fileID,
		Region:       region,
		OriginalName: safeName,
		StoredPath:   destPath,
		Size:         size,
		Hash:         hex.EncodeToString(hash.Sum(nil)),
		ContentType:  getContentType(safeName),
		CreatedAt:    time.Now().UTC(),
	}

	s.logger.Info("source file stored",
		slog.String("region", region),
		slog.String("file_id", fileID),
		slog.String("filename", safeName),
		slog.Int64("size", size),
		slog.String("hash", metadata.Hash))

	return metadata, nil
}

// GetSource returns the metadata of a stored source file.
func (s *LocalStorage) GetSource(ctx context.Context, region, fileID string) (*FileMetadata, error) {
	dir := s.sourceDir(region, fileID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, region, fileID)
		}
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat source file: %w", err)
		}
		return &FileMetadata{
			ID:           fileID,
			Region:       region,
			OriginalName: entry.Name(),
			StoredPath:   filepath.Join(dir, entry.Name()),
			Size:         info.Size(),
			ContentType:  getContentType(entry.Name()),
			CreatedAt:    info.ModTime().UTC(),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, region, fileID)
}

// OpenSource opens a stored source file for reading.
func (s *LocalStorage) OpenSource(ctx context.Context, region, fileID string) (io.ReadCloser, *FileMetadata, error) {
	meta, err := s.GetSource(ctx, region, fileID)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(meta.StoredPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, meta, nil
}

// ListSources returns the stored files of a region, newest first.
func (s *LocalStorage) ListSources(ctx context.Context, region string) ([]FileMetadata, error) {
	entries, err := os.ReadDir(filepath.Join(s.basePath, "sources", region))
	if err != nil {
		if os.IsNotExist(err) {
			return []FileMetadata{}, nil
		}
		return nil, fmt.Errorf("failed to read region directory: %w", err)
	}

	files := make([]FileMetadata, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.GetSource(ctx, region, entry.Name())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		files = append(files, *meta)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

// LatestSource returns the most recently stored file for region.
func (s *LocalStorage) LatestSource(ctx context.Context, region string) (*FileMetadata, error) {
	files, err := s.ListSources(ctx, region)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no uploads for %s", ErrNotFound, region)
	}
	return &files[0], nil
}

// DeleteSource removes a stored source file.
func (s *LocalStorage) DeleteSource(ctx context.Context, region, fileID string) error {
	if _, err := uuid.Parse(fileID); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}

	if err := os.RemoveAll(s.sourceDir(region, fileID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete upload directory: %w", err)
	}

	s.logger.Info("source file deleted",
		slog.String("region", region),
		slog.String("file_id", fileID))

	return nil
}

// CleanupOldFiles removes stored files older than the specified duration
func (s *LocalStorage) CleanupOldFiles(ctx context.Context, olderThan time.Duration) error {
	cutoffTime := time.Now().Add(-olderThan)

	regions, err := os.ReadDir(filepath.Join(s.basePath, "sources"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read sources directory: %w", err)
	}

	for _, region := range regions {
		if !region.IsDir() {
			continue
		}
		if err := s.cleanupDirectory(filepath.Join(s.basePath, "sources", region.Name()), cutoffTime); err != nil {
			return fmt.Errorf("failed to cleanup %s: %w", region.Name(), err)
		}
	}

	s.logger.Info("cleanup completed",
		slog.Duration("older_than", olderThan))

	return nil
}

// cleanupDirectory removes directories older than cutoff time
func (s *LocalStorage) cleanupDirectory(dir string, cutoffTime time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dirPath := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("failed to get file info",
				slog.String("path", dirPath),
				slog.Any("error", err))
			continue
		}

		if info.ModTime().Before(cutoffTime) {
			if err := os.RemoveAll(dirPath); err != nil {
				s.logger.Warn("failed to remove directory",
					slog.String("path", dirPath),
					slog.Any("error", err))
			} else {
				s.logger.Debug("removed old directory",
					slog.String("path", dirPath),
					slog.Time("mod_time", info.ModTime()))
			}
		}
	}

	return nil
}

func (s *LocalStorage) sourceDir(region, fileID string) string {
	return filepath.Join(s.basePath, "sources", filepath.Base(region), filepath.Base(fileID))
}

// getContentType returns the content type based on file extension
func getContentType(filename string) string {
	switch filepath.Ext(filename) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}
