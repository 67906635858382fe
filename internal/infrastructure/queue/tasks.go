package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	apperrors "github.com/alejandroruanova/itv-catalog-service/internal/pkg/errors"
)

// Queue names
const (
	QueueLoads   = "loads"
	QueueDefault = "default"
)

// TaskTypeLoadRegion is the task type of a regional load.
const TaskTypeLoadRegion = "catalog:load"

// LoadPayload asks a worker to load one region. FileID names a stored
// upload and Path a file on the worker's disk; with neither, the region's
// configured default file is used. Dedupe runs the duplicate detector
// after the load.
type LoadPayload struct {
	Region     string    `json:"region"`
	FileID     string    `json:"file_id,omitempty"`
	Path       string    `json:"path,omitempty"`
	Dedupe     bool      `json:"dedupe,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// LoadTaskID is the task id used for a region. Only one load per region can
// be pending or running at a time, because get-or-create is not safe for
// two concurrent loads of the same source.
func LoadTaskID(region string) string {
	return "load:" + region
}

// NewLoadTask builds the task for a region load.
func NewLoadTask(p LoadPayload, maxRetry int) (*asynq.Task, error) {
	if p.Region == "" {
		return nil, fmt.Errorf("load task needs a region")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal load payload: %w", err)
	}
	return asynq.NewTask(TaskTypeLoadRegion, payload,
		asynq.TaskID(LoadTaskID(p.Region)),
		asynq.Queue(QueueLoads),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(30*time.Minute),
	), nil
}

// EnqueueLoad enqueues a region load. A load already queued or running for
// the same region yields a CONFLICT error.
func (a *AsynqClient) EnqueueLoad(ctx context.Context, p LoadPayload, maxRetry int) (*asynq.TaskInfo, error) {
	task, err := NewLoadTask(p, maxRetry)
	if err != nil {
		return nil, apperrors.BadRequest(err.Error())
	}

	info, err := a.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, apperrors.Conflict(fmt.Sprintf("a load for region %s is already queued", p.Region))
	}
	if err != nil {
		return nil, apperrors.QueueError(err)
	}
	return info, nil
}

// LoadFunc runs one region load.
type LoadFunc func(ctx context.Context, p LoadPayload) error

// LoadHandler processes load tasks.
type LoadHandler struct {
	load   LoadFunc
	logger *slog.Logger
}

// NewLoadHandler wraps fn as an asynq handler.
func NewLoadHandler(fn LoadFunc, logger *slog.Logger) *LoadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoadHandler{load: fn, logger: logger}
}

// ProcessTask implements asynq.Handler. Errors that retrying cannot fix
// (bad payload, unknown region, unsupported format) skip retries.
func (h *LoadHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p LoadPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("invalid load payload: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("load task started",
		slog.String("region", p.Region),
		slog.String("file_id", p.FileID),
		slog.String("path", p.Path))

	err := h.load(ctx, p)
	switch {
	case err == nil:
		return nil
	case apperrors.HasCode(err, apperrors.ErrCodeUnknownRegion),
		apperrors.HasCode(err, apperrors.ErrCodeUnsupportedFormat),
		apperrors.HasCode(err, apperrors.ErrCodeNotFound):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}
