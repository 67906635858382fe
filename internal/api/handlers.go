package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/extraction"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/search"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/queue"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/storage"
	apperrors "github.com/alejandroruanova/itv-catalog-service/internal/pkg/errors"
)

const (
	megabyte            = 1024 * 1024
	defaultHistoryLimit = 50
)

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, check := range s.deps.Checks {
		if err := check.Ping(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "errors": failures})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// regionParam validates the :region path parameter.
func (s *Server) regionParam(c *gin.Context) (string, bool) {
	src, err := extraction.SourceFor(c.Param("region"))
	if err != nil {
		s.respondError(c, err)
		return "", false
	}
	return src.Region(), true
}

// uploadedFile returns the multipart "file" field, or nil when the request has none.
func (s *Server) uploadedFile(c *gin.Context) (*multipart.FileHeader, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, apperrors.InvalidFile(err.Error())
	}
	if s.opts.MaxUpload > 0 && fh.Size > s.opts.MaxUpload {
		return nil, apperrors.FileTooLarge(s.opts.MaxUpload / megabyte)
	}
	if ext := filepath.Ext(fh.Filename); !s.deps.Formats.IsSupported(ext) {
		return nil, apperrors.UnsupportedFormat(ext).
			WithDetails("supported", s.deps.Formats.SupportedFormats())
	}
	return fh, nil
}

// handleUploadSource stores a raw source file for later loads.
// POST /api/sources/:region
func (s *Server) handleUploadSource(c *gin.Context) {
	region, ok := s.regionParam(c)
	if !ok {
		return
	}
	if s.deps.Sources == nil {
		s.respondError(c, apperrors.New(apperrors.ErrCodeInternal, "source storage is not configured", http.StatusNotImplemented))
		return
	}

	fh, err := s.uploadedFile(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if fh == nil {
		s.respondError(c, apperrors.BadRequest("multipart field \"file\" is required"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.respondError(c, apperrors.InvalidFile(err.Error()))
		return
	}
	defer f.Close()

	meta, err := s.deps.Sources.SaveSource(c.Request.Context(), region, fh.Filename, f)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			s.respondError(c, apperrors.FileTooLarge(s.opts.MaxUpload/megabyte))
			return
		}
		s.respondError(c, apperrors.InternalWrap(err, "failed to store source file"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": meta})
}

// handleListSources lists the stored files of a region, newest first.
// GET /api/sources/:region
func (s *Server) handleListSources(c *gin.Context) {
	region, ok := s.regionParam(c)
	if !ok {
		return
	}
	if s.deps.Sources == nil {
		c.JSON(http.StatusOK, gin.H{"data": []storage.FileMetadata{}, "meta": gin.H{"count": 0}})
		return
	}

	files, err := s.deps.Sources.ListSources(c.Request.Context(), region)
	if err != nil {
		s.respondError(c, apperrors.InternalWrap(err, "failed to list source files"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": files, "meta": gin.H{"count": len(files)}})
}

// handleDeleteSource removes a stored upload.
// DELETE /api/sources/:region/:id
func (s *Server) handleDeleteSource(c *gin.Context) {
	region, ok := s.regionParam(c)
	if !ok {
		return
	}
	if s.deps.Sources == nil {
		s.respondError(c, apperrors.NotFound("source storage is not configured"))
		return
	}

	if err := s.deps.Sources.DeleteSource(c.Request.Context(), region, c.Param("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(c, apperrors.NotFound(err.Error()))
			return
		}
		s.respondError(c, apperrors.InternalWrap(err, "failed to delete source file"))
		return
	}

	c.Status(http.StatusNoContent)
}

// handleListLoads returns the load history, newest first.
// GET /api/loads?region=&limit=
func (s *Server) handleListLoads(c *gin.Context) {
	region := ""
	if raw := c.Query("region"); raw != "" {
		src, err := extraction.SourceFor(raw)
		if err != nil {
			s.respondError(c, err)
			return
		}
		region = src.Region()
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(c, apperrors.BadRequest("invalid limit"))
			return
		}
		limit = n
	}

	runs, err := s.deps.Catalog.ListLoadRuns(c.Request.Context(), region, limit)
	if err != nil {
		s.respondError(c, apperrors.DatabaseError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs, "meta": gin.H{"count": len(runs)}})
}

// handleLoad runs a load synchronously and returns its summary. The source
// is the multipart "file" if present, else the stored upload named by
// file_id, else the region's default.
// POST /api/loads/:region
func (s *Server) handleLoad(c *gin.Context) {
	region, ok := s.regionParam(c)
	if !ok {
		return
	}
	dedupe, err := boolQuery(c, "dedupe")
	if err != nil {
		s.respondError(c, err)
		return
	}
	verbose, err := boolQuery(c, "events")
	if err != nil {
		s.respondError(c, err)
		return
	}

	fh, err := s.uploadedFile(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.LoadTimeout)
	defer cancel()

	var summary *extraction.Summary
	if fh != nil {
		summary, err = s.loadUpload(ctx, region, fh, dedupe)
	} else {
		summary, err = s.deps.Runner.Run(ctx, queue.LoadPayload{
			Region: region,
			FileID: c.Query("file_id"),
			Dedupe: dedupe,
		})
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	if !verbose {
		summary.Events = nil
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) loadUpload(ctx context.Context, region string, fh *multipart.FileHeader, dedupe bool) (*extraction.Summary, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.InvalidFile(err.Error())
	}
	defer f.Close()

	summary, err := s.deps.Loader.LoadReader(ctx, region, fh.Filename, f)
	if err != nil {
		return nil, err
	}
	if dedupe && s.deps.Dedupe != nil {
		if _, err := s.deps.Dedupe.RemoveDuplicates(ctx); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
	}
	return summary, nil
}

// handleEnqueueLoad queues a background load of a region.
// POST /api/loads/:region/async
func (s *Server) handleEnqueueLoad(c *gin.Context) {
	region, ok := s.regionParam(c)
	if !ok {
		return
	}
	if s.deps.Queue == nil {
		s.respondError(c, apperrors.QueueError(fmt.Errorf("background loads are disabled")))
		return
	}
	dedupe, err := boolQuery(c, "dedupe")
	if err != nil {
		s.respondError(c, err)
		return
	}

	info, err := s.deps.Queue.EnqueueLoad(c.Request.Context(), queue.LoadPayload{
		Region:     region,
		FileID:     c.Query("file_id"),
		Dedupe:     dedupe,
		EnqueuedAt: time.Now().UTC(),
	}, s.opts.MaxRetries)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": taskView(info)})
}

// handleTaskStatus reports the state of a queued load.
// GET /api/loads/tasks/:id
func (s *Server) handleTaskStatus(c *gin.Context) {
	if s.deps.Queue == nil {
		s.respondError(c, apperrors.QueueError(fmt.Errorf("background loads are disabled")))
		return
	}

	info, err := s.deps.Queue.TaskInfo(queue.QueueLoads, c.Param("id"))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			s.respondError(c, apperrors.NotFound(fmt.Sprintf("task %s not found", c.Param("id"))))
			return
		}
		s.respondError(c, apperrors.QueueError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": taskView(info)})
}

func taskView(info *asynq.TaskInfo) gin.H {
	view := gin.H{
		"id":        info.ID,
		"queue":     info.Queue,
		"state":     info.State.String(),
		"retried":   info.Retried,
		"max_retry": info.MaxRetry,
	}
	if info.LastErr != "" {
		view["last_error"] = info.LastErr
	}
	if !info.CompletedAt.IsZero() {
		view["completed_at"] = info.CompletedAt
	}
	return view
}

// handleSearch lists stations.
// GET /api/stations?provincia=&localidad=&tipo=&lat=&lon=&radio=&limit=
func (s *Server) handleSearch(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	hits, err := s.deps.Search.Search(ctx, filter)
	if err != nil {
		s.respondError(c, apperrors.DatabaseError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": hits,
		"meta": gin.H{"count": len(hits)},
	})
}

func parseFilter(c *gin.Context) (search.Filter, error) {
	filter := search.Filter{
		Province: strings.TrimSpace(c.Query("provincia")),
		Locality: strings.TrimSpace(c.Query("localidad")),
	}
	if tipo := strings.TrimSpace(c.Query("tipo")); tipo != "" {
		filter.Type = domain.StationType(tipo)
		if !filter.Type.IsValid() {
			filter.Type = domain.ParseStationType(tipo)
		}
	}

	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if (latStr == "") != (lonStr == "") {
		return filter, apperrors.BadRequest("lat and lon must be given together")
	}
	if latStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return filter, apperrors.BadRequest("invalid lat")
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return filter, apperrors.BadRequest("invalid lon")
		}
		filter.Near = &search.Point{Lat: lat, Lon: lon}
	}

	if radio := c.Query("radio"); radio != "" {
		r, err := strconv.ParseFloat(radio, 64)
		if err != nil {
			return filter, apperrors.BadRequest("invalid radio")
		}
		filter.RadiusKm = r
	}

	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return filter, apperrors.BadRequest("invalid limit")
		}
		filter.Limit = n
	}

	if err := filter.Validate(); err != nil {
		return filter, apperrors.BadRequest(err.Error())
	}
	return filter, nil
}

// handleDeleteAll removes every station. Provinces and localities stay.
// DELETE /api/stations
func (s *Server) handleDeleteAll(c *gin.Context) {
	n, err := s.deps.Catalog.DeleteAllStations(c.Request.Context())
	if err != nil {
		s.respondError(c, apperrors.DatabaseError(err))
		return
	}
	s.logger.Warn("catalog stations deleted", slog.Int64("count", n))
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": n}})
}

// handleFindDuplicates reports duplicate groups without deleting.
// GET /api/stations/duplicates
func (s *Server) handleFindDuplicates(c *gin.Context) {
	res, err := s.deps.Dedupe.FindDuplicates(c.Request.Context())
	if err != nil {
		s.respondError(c, apperrors.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// handleRemoveDuplicates keeps the oldest station of each group.
// DELETE /api/stations/duplicates
func (s *Server) handleRemoveDuplicates(c *gin.Context) {
	res, err := s.deps.Dedupe.RemoveDuplicates(c.Request.Context())
	if err != nil {
		s.respondError(c, apperrors.DatabaseError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// handleStats returns catalog counts.
// GET /api/stats
func (s *Server) handleStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stations, err := s.deps.Catalog.CountStations(ctx, domain.StationQuery{})
	if err != nil {
		s.respondError(c, apperrors.DatabaseError(err))
		return
	}
	provinces, err := s.deps.Catalog.CountProvinces(ctx)
	if err != nil {
		s.respondError(c, apperrors.DatabaseError(err))
		return
	}
	localities, err := s.deps.Catalog.CountLocalities(ctx)
	if err != nil {
		s.respondError(c, apperrors.DatabaseError(err))
		return
	}
	byProvince, err := s.deps.Catalog.CountByProvince(ctx)
	if err != nil {
		s.respondError(c, apperrors.DatabaseError(err))
		return
	}

	byType := gin.H{}
	for _, t := range domain.ValidStationTypes() {
		n, err := s.deps.Catalog.CountStations(ctx, domain.StationQuery{Type: t})
		if err != nil {
			s.respondError(c, apperrors.DatabaseError(err))
			return
		}
		byType[string(t)] = n
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"stations":    stations,
		"provinces":   provinces,
		"localities":  localities,
		"by_province": byProvince,
		"by_type":     byType,
	}})
}

func boolQuery(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.BadRequest(fmt.Sprintf("invalid %s parameter", name))
	}
	return v, nil
}
