package deduplication

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/metrics"
)

// Service implements the Deduplicator interface
type Service struct {
	config  Config
	repo    StationRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates a new deduplication service
func NewService(config Config, repo StationRepository, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Strategy == "" {
		config.Strategy = StrategyExact
	}

	return &Service{
		config:  config,
		repo:    repo,
		metrics: m,
		logger:  logger,
	}
}

// GetConfig returns the current configuration
func (s *Service) GetConfig() Config {
	return s.config
}

// FindDuplicates scans the catalog and reports what RemoveDuplicates would delete.
func (s *Service) FindDuplicates(ctx context.Context) (*Result, error) {
	return s.run(ctx, true)
}

// RemoveDuplicates keeps the oldest station of every (name, locality) group
// and deletes the rest in one bulk delete. Running it twice in a row removes
// nothing the second time.
func (s *Service) RemoveDuplicates(ctx context.Context) (*Result, error) {
	return s.run(ctx, false)
}

func (s *Service) run(ctx context.Context, dryRun bool) (*Result, error) {
	startTime := time.Now()

	stations, err := s.repo.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}

	s.logger.Info("starting duplicate scan",
		slog.Int("station_count", len(stations)),
		slog.String("strategy", string(s.config.Strategy)),
		slog.Bool("dry_run", dryRun))

	groups := s.group(stations)

	ids := make([]int64, 0)
	for _, g := range groups {
		ids = append(ids, g.RemovedIDs()...)
		s.logger.Debug("duplicate group found",
			slog.String("key", g.Key),
			slog.Int64("kept_id", g.Kept.ID),
			slog.Int("removed", len(g.Removed)))
	}

	if !dryRun && len(ids) > 0 {
		if err := s.repo.DeleteStationsByIDs(ctx, ids); err != nil {
			return nil, fmt.Errorf("failed to delete duplicates: %w", err)
		}
		if s.metrics != nil {
			s.metrics.DuplicatesRemoved.Add(float64(len(ids)))
		}
	}

	result := &Result{
		Scanned:          len(stations),
		Groups:           groups,
		RemovedCount:     len(ids),
		RemovedIDs:       ids,
		Strategy:         s.config.Strategy,
		DryRun:           dryRun,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		FinishedAt:       time.Now().UTC(),
	}
	if dryRun {
		result.RemovedCount = 0
	}

	s.logger.Info("duplicate scan completed",
		slog.Int("groups", len(groups)),
		slog.Int("duplicates", len(ids)),
		slog.Int("removed_count", result.RemovedCount),
		slog.Int64("processing_time_ms", result.ProcessingTimeMs))

	return result, nil
}

// group buckets stations by key and returns only buckets with more than one
// member, ordered by key.
func (s *Service) group(stations []domain.Station) []Group {
	buckets := make(map[string][]domain.Station)
	order := make([]string, 0)
	for _, st := range stations {
		key := groupKey(st, s.config.Strategy)
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], st)
	}
	sort.Strings(order)

	groups := make([]Group, 0)
	for _, key := range order {
		members := buckets[key]
		if len(members) < 2 {
			continue
		}

		sort.SliceStable(members, func(i, j int) bool {
			if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
				return members[i].CreatedAt.Before(members[j].CreatedAt)
			}
			return members[i].ID < members[j].ID
		})

		groups = append(groups, Group{
			Key:        key,
			Name:       members[0].Name,
			LocalityID: members[0].LocalityID,
			Kept:       members[0],
			Removed:    members[1:],
		})
	}
	return groups
}
