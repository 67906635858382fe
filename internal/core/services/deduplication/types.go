package deduplication

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/normalizer"
)

// Strategy defines how station names are compared when grouping
type Strategy string

const (
	StrategyExact      Strategy = "exact"      // Names must match byte for byte
	StrategyNormalized Strategy = "normalized" // Case, accents and spacing ignored
)

// Config for deduplication service
type Config struct {
	Strategy Strategy `json:"strategy"`
}

// DefaultConfig returns default deduplication configuration
func DefaultConfig() Config {
	return Config{Strategy: StrategyExact}
}

// StationRepository is the storage the detector scans and prunes.
type StationRepository interface {
	ListStations(ctx context.Context) ([]domain.Station, error)
	DeleteStationsByIDs(ctx context.Context, ids []int64) error
}

// Group is a set of stations sharing one (name, locality) key. Kept is the
// oldest member, Removed the rest in creation order.
type Group struct {
	Key        string           `json:"key"`
	Name       string           `json:"name"`
	LocalityID int64            `json:"locality_id"`
	Kept       domain.Station   `json:"kept"`
	Removed    []domain.Station `json:"removed"`
}

// RemovedIDs returns the ids of every station in the group except the kept one.
func (g Group) RemovedIDs() []int64 {
	ids := make([]int64, len(g.Removed))
	for i, s := range g.Removed {
		ids[i] = s.ID
	}
	return ids
}

// Result contains the result of a deduplication pass
type Result struct {
	Scanned          int       `json:"scanned"`
	Groups           []Group   `json:"groups"`
	RemovedCount     int       `json:"removed_count"`
	RemovedIDs       []int64   `json:"removed_ids"`
	Strategy         Strategy  `json:"strategy"`
	DryRun           bool      `json:"dry_run"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Deduplicator defines the interface for deduplication operations
type Deduplicator interface {
	// FindDuplicates reports duplicate groups without deleting anything
	FindDuplicates(ctx context.Context) (*Result, error)

	// RemoveDuplicates deletes every duplicate except the oldest per group
	RemoveDuplicates(ctx context.Context) (*Result, error)

	// GetConfig returns the current configuration
	GetConfig() Config
}

// groupKey builds the composite key stations are grouped by.
func groupKey(s domain.Station, strategy Strategy) string {
	name := s.Name
	if strategy == StrategyNormalized {
		name = normalizer.Key(name)
	}
	return fmt.Sprintf("%s_%d", name, s.LocalityID)
}
