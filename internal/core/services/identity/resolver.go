// Package identity turns corrected province and locality names into stable
// catalog ids, creating the rows the first time a name is seen.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
)

// Store is the persistence the resolver needs. Find methods return nil, nil
// when no row matches.
type Store interface {
	FindProvinceByName(ctx context.Context, name string) (*domain.Province, error)
	InsertProvince(ctx context.Context, name string) (*domain.Province, error)
	FindLocality(ctx context.Context, name string, provinceID int64) (*domain.Locality, error)
	InsertLocality(ctx context.Context, name string, provinceID int64) (*domain.Locality, error)
}

type localityKey struct {
	name       string
	provinceID int64
}

// Resolver implements get-or-create for provinces and localities.
//
// A Resolver memoizes the ids it has seen and is meant to live for a single
// load run. It is not safe for concurrent use.
type Resolver struct {
	store      Store
	logger     *slog.Logger
	provinces  map[string]int64
	localities map[localityKey]int64
}

// NewResolver creates a resolver backed by store.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		store:      store,
		logger:     logger,
		provinces:  make(map[string]int64),
		localities: make(map[localityKey]int64),
	}
}

// GetOrCreateProvince returns the id of the province called name, inserting
// it if needed. Names are only trimmed; they are expected to be canonical.
func (r *Resolver) GetOrCreateProvince(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("province name is empty")
	}
	if id, ok := r.provinces[name]; ok {
		return id, nil
	}

	p, err := r.store.FindProvinceByName(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to look up province %q: %w", name, err)
	}

	if p == nil {
		p, err = r.store.InsertProvince(ctx, name)
		if err != nil {
			// Another writer may have created it since the lookup.
			existing, findErr := r.store.FindProvinceByName(ctx, name)
			if findErr != nil || existing == nil {
				return 0, fmt.Errorf("failed to create province %q: %w", name, err)
			}
			p = existing
		} else {
			r.logger.Info("province created",
				slog.String("name", name),
				slog.Int64("id", p.ID))
		}
	}

	r.provinces[name] = p.ID
	return p.ID, nil
}

// GetOrCreateLocality returns the id of the locality called name inside
// provinceID, inserting it if needed.
func (r *Resolver) GetOrCreateLocality(ctx context.Context, name string, provinceID int64) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("locality name is empty")
	}
	if provinceID <= 0 {
		return 0, fmt.Errorf("locality %q: invalid province id %d", name, provinceID)
	}

	key := localityKey{name: name, provinceID: provinceID}
	if id, ok := r.localities[key]; ok {
		return id, nil
	}

	l, err := r.store.FindLocality(ctx, name, provinceID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up locality %q: %w", name, err)
	}

	if l == nil {
		l, err = r.store.InsertLocality(ctx, name, provinceID)
		if err != nil {
			existing, findErr := r.store.FindLocality(ctx, name, provinceID)
			if findErr != nil || existing == nil {
				return 0, fmt.Errorf("failed to create locality %q: %w", name, err)
			}
			l = existing
		} else {
			r.logger.Info("locality created",
				slog.String("name", name),
				slog.Int64("province_id", provinceID),
				slog.Int64("id", l.ID))
		}
	}

	r.localities[key] = l.ID
	return l.ID, nil
}
