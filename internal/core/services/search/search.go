// Package search is the read side of the catalog: attribute filters over
// the province, locality and station hierarchy plus an optional distance
// ranking around a point.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
)

// EarthRadiusKm is the mean Earth radius used for haversine distances.
const EarthRadiusKm = 6371.0

// DefaultLimit caps the number of hits when a filter sets none.
const DefaultLimit = 500

// Point is a WGS84 position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Filter selects stations. Empty fields match everything. Province and
// Locality are case-insensitive substring matches.
type Filter struct {
	Province string
	Locality string
	Type     domain.StationType
	Near     *Point
	RadiusKm float64
	Limit    int
}

// Hit is a matching station. DistanceKm is set when the filter has a point
// and the station has coordinates.
type Hit struct {
	Station    domain.Station `json:"station"`
	Province   string         `json:"province"`
	Locality   string         `json:"locality"`
	DistanceKm *float64       `json:"distance_km,omitempty"`
}

// Repository is the catalog read access search needs.
type Repository interface {
	SearchStations(ctx context.Context, q domain.StationQuery) ([]domain.Station, error)
}

// Service runs catalog searches.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a search service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Validate checks the filter values that cannot be pushed down to storage.
func (f Filter) Validate() error {
	if f.Type != "" && !f.Type.IsValid() {
		return fmt.Errorf("unknown station type %q", f.Type)
	}
	if f.RadiusKm < 0 {
		return fmt.Errorf("radius must not be negative")
	}
	if f.RadiusKm > 0 && f.Near == nil {
		return fmt.Errorf("radius requires a point")
	}
	if f.Near != nil && (math.Abs(f.Near.Lat) > 90 || math.Abs(f.Near.Lon) > 180) {
		return fmt.Errorf("point %g,%g is not a valid position", f.Near.Lat, f.Near.Lon)
	}
	return nil
}

// Search returns the stations matching f. With a point, hits are sorted by
// ascending distance and stations without coordinates go last; with a
// radius they are dropped instead.
func (s *Service) Search(ctx context.Context, f Filter) ([]Hit, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	stations, err := s.repo.SearchStations(ctx, domain.StationQuery{
		Province: f.Province,
		Locality: f.Locality,
		Type:     f.Type,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search stations: %w", err)
	}

	hits := make([]Hit, 0, len(stations))
	for _, st := range stations {
		hit := Hit{Station: st}
		if st.Locality != nil {
			hit.Locality = st.Locality.Name
			if st.Locality.Province != nil {
				hit.Province = st.Locality.Province.Name
			}
		}

		if f.Near != nil && st.HasCoordinates() {
			d := Haversine(*f.Near, Point{Lat: st.Latitude, Lon: st.Longitude})
			if f.RadiusKm > 0 && d > f.RadiusKm {
				continue
			}
			hit.DistanceKm = &d
		} else if f.RadiusKm > 0 {
			continue
		}

		hits = append(hits, hit)
	}

	if f.Near != nil {
		sort.SliceStable(hits, func(i, j int) bool {
			a, b := hits[i].DistanceKm, hits[j].DistanceKm
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return *a < *b
			}
		})
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	s.logger.Debug("station search",
		slog.String("province", f.Province),
		slog.String("locality", f.Locality),
		slog.String("type", string(f.Type)),
		slog.Bool("near", f.Near != nil),
		slog.Int("hits", len(hits)))

	return hits, nil
}

// Haversine is the great-circle distance between a and b in kilometres.
func Haversine(a, b Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
