// Package geocoding resolves station addresses to coordinates for sources
// that publish none.
package geocoding

import (
	"context"
	"strings"
)

// Query is the address a station is geocoded by.
type Query struct {
	Address    string `json:"address"`
	Locality   string `json:"locality"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
}

// String renders the query as a free-form address line.
func (q Query) String() string {
	postal := strings.TrimSpace(q.PostalCode)
	if postal == "00000" {
		postal = ""
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{q.Address, postal + " " + q.Locality, q.Province} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Geocoder looks up the position of an address. found is false when the
// service answered but had no match.
type Geocoder interface {
	Geocode(ctx context.Context, q Query) (coords Coordinates, found bool, err error)
}
