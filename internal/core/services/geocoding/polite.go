package geocoding

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// PoliteGeocoder spaces calls to the inner geocoder at least delay apart.
// It is a courtesy to the upstream service, not a retry mechanism.
type PoliteGeocoder struct {
	inner Geocoder
	clock clockwork.Clock
	delay time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewPoliteGeocoder wraps inner. A nil clock uses the real clock.
func NewPoliteGeocoder(inner Geocoder, delay time.Duration, clock clockwork.Clock) *PoliteGeocoder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PoliteGeocoder{inner: inner, clock: clock, delay: delay}
}

// Geocode waits out the remaining delay since the previous call, then
// delegates. Waiting honours ctx cancellation.
func (p *PoliteGeocoder) Geocode(ctx context.Context, q Query) (Coordinates, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() && p.delay > 0 {
		if wait := p.delay - p.clock.Since(p.last); wait > 0 {
			select {
			case <-p.clock.After(wait):
			case <-ctx.Done():
				return Coordinates{}, false, ctx.Err()
			}
		}
	}

	defer func() { p.last = p.clock.Now() }()
	return p.inner.Geocode(ctx, q)
}
