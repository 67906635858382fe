package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/alejandroruanova/itv-catalog-service/internal/pkg/errors"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/metrics"
)

// NominatimClient implements Geocoder using the OpenStreetMap Nominatim search API.
type NominatimClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewNominatimClient creates a Nominatim geocoding client.
func NewNominatimClient(baseURL, userAgent string, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *NominatimClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &NominatimClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: m,
		logger:  logger,
	}
}

// Geocode searches Spain for the query address and returns the best match.
func (c *NominatimClient) Geocode(ctx context.Context, q Query) (Coordinates, bool, error) {
	params := url.Values{
		"q":            {q.String()},
		"format":       {"jsonv2"},
		"limit":        {"1"},
		"countrycodes": {"es"},
	}

	start := time.Now()
	coords, found, err := c.doRequest(ctx, c.baseURL+"/search?"+params.Encode())
	if c.metrics != nil {
		c.metrics.GeocodeDuration.Observe(time.Since(start).Seconds())
		outcome := "success"
		switch {
		case err != nil:
			outcome = "error"
		case !found:
			outcome = "empty"
		}
		c.metrics.GeocodeRequests.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		c.logger.Warn("geocode request failed",
			slog.String("query", q.String()),
			slog.Any("error", err))
	}
	return coords, found, err
}

func (c *NominatimClient) doRequest(ctx context.Context, fullURL string) (Coordinates, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "es")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Coordinates{}, false, apperrors.GeocodeFailed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Coordinates{}, false, apperrors.GeocodeFailed(fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return Coordinates{}, false, fmt.Errorf("decode response: %w", err)
	}
	if len(places) == 0 {
		return Coordinates{}, false, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("parse latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("parse longitude %q: %w", places[0].Lon, err)
	}
	return Coordinates{Lat: lat, Lon: lon}, true, nil
}

// Nominatim API response types.

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}
