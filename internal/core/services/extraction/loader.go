// Package extraction runs regional loads: it reads a source feed, validates
// and corrects each record, resolves its province and locality and inserts
// the station when it is not already in the catalog.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/geocoding"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/identity"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/validation"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/parsers"
	apperrors "github.com/alejandroruanova/itv-catalog-service/internal/pkg/errors"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/metrics"
)

// Store is the persistence a load needs.
type Store interface {
	identity.Store
	StationExists(ctx context.Context, name string, localityID int64) (bool, error)
	InsertStation(ctx context.Context, station *domain.Station) error
}

// Summary is the tally of one regional load.
type Summary struct {
	RunID          string        `json:"run_id"`
	Source         string        `json:"source"`
	Loaded         int           `json:"loaded"`
	Corrected      int           `json:"corrected"`
	Rejected       int           `json:"rejected"`
	Duplicates     int           `json:"duplicates"`
	TotalProcessed int           `json:"total_processed"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration_ns"`
	Events         []Event       `json:"events,omitempty"`
}

func (s *Summary) add(e Event) {
	s.TotalProcessed++
	switch {
	case e.Outcome.Inserted():
		s.Loaded++
		if e.Outcome == OutcomeCorrected {
			s.Corrected++
		}
	case e.Outcome == OutcomeDuplicate:
		s.Duplicates++
		s.Rejected++
	default:
		s.Rejected++
	}
	s.Events = append(s.Events, e)
}

// Option configures a Loader.
type Option func(*Loader)

// WithGeocoder sets the geocoder used for feeds without coordinates.
func WithGeocoder(g geocoding.Geocoder) Option {
	return func(l *Loader) { l.geocoder = g }
}

// WithSink adds a sink that receives every record decision.
func WithSink(s Sink) Option {
	return func(l *Loader) { l.sink = s }
}

// WithMetrics records load metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// WithParsers sets the format readers used by LoadFile and LoadReader.
func WithParsers(f *parsers.ParserFactory) Option {
	return func(l *Loader) { l.parsers = f }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loader runs regional loads. Records of one load are processed strictly
// one after another; separate loads may run concurrently.
type Loader struct {
	store     Store
	validator *validation.Validator
	geocoder  geocoding.Geocoder
	parsers   *parsers.ParserFactory
	sink      Sink
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewLoader creates a loader.
func NewLoader(store Store, validator *validation.Validator, opts ...Option) *Loader {
	l := &Loader{
		store:     store,
		validator: validator,
		parsers:   parsers.NewParserFactory(nil),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.sink == nil {
		l.sink = NewLogSink(l.logger)
	}
	return l
}

// LoadFile reads the file at path with the parser for its extension and loads it.
func (l *Loader) LoadFile(ctx context.Context, region, path string) (*Summary, error) {
	src, err := SourceFor(region)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NotFound(fmt.Sprintf("source file %s not found", path))
		}
		return nil, apperrors.SourceReadFailed(err, src.Region())
	}
	defer f.Close()

	return l.load(ctx, src, filepath.Base(path), f)
}

// LoadReader parses r, using filename's extension to pick the format, and loads it.
func (l *Loader) LoadReader(ctx context.Context, region, filename string, r io.Reader) (*Summary, error) {
	src, err := SourceFor(region)
	if err != nil {
		return nil, err
	}
	return l.load(ctx, src, filename, r)
}

func (l *Loader) load(ctx context.Context, src Source, filename string, r io.Reader) (*Summary, error) {
	if !l.parsers.IsSupported(filepath.Ext(filename)) {
		return nil, apperrors.UnsupportedFormat(filepath.Ext(filename))
	}

	parsed, err := l.parsers.ParseReader(ctx, filename, r)
	if err != nil {
		return nil, apperrors.SourceReadFailed(err, src.Region())
	}

	l.logger.Info("source parsed",
		slog.String("source", src.Region()),
		slog.String("file", filename),
		slog.String("format", parsed.Format),
		slog.String("encoding", parsed.Encoding),
		slog.Int("records", len(parsed.Records)),
		slog.Int("skipped_rows", parsed.SkippedRows))

	return l.LoadRecords(ctx, src, parsed.Records)
}

// LoadRecords runs the record pipeline over already parsed rows. A record
// failure never stops the load; only context cancellation does, in which
// case the partial summary is returned with the error.
func (l *Loader) LoadRecords(ctx context.Context, src Source, records []parsers.Record) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.NewString(),
		Source:    src.Region(),
		StartedAt: time.Now().UTC(),
		Events:    make([]Event, 0, len(records)),
	}

	if l.metrics != nil {
		l.metrics.LoadsRunning.Inc()
		defer l.metrics.LoadsRunning.Dec()
	}

	l.logger.Info("load started",
		slog.String("run_id", summary.RunID),
		slog.String("source", src.Region()),
		slog.Int("records", len(records)))

	run := &loadRun{
		Loader:   l,
		src:      src,
		runID:    summary.RunID,
		resolver: identity.NewResolver(l.store, l.logger),
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			summary.Duration = time.Since(summary.StartedAt)
			return summary, err
		}

		e := run.process(ctx, i, rec)
		summary.add(e)
		l.sink.Record(ctx, e)
		if l.metrics != nil {
			l.metrics.RecordsProcessed.WithLabelValues(src.Region(), string(e.Outcome)).Inc()
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	if l.metrics != nil {
		l.metrics.LoadDuration.WithLabelValues(src.Region()).Observe(summary.Duration.Seconds())
	}

	l.logger.Info("load finished",
		slog.String("run_id", summary.RunID),
		slog.String("source", src.Region()),
		slog.Int("loaded", summary.Loaded),
		slog.Int("corrected", summary.Corrected),
		slog.Int("rejected", summary.Rejected),
		slog.Int("duplicates", summary.Duplicates),
		slog.Int("total", summary.TotalProcessed),
		slog.Duration("duration", summary.Duration))

	return summary, nil
}

// loadRun holds the state of one load: its id and identity memo.
type loadRun struct {
	*Loader
	src      Source
	runID    string
	resolver *identity.Resolver
}

func (r *loadRun) event(i int, name string, outcome Outcome, msg string) Event {
	return Event{
		RunID:   r.runID,
		Source:  r.src.Region(),
		Index:   i,
		Name:    name,
		Outcome: outcome,
		Message: msg,
	}
}

// process takes one record through validate, geocode, resolve, check and insert.
func (r *loadRun) process(ctx context.Context, i int, rec parsers.Record) Event {
	raw, err := r.src.Adapt(rec)
	if err != nil {
		return r.event(i, "", OutcomeRejectedInvalid, err.Error())
	}
	if raw.Name == "" {
		return r.event(i, "", OutcomeRejectedInvalid, "station has no name")
	}

	res, raw := r.validate(ctx, raw)
	if !res.IsValid {
		e := r.event(i, raw.Name, OutcomeRejectedInvalid, apperrors.ValidationFailed(res.ErrorMessages()).Error())
		e.Errors = res.Errors
		e.Warnings = res.Warnings
		return e
	}

	provinceID, err := r.resolver.GetOrCreateProvince(ctx, res.Corrected.Province)
	if err != nil {
		return r.event(i, raw.Name, OutcomeRejectedIdentity,
			apperrors.IdentityResolutionFailed(err, "province").Error())
	}

	// Exempt stations without a municipality hang from a locality named after their province.
	localityName := res.Corrected.Municipality
	if localityName == "" {
		localityName = res.Corrected.Province
	}
	localityID, err := r.resolver.GetOrCreateLocality(ctx, localityName, provinceID)
	if err != nil {
		return r.event(i, raw.Name, OutcomeRejectedIdentity,
			apperrors.IdentityResolutionFailed(err, "locality").Error())
	}

	exists, err := r.store.StationExists(ctx, raw.Name, localityID)
	if err != nil {
		return r.event(i, raw.Name, OutcomeRejectedPersistence, apperrors.PersistenceFailed(err).Error())
	}
	if exists {
		return r.event(i, raw.Name, OutcomeDuplicate, apperrors.DuplicateRecord("station "+raw.Name).Error())
	}

	station := &domain.Station{
		Name:        raw.Name,
		Type:        raw.Type(),
		Address:     raw.Address,
		PostalCode:  res.Corrected.PostalCode,
		Latitude:    res.Corrected.Latitude,
		Longitude:   res.Corrected.Longitude,
		Description: raw.Description,
		Schedule:    raw.Schedule,
		Contact:     raw.Contact,
		URL:         raw.URL,
		LocalityID:  localityID,
	}
	if err := r.store.InsertStation(ctx, station); err != nil {
		return r.event(i, raw.Name, OutcomeRejectedPersistence, apperrors.PersistenceFailed(err).Error())
	}

	outcome := OutcomeAccepted
	if len(res.Warnings) > 0 {
		outcome = OutcomeCorrected
	}
	e := r.event(i, raw.Name, outcome, "")
	e.Warnings = res.Warnings
	return e
}

// validate picks the validation path for the record. Feeds without
// coordinates are validated first and geocoded only if they pass, so
// rejected records never cost a lookup. Exempt stations are not geocoded.
func (r *loadRun) validate(ctx context.Context, raw domain.RawStation) (validation.Result, domain.RawStation) {
	if !r.src.NeedsGeocoding() {
		if raw.Type() == domain.StationFixed || raw.HasCoordinates() {
			return r.validator.ValidateFull(raw, r.src.Region()), raw
		}
		return r.validator.ValidateWithoutCoordinates(raw, r.src.Region()), raw
	}

	res := r.validator.ValidateWithoutCoordinates(raw, r.src.Region())
	if !res.IsValid || res.Exempt {
		return res, raw
	}
	if r.geocoder == nil {
		r.logger.Warn("no geocoder configured, station stored without coordinates",
			slog.String("source", r.src.Region()),
			slog.String("name", raw.Name))
		return res, raw
	}

	coords, found, err := r.geocoder.Geocode(ctx, geocoding.Query{
		Address:    raw.Address,
		Locality:   res.Corrected.Municipality,
		Province:   res.Corrected.Province,
		PostalCode: res.Corrected.PostalCode,
	})
	switch {
	case err != nil:
		r.logger.Warn("geocoding failed",
			slog.String("source", r.src.Region()),
			slog.String("name", raw.Name),
			slog.Any("error", err))
	case !found:
		r.logger.Warn("address not found by geocoder",
			slog.String("source", r.src.Region()),
			slog.String("name", raw.Name))
	default:
		raw.Latitude, raw.Longitude = coords.Lat, coords.Lon
	}

	return r.validator.ValidateFull(raw, r.src.Region()), raw
}
