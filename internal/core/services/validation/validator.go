package validation

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/reference"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/normalizer"
)

// CorrectedData carries the best-known field values for a record, filled in
// even when the record is rejected.
type CorrectedData struct {
	Province     string  `json:"province"`
	Municipality string  `json:"municipality"`
	PostalCode   string  `json:"postal_code"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
}

// Result is the validation outcome of one record.
//
// Errors are fatal. Warnings are corrections or overrides worth auditing.
// Adjustments are cosmetic changes (recasing) that need no audit.
type Result struct {
	IsValid     bool          `json:"is_valid"`
	Errors      []Verdict     `json:"errors"`
	Warnings    []Verdict     `json:"warnings"`
	Adjustments []Verdict     `json:"adjustments,omitempty"`
	Corrected   CorrectedData `json:"corrected"`
	Exempt      bool          `json:"exempt"`
}

// ErrorMessages joins the fatal error messages for logging.
func (r *Result) ErrorMessages() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Option configures a Validator.
type Option func(*Validator)

// WithStrictProvinces makes an unrecognised province fatal instead of a warning.
func WithStrictProvinces(strict bool) Option {
	return func(v *Validator) {
		v.strictProvinces = strict
	}
}

// WithLogger sets the logger used for debug traces.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Validator runs the field corrector over a whole record and applies the
// cross-field checks.
type Validator struct {
	corrector       *Corrector
	strictProvinces bool
	logger          *slog.Logger
}

// NewValidator creates a validator over the given reference data.
func NewValidator(ref *reference.Data, opts ...Option) *Validator {
	v := &Validator{
		corrector: NewCorrector(ref),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Corrector returns the field corrector the validator uses.
func (v *Validator) Corrector() *Corrector {
	return v.corrector
}

// Exemptions derives the mobile and agricultural flags from a raw type label.
// Exempt stations have no fixed locality, so municipality and postal code are optional.
func Exemptions(rawType string) (isMobile, isAgricultural bool) {
	key := normalizer.Key(rawType)
	isMobile = strings.Contains(key, "movil") || strings.Contains(key, "mobil")
	isAgricultural = strings.Contains(key, "agricola")
	return isMobile, isAgricultural
}

// ValidateWithoutCoordinates checks province, municipality and postal code.
// A fatal province or municipality error skips the postal code check.
func (v *Validator) ValidateWithoutCoordinates(rec domain.RawStation, source string) Result {
	isMobile, isAgricultural := Exemptions(rec.RawType)
	exempt := isMobile || isAgricultural

	res := Result{Exempt: exempt}
	res.Corrected.Latitude = rec.Latitude
	res.Corrected.Longitude = rec.Longitude
	ref := v.corrector.Reference()

	province := v.corrector.Province(rec.Province)
	res.Corrected.Province = province.Value
	switch {
	case !province.Valid:
		res.Errors = append(res.Errors, *province.Verdict)
	case province.Verdict != nil && !province.Verdict.WasCorrected && v.strictProvinces:
		res.Errors = append(res.Errors, *province.Verdict)
	case province.Verdict != nil:
		res.Warnings = append(res.Warnings, *province.Verdict)
	}

	if !exempt {
		municipality := v.corrector.Municipality(rec.Municipality, false)
		res.Corrected.Municipality = municipality.Value
		if !municipality.Valid {
			res.Errors = append(res.Errors, *municipality.Verdict)
		} else {
			if municipality.Corrected() {
				res.Adjustments = append(res.Adjustments, *municipality.Verdict)
			}
			v.crossCheckProvince(&res, ref)
		}
	} else if m := strings.TrimSpace(rec.Municipality); m != "" {
		res.Corrected.Municipality = normalizer.TitleCase(m)
	}

	if len(res.Errors) > 0 {
		res.Corrected.PostalCode = strings.TrimSpace(rec.PostalCode)
		v.logger.Debug("record rejected before postal code check",
			slog.String("source", source),
			slog.String("name", rec.Name),
			slog.Int("errors", len(res.Errors)))
		return res
	}

	postal := v.corrector.PostalCode(rec.PostalCode, res.Corrected.Province, exempt)
	res.Corrected.PostalCode = postal.Value
	switch {
	case !postal.Valid:
		res.Errors = append(res.Errors, *postal.Verdict)
	case postal.Corrected():
		res.Adjustments = append(res.Adjustments, *postal.Verdict)
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// crossCheckProvince overrides the province with the one the municipality
// belongs to when they disagree. The override is a warning, never fatal.
func (v *Validator) crossCheckProvince(res *Result, ref *reference.Data) {
	owner, ok := ref.ProvinceOfMunicipality(res.Corrected.Municipality)
	if !ok || owner == res.Corrected.Province {
		return
	}

	res.Warnings = append(res.Warnings, Verdict{
		Field:          FieldProvince,
		OriginalValue:  res.Corrected.Province,
		CorrectedValue: owner,
		Message: fmt.Sprintf("municipality %q belongs to %s, not %q",
			res.Corrected.Municipality, owner, res.Corrected.Province),
		WasCorrected: true,
	})
	res.Corrected.Province = owner
}

// ValidateFull runs ValidateWithoutCoordinates and, if the record passed,
// checks its coordinates.
func (v *Validator) ValidateFull(rec domain.RawStation, source string) Result {
	res := v.ValidateWithoutCoordinates(rec, source)
	if !res.IsValid {
		return res
	}

	res.Errors = append(res.Errors, ValidateCoordinates(rec.Latitude, rec.Longitude)...)
	res.IsValid = len(res.Errors) == 0
	return res
}
