package validation

import (
	"fmt"
	"strings"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/reference"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/normalizer"
)

// MaxProvinceDistance is the largest edit distance a misspelt province may
// be from a canonical one and still be corrected to it.
const MaxProvinceDistance = 2

// EmptyPostalCode is stored for exempt stations that carry no postal code.
const EmptyPostalCode = "00000"

// Corrector validates and repairs individual fields against reference data.
type Corrector struct {
	ref *reference.Data
}

// NewCorrector creates a corrector over the given reference data.
func NewCorrector(ref *reference.Data) *Corrector {
	if ref == nil {
		ref = reference.Default()
	}
	return &Corrector{ref: ref}
}

// Reference exposes the reference data the corrector checks against.
func (c *Corrector) Reference() *reference.Data {
	return c.ref
}

// Province resolves raw to a canonical province name.
//
// Order: exact name, official alias, accent and case insensitive match,
// nearest name within MaxProvinceDistance. A value that resolves to nothing
// is kept as-is and flagged, but stays valid. Only an empty value is fatal.
func (c *Corrector) Province(raw string) FieldResult {
	value := strings.TrimSpace(raw)
	if value == "" {
		return invalid(FieldProvince, raw, "province is required")
	}

	if c.ref.IsProvince(value) {
		return accept(value)
	}

	if canonical, ok := c.ref.Alias(value); ok {
		return corrected(FieldProvince, raw, canonical,
			fmt.Sprintf("province %q is an official alias of %q", value, canonical))
	}

	if canonical, ok := c.ref.ProvinceByKey(value); ok {
		return corrected(FieldProvince, raw, canonical,
			fmt.Sprintf("province %q normalized to %q", value, canonical))
	}

	if canonical, distance, ok := c.nearestProvince(value); ok {
		return corrected(FieldProvince, raw, canonical,
			fmt.Sprintf("province %q corrected to %q (edit distance %d)", value, canonical, distance))
	}

	return flagged(FieldProvince, value, fmt.Sprintf("province %q not recognised", value))
}

// nearestProvince returns the first canonical province with the smallest
// edit distance to value, if that distance is within MaxProvinceDistance.
func (c *Corrector) nearestProvince(value string) (string, int, bool) {
	key := normalizer.Key(value)
	best, bestDistance := "", MaxProvinceDistance+1

	for _, province := range c.ref.Provinces() {
		d := normalizer.EditDistance(key, normalizer.Key(province))
		if d < bestDistance {
			best, bestDistance = province, d
		}
	}

	if best == "" {
		return "", 0, false
	}
	return best, bestDistance, true
}

// Municipality title-cases raw. An empty value is fatal unless exempt.
func (c *Corrector) Municipality(raw string, exempt bool) FieldResult {
	value := strings.TrimSpace(raw)
	if value == "" {
		if exempt {
			return accept("")
		}
		return invalid(FieldMunicipality, raw, "municipality is required")
	}

	titled := normalizer.TitleCase(value)
	if titled != value {
		return corrected(FieldMunicipality, raw, titled,
			fmt.Sprintf("municipality %q recased to %q", value, titled))
	}
	return accept(value)
}

// PostalCode checks raw is five digits whose prefix belongs to province.
//
// Empty-like values ("", "0", "00000", "undefined") are fatal unless exempt,
// in which case they become EmptyPostalCode. The prefix is only checked when
// province is a known canonical province.
func (c *Corrector) PostalCode(raw, province string, exempt bool) FieldResult {
	value := strings.TrimSpace(raw)

	if isEmptyPostalCode(value) {
		if exempt {
			if value == EmptyPostalCode {
				return accept(EmptyPostalCode)
			}
			return corrected(FieldPostalCode, raw, EmptyPostalCode, "missing postal code set to 00000 for exempt station")
		}
		return invalid(FieldPostalCode, raw, "postal code is required")
	}

	if !isFiveDigits(value) {
		return invalid(FieldPostalCode, raw, fmt.Sprintf("postal code %q must be exactly five digits", value))
	}

	if prefix, ok := c.ref.PostalPrefix(province); ok && value[:2] != prefix {
		return invalid(FieldPostalCode, raw,
			fmt.Sprintf("postal code %q does not belong to %s (expected prefix %s)", value, province, prefix))
	}

	return accept(value)
}

func isEmptyPostalCode(v string) bool {
	switch strings.ToLower(v) {
	case "", "0", EmptyPostalCode, "undefined":
		return true
	}
	return false
}

func isFiveDigits(v string) bool {
	if len(v) != 5 {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}
