package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Bounding box covering mainland Spain, the Balearic and the Canary Islands.
const (
	MinLatitude  = 27.0
	MaxLatitude  = 44.0
	MinLongitude = -19.0
	MaxLongitude = 5.0
)

// maxDescaleExponent is the largest power of ten a scaled coordinate is divided by.
const maxDescaleExponent = 7

// Axis selects which bounding range applies to a coordinate.
type Axis int

const (
	Latitude Axis = iota
	Longitude
)

func (a Axis) String() string {
	if a == Latitude {
		return FieldLatitude
	}
	return FieldLongitude
}

func (a Axis) bounds() (float64, float64) {
	if a == Latitude {
		return MinLatitude, MaxLatitude
	}
	return MinLongitude, MaxLongitude
}

// InRange reports whether v falls inside the bounding range for the axis.
func (a Axis) InRange(v float64) bool {
	lo, hi := a.bounds()
	return v >= lo && v <= hi
}

// ValidateCoordinates checks a position without correcting it. Zero on
// either axis counts as missing.
func ValidateCoordinates(lat, lon float64) []Verdict {
	var errs []Verdict
	if v := checkAxis(Latitude, lat); v != nil {
		errs = append(errs, *v)
	}
	if v := checkAxis(Longitude, lon); v != nil {
		errs = append(errs, *v)
	}
	return errs
}

func checkAxis(axis Axis, v float64) *Verdict {
	original := strconv.FormatFloat(v, 'f', -1, 64)
	lo, hi := axis.bounds()

	switch {
	case math.IsNaN(v) || math.IsInf(v, 0) || v == 0:
		return &Verdict{Field: axis.String(), OriginalValue: original,
			Message: fmt.Sprintf("%s is missing or invalid", axis)}
	case !axis.InRange(v):
		return &Verdict{Field: axis.String(), OriginalValue: original,
			Message: fmt.Sprintf("%s %s outside Spain [%g, %g]", axis, original, lo, hi)}
	}
	return nil
}

// DescaleCoordinate undoes a power-of-ten scaling. It divides v by 1, 10,
// ... 10^7 and returns the first result inside the axis range, keeping the
// sign. It returns 0 when no divisor fits.
func DescaleCoordinate(v float64, axis Axis) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	for exp := 0; exp <= maxDescaleExponent; exp++ {
		candidate := v / math.Pow10(exp)
		if axis.InRange(candidate) {
			return candidate
		}
	}
	return 0
}

var sexagesimal = regexp.MustCompile(`^([-+]?\d+(?:[.,]\d+)?)\s*°\s*(?:(\d+(?:[.,]\d+)?)\s*['′])?\s*(?:(\d+(?:[.,]\d+)?)\s*(?:"|″|''))?\s*([NSEWO])?$`)

// ParseCoordinate reads a single coordinate written as a decimal ("43.37",
// "43,37") or in degrees and minutes ("43° 18.856'", "8° 17' 10\" W").
// An empty string parses as 0.
func ParseCoordinate(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}

	if v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
		return v, nil
	}

	m := sexagesimal.FindStringSubmatch(strings.ToUpper(s))
	if m == nil {
		return 0, fmt.Errorf("unrecognised coordinate %q", raw)
	}

	degrees, _ := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	var minutes, seconds float64
	if m[2] != "" {
		minutes, _ = strconv.ParseFloat(strings.Replace(m[2], ",", ".", 1), 64)
	}
	if m[3] != "" {
		seconds, _ = strconv.ParseFloat(strings.Replace(m[3], ",", ".", 1), 64)
	}
	if minutes >= 60 || seconds >= 60 {
		return 0, fmt.Errorf("coordinate %q has minutes or seconds out of range", raw)
	}

	negative := strings.HasPrefix(m[1], "-")
	value := math.Abs(degrees) + minutes/60 + seconds/3600
	switch m[4] {
	case "S", "W", "O":
		negative = true
	}
	if negative {
		value = -value
	}
	return value, nil
}

// ParseCoordinatePair splits "lat, lon" and parses both halves.
func ParseCoordinatePair(raw string) (float64, float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, 0, nil
	}

	parts := strings.Split(s, ", ")
	if len(parts) != 2 {
		parts = strings.Split(s, ",")
	}
	if len(parts) != 2 {
		parts = strings.Fields(s)
	}
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("coordinate pair %q must have two parts", raw)
	}

	lat, err := ParseCoordinate(parts[0])
	if err != nil {
		return 0, 0, err
	}
	lon, err := ParseCoordinate(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}
