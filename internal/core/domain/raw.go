package domain

// RawStation is a source record after its regional adapter has mapped the
// source-specific columns onto catalog fields, but before any validation.
type RawStation struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id,omitempty"`

	Name         string `json:"name"`
	RawType      string `json:"raw_type"`
	Province     string `json:"province"`
	Municipality string `json:"municipality"`
	PostalCode   string `json:"postal_code"`
	Address      string `json:"address"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Description string `json:"description,omitempty"`
	Schedule    string `json:"schedule,omitempty"`
	Contact     string `json:"contact,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Type maps the raw label onto the stored station type.
func (r RawStation) Type() StationType {
	return ParseStationType(r.RawType)
}

// HasCoordinates reports whether the source supplied a non-zero position.
func (r RawStation) HasCoordinates() bool {
	return r.Latitude != 0 || r.Longitude != 0
}

// StationQuery filters catalog listings. Empty fields match everything.
type StationQuery struct {
	Province string
	Locality string
	Type     StationType
}
