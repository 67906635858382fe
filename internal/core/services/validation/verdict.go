package validation

// Field names used in verdicts.
const (
	FieldProvince     = "province"
	FieldMunicipality = "municipality"
	FieldPostalCode   = "postal_code"
	FieldLatitude     = "latitude"
	FieldLongitude    = "longitude"
)

// Verdict describes what happened to one field of one record. Verdicts are
// reported and logged, never persisted.
type Verdict struct {
	Field          string `json:"field"`
	OriginalValue  string `json:"original_value"`
	CorrectedValue string `json:"corrected_value,omitempty"`
	Message        string `json:"message"`
	WasCorrected   bool   `json:"was_corrected"`
}

// FieldResult is the outcome of correcting a single field.
//
// Valid is false only for fatal problems. A non-fatal issue keeps Valid true
// and carries a Verdict so the caller can report it.
type FieldResult struct {
	Valid   bool
	Value   string
	Verdict *Verdict
}

// Corrected reports whether the field value was changed.
func (r FieldResult) Corrected() bool {
	return r.Verdict != nil && r.Verdict.WasCorrected
}

func accept(value string) FieldResult {
	return FieldResult{Valid: true, Value: value}
}

func corrected(field, original, value, message string) FieldResult {
	return FieldResult{
		Valid: true,
		Value: value,
		Verdict: &Verdict{
			Field:          field,
			OriginalValue:  original,
			CorrectedValue: value,
			Message:        message,
			WasCorrected:   true,
		},
	}
}

func flagged(field, original, message string) FieldResult {
	return FieldResult{
		Valid: true,
		Value: original,
		Verdict: &Verdict{
			Field:         field,
			OriginalValue: original,
			Message:       message,
		},
	}
}

func invalid(field, original, message string) FieldResult {
	return FieldResult{
		Valid: false,
		Value: original,
		Verdict: &Verdict{
			Field:         field,
			OriginalValue: original,
			Message:       message,
		},
	}
}
