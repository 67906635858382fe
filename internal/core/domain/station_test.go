package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	assert.Equal(t, "provincia", Province{}.TableName())
	assert.Equal(t, "localidad", Locality{}.TableName())
	assert.Equal(t, "estacion", Station{}.TableName())
}

func TestParseStationType(t *testing.T) {
	tests := []struct {
		raw      string
		expected StationType
	}{
		{"Estación Fija", StationFixed},
		{"ESTACION FIJA", StationFixed},
		{"Estación_fija", StationFixed},
		{"Estació fixa", StationFixed},
		{"Estación Móvil", StationMobile},
		{"Estación_móvil", StationMobile},
		{"Estació mòbil", StationMobile},
		{"Estación Agrícola", StationOther},
		{"", StationOther},
		{"Otros", StationOther},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseStationType(tt.raw))
		})
	}
}

func TestStationType_IsValid(t *testing.T) {
	for _, st := range ValidStationTypes() {
		assert.True(t, st.IsValid(), st)
	}
	assert.False(t, StationType("Estación Fija").IsValid())
}

func TestHasCoordinates(t *testing.T) {
	assert.False(t, (&Station{}).HasCoordinates())
	assert.True(t, (&Station{Latitude: 41.9}).HasCoordinates())
	assert.True(t, RawStation{Longitude: -8.1}.HasCoordinates())
	assert.False(t, RawStation{}.HasCoordinates())
}
