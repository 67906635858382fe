package domain

import (
	"strings"
	"time"

	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/normalizer"
)

// StationType is the closed set of station kinds stored in the catalog.
type StationType string

const (
	StationFixed  StationType = "Estación_fija"
	StationMobile StationType = "Estación_móvil"
	StationOther  StationType = "Otros"
)

// ValidStationTypes returns all station types in display order
func ValidStationTypes() []StationType {
	return []StationType{StationFixed, StationMobile, StationOther}
}

// IsValid reports whether t is one of the stored station types.
func (t StationType) IsValid() bool {
	for _, v := range ValidStationTypes() {
		if t == v {
			return true
		}
	}
	return false
}

// ParseStationType maps a free-text source label ("Estación Fija",
// "ESTACIÓN MÓVIL", "Estación_fija") onto a StationType. Agricultural and
// unrecognised labels become StationOther.
func ParseStationType(raw string) StationType {
	key := strings.ReplaceAll(normalizer.Key(raw), "_", " ")
	switch {
	case strings.Contains(key, "movil"), strings.Contains(key, "mobil"):
		return StationMobile
	case strings.Contains(key, "agricola"):
		return StationOther
	case strings.Contains(key, "fija"), strings.Contains(key, "fixa"), strings.Contains(key, "fixed"):
		return StationFixed
	default:
		return StationOther
	}
}

// Station is an inspection station attached to a locality.
type Station struct {
	ID          int64       `gorm:"column:cod_estacion;primaryKey;autoIncrement" json:"id"`
	Name        string      `gorm:"column:nombre;type:varchar(255);not null;index:idx_estacion_nombre_localidad" json:"name"`
	Type        StationType `gorm:"column:tipo;type:varchar(20);not null" json:"type"`
	Address     string      `gorm:"column:direccion;type:varchar(255)" json:"address"`
	PostalCode  string      `gorm:"column:codigo_postal;type:varchar(5)" json:"postal_code"`
	Latitude    float64     `gorm:"column:latitud" json:"latitude"`
	Longitude   float64     `gorm:"column:longitud" json:"longitude"`
	Description string      `gorm:"column:descripcion;type:text" json:"description"`
	Schedule    string      `gorm:"column:horario;type:text" json:"schedule"`
	Contact     string      `gorm:"column:contacto;type:varchar(255)" json:"contact"`
	URL         string      `gorm:"column:url;type:varchar(255)" json:"url"`
	LocalityID  int64       `gorm:"column:en_localidad;not null;index:idx_estacion_nombre_localidad" json:"locality_id"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`

	// Relations
	Locality *Locality `gorm:"foreignKey:LocalityID;references:ID" json:"locality,omitempty"`
}

// TableName specifies the table name for GORM
func (Station) TableName() string {
	return "estacion"
}

// HasCoordinates reports whether the station carries a non-zero position.
func (s *Station) HasCoordinates() bool {
	return s.Latitude != 0 || s.Longitude != 0
}

// Models returns every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{&Province{}, &Locality{}, &Station{}, &LoadRun{}}
}
