package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoadStatus is the final state of a regional load.
type LoadStatus string

const (
	LoadCompleted LoadStatus = "completed"
	LoadFailed    LoadStatus = "failed"
	LoadCancelled LoadStatus = "cancelled"
)

// ValidLoadStatuses returns list of valid load statuses
func ValidLoadStatuses() []LoadStatus {
	return []LoadStatus{LoadCompleted, LoadFailed, LoadCancelled}
}

// IsValid reports whether s is a known load status.
func (s LoadStatus) IsValid() bool {
	for _, v := range ValidLoadStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// LoadRun is the recorded outcome of one regional load.
type LoadRun struct {
	ID             uuid.UUID  `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	Source         string     `gorm:"column:fuente;type:varchar(10);not null;index" json:"source"`
	FileName       string     `gorm:"column:fichero;type:varchar(500)" json:"file_name"`
	Status         LoadStatus `gorm:"column:estado;type:varchar(20);not null" json:"status"`
	TotalProcessed int        `gorm:"column:procesados;default:0" json:"total_processed"`
	Loaded         int        `gorm:"column:cargados;default:0" json:"loaded"`
	Corrected      int        `gorm:"column:corregidos;default:0" json:"corrected"`
	Rejected       int        `gorm:"column:rechazados;default:0" json:"rejected"`
	Duplicates     int        `gorm:"column:duplicados;default:0" json:"duplicates"`
	Error          string     `gorm:"column:error;type:text" json:"error,omitempty"`
	StartedAt      time.Time  `gorm:"column:iniciada;not null;index" json:"started_at"`
	CompletedAt    *time.Time `gorm:"column:finalizada" json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (LoadRun) TableName() string {
	return "carga"
}

// BeforeCreate GORM hook - called before creating a record
func (r *LoadRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
