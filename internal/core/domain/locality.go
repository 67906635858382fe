package domain

// Locality is a municipality. The same name may exist in different provinces,
// so uniqueness is on (name, province).
type Locality struct {
	ID         int64  `gorm:"column:codigo;primaryKey;autoIncrement" json:"id"`
	Name       string `gorm:"column:nombre;type:varchar(150);not null;uniqueIndex:idx_localidad_nombre_provincia" json:"name"`
	ProvinceID int64  `gorm:"column:en_provincia;not null;uniqueIndex:idx_localidad_nombre_provincia" json:"province_id"`

	// Relations
	Province *Province `gorm:"foreignKey:ProvinceID;references:ID" json:"province,omitempty"`
}

// TableName specifies the table name for GORM
func (Locality) TableName() string {
	return "localidad"
}
