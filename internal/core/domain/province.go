package domain

// Province is a Spanish province. Names are unique across the catalog.
type Province struct {
	ID   int64  `gorm:"column:codigo;primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"column:nombre;type:varchar(100);not null;uniqueIndex:idx_provincia_nombre" json:"name"`
}

// TableName specifies the table name for GORM
func (Province) TableName() string {
	return "provincia"
}
