package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
)

// CatalogRepository implements the catalog storage contract using GORM
type CatalogRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewCatalogRepository creates a new repository instance
func NewCatalogRepository(db *gorm.DB, logger *slog.Logger) *CatalogRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &CatalogRepository{
		db:     db,
		logger: logger,
	}
}

// FindProvinceByName returns the province with exactly this name, or nil.
func (r *CatalogRepository) FindProvinceByName(ctx context.Context, name string) (*domain.Province, error) {
	var province domain.Province
	err := r.db.WithContext(ctx).
		Where("nombre = ?", name).
		Take(&province).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find province %q: %w", name, err)
	}
	return &province, nil
}

// InsertProvince creates a province row.
func (r *CatalogRepository) InsertProvince(ctx context.Context, name string) (*domain.Province, error) {
	province := &domain.Province{Name: name}
	if err := r.db.WithContext(ctx).Create(province).Error; err != nil {
		return nil, fmt.Errorf("failed to insert province %q: %w", name, err)
	}
	return province, nil
}

// FindLocality returns the locality called name in provinceID, or nil.
func (r *CatalogRepository) FindLocality(ctx context.Context, name string, provinceID int64) (*domain.Locality, error) {
	var locality domain.Locality
	err := r.db.WithContext(ctx).
		Where("nombre = ? AND en_provincia = ?", name, provinceID).
		Take(&locality).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find locality %q: %w", name, err)
	}
	return &locality, nil
}

// InsertLocality creates a locality row.
func (r *CatalogRepository) InsertLocality(ctx context.Context, name string, provinceID int64) (*domain.Locality, error) {
	locality := &domain.Locality{Name: name, ProvinceID: provinceID}
	if err := r.db.WithContext(ctx).Create(locality).Error; err != nil {
		return nil, fmt.Errorf("failed to insert locality %q: %w", name, err)
	}
	return locality, nil
}

// StationExists reports whether a station with this name is already
// attached to the locality.
func (r *CatalogRepository) StationExists(ctx context.Context, name string, localityID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Station{}).
		Where("nombre = ? AND en_localidad = ?", name, localityID).
		Count(&count).
		Error
	if err != nil {
		return false, fmt.Errorf("failed to check station existence: %w", err)
	}
	return count > 0, nil
}

// InsertStation persists a new station and fills in its id.
func (r *CatalogRepository) InsertStation(ctx context.Context, station *domain.Station) error {
	err := r.db.WithContext(ctx).
		Omit("Locality").
		Create(station).
		Error
	if err != nil {
		r.logger.Error("failed to insert station",
			slog.String("name", station.Name),
			slog.Int64("locality_id", station.LocalityID),
			slog.Any("error", err))
		return fmt.Errorf("failed to insert station: %w", err)
	}
	return nil
}

// ListStations returns the columns the duplicate detector groups on.
func (r *CatalogRepository) ListStations(ctx context.Context) ([]domain.Station, error) {
	var stations []domain.Station
	err := r.db.WithContext(ctx).
		Select("cod_estacion", "nombre", "en_localidad", "direccion", "created_at").
		Order("cod_estacion").
		Find(&stations).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	return stations, nil
}

// DeleteStationsByIDs removes the given stations in a single statement.
func (r *CatalogRepository) DeleteStationsByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Where("cod_estacion IN ?", ids).
		Delete(&domain.Station{})
	if result.Error != nil {
		r.logger.Error("failed to delete stations",
			slog.Int("count", len(ids)),
			slog.Any("error", result.Error))
		return fmt.Errorf("failed to delete stations: %w", result.Error)
	}

	r.logger.Info("stations deleted",
		slog.Int64("rows_affected", result.RowsAffected))
	return nil
}

// DeleteAllStations wipes the station table. Provinces and localities stay.
func (r *CatalogRepository) DeleteAllStations(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.Station{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete all stations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountStations counts stations matching the query.
func (r *CatalogRepository) CountStations(ctx context.Context, q domain.StationQuery) (int64, error) {
	var count int64
	err := r.filtered(ctx, q).
		Model(&domain.Station{}).
		Count(&count).
		Error
	if err != nil {
		return 0, fmt.Errorf("failed to count stations: %w", err)
	}
	return count, nil
}

// SearchStations returns stations joined with their locality and province,
// filtered by case-insensitive province and locality substrings and by type.
func (r *CatalogRepository) SearchStations(ctx context.Context, q domain.StationQuery) ([]domain.Station, error) {
	var stations []domain.Station
	err := r.filtered(ctx, q).
		Preload("Locality.Province").
		Order("estacion.nombre").
		Order("estacion.cod_estacion").
		Find(&stations).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to search stations: %w", err)
	}
	return stations, nil
}

// ProvinceCount is the number of stations in one province.
type ProvinceCount struct {
	Province string `json:"province"`
	Stations int64  `json:"stations"`
}

// CountByProvince returns station counts per province, including provinces
// with no stations.
func (r *CatalogRepository) CountByProvince(ctx context.Context) ([]ProvinceCount, error) {
	var counts []ProvinceCount
	err := r.db.WithContext(ctx).
		Table("provincia AS p").
		Select("p.nombre AS province, COUNT(e.cod_estacion) AS stations").
		Joins("LEFT JOIN localidad AS l ON l.en_provincia = p.codigo").
		Joins("LEFT JOIN estacion AS e ON e.en_localidad = l.codigo").
		Group("p.nombre").
		Order("p.nombre").
		Scan(&counts).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to count stations by province: %w", err)
	}
	return counts, nil
}

// CountProvinces returns the number of province rows.
func (r *CatalogRepository) CountProvinces(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Province{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count provinces: %w", err)
	}
	return count, nil
}

// CountLocalities returns the number of locality rows.
func (r *CatalogRepository) CountLocalities(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Locality{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count localities: %w", err)
	}
	return count, nil
}

func (r *CatalogRepository) filtered(ctx context.Context, q domain.StationQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&domain.Station{})

	province := strings.TrimSpace(q.Province)
	locality := strings.TrimSpace(q.Locality)
	if province != "" || locality != "" {
		tx = tx.Joins("JOIN localidad ON localidad.codigo = estacion.en_localidad")
	}
	if province != "" {
		tx = tx.Joins("JOIN provincia ON provincia.codigo = localidad.en_provincia").
			Where("LOWER(provincia.nombre) LIKE ? ESCAPE '\\'", likePattern(province))
	}
	if locality != "" {
		tx = tx.Where("LOWER(localidad.nombre) LIKE ? ESCAPE '\\'", likePattern(locality))
	}
	if q.Type != "" {
		tx = tx.Where("estacion.tipo = ?", q.Type)
	}
	return tx
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring pattern; wildcards in s match literally.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// SaveLoadRun records the outcome of a regional load.
func (r *CatalogRepository) SaveLoadRun(ctx context.Context, run *domain.LoadRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		r.logger.Error("failed to save load run",
			slog.String("source", run.Source),
			slog.Any("error", err))
		return fmt.Errorf("failed to save load run: %w", err)
	}
	return nil
}

// ListLoadRuns returns the most recent loads first, optionally for one source.
func (r *CatalogRepository) ListLoadRuns(ctx context.Context, source string, limit int) ([]domain.LoadRun, error) {
	var runs []domain.LoadRun
	tx := r.db.WithContext(ctx).Order("iniciada DESC")
	if source != "" {
		tx = tx.Where("fuente = ?", source)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list load runs: %w", err)
	}
	return runs, nil
}
