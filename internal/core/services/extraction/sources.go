package extraction

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/alejandroruanova/itv-catalog-service/internal/core/domain"
	"github.com/alejandroruanova/itv-catalog-service/internal/core/services/validation"
	"github.com/alejandroruanova/itv-catalog-service/internal/infrastructure/parsers"
	apperrors "github.com/alejandroruanova/itv-catalog-service/internal/pkg/errors"
	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/normalizer"
)

// Region codes
const (
	RegionCV  = "cv"
	RegionGAL = "gal"
	RegionCAT = "cat"
)

// Source adapts one regional feed to the catalog's raw record shape.
type Source interface {
	// Region is the short code used in routes and configuration.
	Region() string
	// Label is the human readable name of the publishing authority.
	Label() string
	// NeedsGeocoding is true when the feed publishes no coordinates.
	NeedsGeocoding() bool
	// Adapt decodes one parsed row into the canonical raw record.
	Adapt(rec parsers.Record) (domain.RawStation, error)
}

// Sources returns every supported regional source.
func Sources() []Source {
	return []Source{CVSource{}, GaliciaSource{}, CataloniaSource{}}
}

// SourceFor returns the source registered under region.
func SourceFor(region string) (Source, error) {
	for _, s := range Sources() {
		if s.Region() == strings.ToLower(strings.TrimSpace(region)) {
			return s, nil
		}
	}
	return nil, apperrors.UnknownRegion(region)
}

// decodeRecord fills out from a parsed row. Numbers become strings and
// column names match ignoring case and accents.
func decodeRecord(rec parsers.Record, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		MatchName: func(mapKey, fieldName string) bool {
			return normalizer.Key(mapKey) == normalizer.Key(fieldName)
		},
		DecodeHook: cleanStrings,
	})
	if err != nil {
		return fmt.Errorf("failed to build record decoder: %w", err)
	}
	if err := decoder.Decode(map[string]interface{}(rec)); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

// cleanStrings repairs mojibake and collapses whitespace in every string value.
func cleanStrings(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if s, ok := data.(string); ok && to.Kind() == reflect.String {
		return normalizer.Clean(s), nil
	}
	return data, nil
}

// CVRecord is a row of the Comunitat Valenciana JSON feed. It carries no
// coordinates and serializes postal codes as numbers.
type CVRecord struct {
	Type         string `mapstructure:"TIPO ESTACIÓN"`
	Province     string `mapstructure:"PROVINCIA"`
	Municipality string `mapstructure:"MUNICIPIO"`
	PostalCode   string `mapstructure:"C.POSTAL"`
	Address      string `mapstructure:"DIRECCIÓN"`
	Number       string `mapstructure:"Nº ESTACIÓN"`
	Schedule     string `mapstructure:"HORARIOS"`
	Email        string `mapstructure:"CORREO"`
}

// ToRaw maps the row onto the canonical record.
func (r CVRecord) ToRaw() domain.RawStation {
	// Several fixed stations share a municipality; the station number tells them apart.
	name := strings.Join(strings.Fields("Estación ITV "+r.Municipality+" "+r.Number), " ")
	if domain.ParseStationType(r.Type) == domain.StationMobile {
		name = strings.TrimSpace("Estación ITV Móvil " + r.Number)
	}

	return domain.RawStation{
		Source:       RegionCV,
		SourceID:     r.Number,
		Name:         strings.TrimSpace(name),
		RawType:      r.Type,
		Province:     r.Province,
		Municipality: r.Municipality,
		PostalCode:   padPostalCode(r.PostalCode),
		Address:      r.Address,
		Schedule:     r.Schedule,
		Contact:      r.Email,
		URL:          "https://sitval.com/",
	}
}

// CVSource is the Comunitat Valenciana feed.
type CVSource struct{}

func (CVSource) Region() string { return RegionCV }
func (CVSource) Label() string { return "Comunitat Valenciana" }
func (CVSource) NeedsGeocoding() bool { return true }

func (CVSource) Adapt(rec parsers.Record) (domain.RawStation, error) {
	var r CVRecord
	if err := decodeRecord(rec, &r); err != nil {
		return domain.RawStation{}, err
	}
	return r.ToRaw(), nil
}

// GalicianRecord is a row of the Galicia CSV feed.
type GalicianRecord struct {
	Name         string `mapstructure:"NOME DA ESTACIÓN"`
	Address      string `mapstructure:"ENDEREZO"`
	Municipality string `mapstructure:"CONCELLO"`
	PostalCode   string `mapstructure:"CÓDIGO POSTAL"`
	Province     string `mapstructure:"PROVINCIA"`
	Phone        string `mapstructure:"TELÉFONO"`
	Schedule     string `mapstructure:"HORARIO"`
	Booking      string `mapstructure:"SOLICITUDE DE CITA PREVIA"`
	Email        string `mapstructure:"CORREO ELECTRÓNICO"`
	Coordinates  string `mapstructure:"COORDENADAS GMAPS"`
}

// ToRaw maps the row onto the canonical record. Unparseable coordinates are
// left at zero for coordinate validation to reject.
func (r GalicianRecord) ToRaw() domain.RawStation {
	lat, lon, err := validation.ParseCoordinatePair(r.Coordinates)
	if err != nil {
		lat, lon = 0, 0
	}

	rawType := "Estación Fija"
	if key := normalizer.Key(r.Name); strings.Contains(key, "mobil") || strings.Contains(key, "movil") {
		rawType = "Estación Móvil"
	}

	return domain.RawStation{
		Source:       RegionGAL,
		Name:         r.Name,
		RawType:      rawType,
		Province:     r.Province,
		Municipality: r.Municipality,
		PostalCode:   r.PostalCode,
		Address:      r.Address,
		Latitude:     lat,
		Longitude:    lon,
		Schedule:     r.Schedule,
		Contact:      joinNonEmpty(" / ", r.Phone, r.Email),
		URL:          r.Booking,
	}
}

// GaliciaSource is the Galicia feed.
type GaliciaSource struct{}

func (GaliciaSource) Region() string { return RegionGAL }
func (GaliciaSource) Label() string { return "Galicia" }
func (GaliciaSource) NeedsGeocoding() bool { return false }

func (GaliciaSource) Adapt(rec parsers.Record) (domain.RawStation, error) {
	var r GalicianRecord
	if err := decodeRecord(rec, &r); err != nil {
		return domain.RawStation{}, err
	}
	return r.ToRaw(), nil
}

// CatalanRecord is a row of the Catalonia XML feed. Coordinates may be
// published scaled by a power of ten and the province comes from the
// territorial service that manages the station.
type CatalanRecord struct {
	Code         string `mapstructure:"estaci"`
	Name         string `mapstructure:"denominaci"`
	Operator     string `mapstructure:"operador"`
	Address      string `mapstructure:"adre_a"`
	PostalCode   string `mapstructure:"cp"`
	Municipality string `mapstructure:"municipi"`
	Territory    string `mapstructure:"serveis_territorials"`
	Latitude     string `mapstructure:"lat"`
	Longitude    string `mapstructure:"long"`
	Schedule     string `mapstructure:"horari_de_servei"`
	Email        string `mapstructure:"correu_electr_nic"`
	Web          string `mapstructure:"web"`
}

// ToRaw maps the row onto the canonical record.
func (r CatalanRecord) ToRaw() domain.RawStation {
	name := firstNonEmpty(r.Name, r.Code)
	if !strings.Contains(normalizer.Key(name), "itv") {
		name = "Estació ITV " + name
	}

	rawType := "Estació Fixa"
	switch key := normalizer.Key(name); {
	case strings.Contains(key, "agricola"):
		rawType = "Agrícola"
	case strings.Contains(key, "mobil"):
		rawType = "Estació Mòbil"
	}

	return domain.RawStation{
		Source:       RegionCAT,
		SourceID:     r.Code,
		Name:         name,
		RawType:      rawType,
		Province:     r.Territory,
		Municipality: r.Municipality,
		PostalCode:   r.PostalCode,
		Address:      r.Address,
		Latitude:     descaled(r.Latitude, validation.Latitude),
		Longitude:    descaled(r.Longitude, validation.Longitude),
		Description:  r.Operator,
		Schedule:     r.Schedule,
		Contact:      r.Email,
		URL:          r.Web,
	}
}

// CataloniaSource is the Catalonia feed.
type CataloniaSource struct{}

func (CataloniaSource) Region() string { return RegionCAT }
func (CataloniaSource) Label() string { return "Catalunya" }
func (CataloniaSource) NeedsGeocoding() bool { return false }

func (CataloniaSource) Adapt(rec parsers.Record) (domain.RawStation, error) {
	var r CatalanRecord
	if err := decodeRecord(rec, &r); err != nil {
		return domain.RawStation{}, err
	}
	return r.ToRaw(), nil
}

func descaled(raw string, axis validation.Axis) float64 {
	v, err := validation.ParseCoordinate(raw)
	if err != nil || v == 0 {
		return 0
	}
	return validation.DescaleCoordinate(v, axis)
}

// padPostalCode restores the leading zero that numeric serialization drops
// from postal codes such as 03001.
func padPostalCode(v string) string {
	if len(v) == 4 && strings.Trim(v, "0123456789") == "" {
		return "0" + v
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}
