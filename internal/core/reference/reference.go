// Package reference holds the static geography the validator checks records
// against: canonical provinces, their postal prefixes, province aliases and
// the municipality to province map.
package reference

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/alejandroruanova/itv-catalog-service/internal/pkg/normalizer"
)

//go:embed reference.yaml
var embedded []byte

// File is the YAML layout of a reference data document.
type File struct {
	// Replace discards the embedded defaults instead of extending them.
	Replace        bool                `yaml:"replace"`
	Provinces      []ProvinceEntry     `yaml:"provinces"`
	Aliases        map[string]string   `yaml:"aliases"`
	Municipalities map[string][]string `yaml:"municipalities"`
}

type ProvinceEntry struct {
	Name         string `yaml:"name"`
	PostalPrefix string `yaml:"postal_prefix"`
}

// Data is an immutable, ready-to-query view of the reference tables.
type Data struct {
	provinces      []string
	byKey          map[string]string
	prefixes       map[string]string
	aliases        map[string]string
	municipalities map[string]string
}

var loadDefault = sync.OnceValues(func() (*Data, error) {
	return Parse(embedded)
})

// Default returns the reference data compiled into the binary.
func Default() *Data {
	d, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("embedded reference data is invalid: %v", err))
	}
	return d
}

// Parse builds Data from a YAML document.
func Parse(raw []byte) (*Data, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse reference data: %w", err)
	}
	return build(f)
}

// LoadFile reads a YAML document from path and merges it over the embedded
// defaults, unless the document sets replace: true.
func LoadFile(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference data: %w", err)
	}

	var overlay File
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse reference data %s: %w", path, err)
	}
	if overlay.Replace {
		return build(overlay)
	}

	var base File
	if err := yaml.Unmarshal(embedded, &base); err != nil {
		return nil, fmt.Errorf("failed to parse embedded reference data: %w", err)
	}
	return build(merge(base, overlay))
}

// Load returns the embedded defaults when path is empty, LoadFile otherwise.
func Load(path string) (*Data, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

func merge(base, overlay File) File {
	known := make(map[string]int, len(base.Provinces))
	for i, p := range base.Provinces {
		known[normalizer.Key(p.Name)] = i
	}
	for _, p := range overlay.Provinces {
		if i, ok := known[normalizer.Key(p.Name)]; ok {
			base.Provinces[i] = p
			continue
		}
		base.Provinces = append(base.Provinces, p)
	}

	if base.Aliases == nil {
		base.Aliases = map[string]string{}
	}
	for k, v := range overlay.Aliases {
		base.Aliases[k] = v
	}

	if base.Municipalities == nil {
		base.Municipalities = map[string][]string{}
	}
	for province, names := range overlay.Municipalities {
		base.Municipalities[province] = append(base.Municipalities[province], names...)
	}
	return base
}

func build(f File) (*Data, error) {
	if len(f.Provinces) == 0 {
		return nil, fmt.Errorf("reference data declares no provinces")
	}

	d := &Data{
		provinces:      make([]string, 0, len(f.Provinces)),
		byKey:          make(map[string]string, len(f.Provinces)),
		prefixes:       make(map[string]string, len(f.Provinces)),
		aliases:        make(map[string]string, len(f.Aliases)),
		municipalities: make(map[string]string),
	}

	for _, p := range f.Provinces {
		if p.Name == "" {
			return nil, fmt.Errorf("province without name")
		}
		key := normalizer.Key(p.Name)
		if _, dup := d.byKey[key]; dup {
			return nil, fmt.Errorf("province %q declared twice", p.Name)
		}
		if p.PostalPrefix != "" && len(p.PostalPrefix) != 2 {
			return nil, fmt.Errorf("province %q: postal prefix must have two digits, got %q", p.Name, p.PostalPrefix)
		}
		d.provinces = append(d.provinces, p.Name)
		d.byKey[key] = p.Name
		if p.PostalPrefix != "" {
			d.prefixes[p.Name] = p.PostalPrefix
		}
	}

	for alias, target := range f.Aliases {
		canonical, ok := d.byKey[normalizer.Key(target)]
		if !ok {
			return nil, fmt.Errorf("alias %q points at unknown province %q", alias, target)
		}
		d.aliases[normalizer.Key(alias)] = canonical
	}

	for province, names := range f.Municipalities {
		canonical, ok := d.byKey[normalizer.Key(province)]
		if !ok {
			return nil, fmt.Errorf("municipalities listed under unknown province %q", province)
		}
		for _, name := range names {
			key := normalizer.Key(name)
			if prev, dup := d.municipalities[key]; dup && prev != canonical {
				return nil, fmt.Errorf("municipality %q listed under both %s and %s", name, prev, canonical)
			}
			d.municipalities[key] = canonical
		}
	}

	return d, nil
}

// Provinces returns the canonical province names in declaration order.
func (d *Data) Provinces() []string {
	out := make([]string, len(d.provinces))
	copy(out, d.provinces)
	return out
}

// IsProvince reports whether name is exactly a canonical province name.
func (d *Data) IsProvince(name string) bool {
	canonical, ok := d.byKey[normalizer.Key(name)]
	return ok && canonical == name
}

// ProvinceByKey resolves a province whose normalized form equals that of name.
func (d *Data) ProvinceByKey(name string) (string, bool) {
	p, ok := d.byKey[normalizer.Key(name)]
	return p, ok
}

// Alias resolves a co-official or historical spelling to its canonical province.
func (d *Data) Alias(name string) (string, bool) {
	p, ok := d.aliases[normalizer.Key(name)]
	return p, ok
}

// ProvinceOfMunicipality returns the province a municipality belongs to, if known.
func (d *Data) ProvinceOfMunicipality(name string) (string, bool) {
	p, ok := d.municipalities[normalizer.Key(name)]
	return p, ok
}

// PostalPrefix returns the two-digit postal prefix of a canonical province.
func (d *Data) PostalPrefix(province string) (string, bool) {
	p, ok := d.prefixes[province]
	return p, ok
}
