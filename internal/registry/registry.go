// Package registry holds the provider table and resolves which providers operate in a region.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/model"
)

//go:embed default.yaml
var defaultYAML []byte

type File struct {
	Providers []ProviderEntry   `yaml:"providers"`
	Regions   []RegionEntry     `yaml:"regions"`
	Languages map[string]string `yaml:"languages"`
}

type ProviderEntry struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Website    string   `yaml:"website"`
	Format     string   `yaml:"format"`
	Attributes []string `yaml:"attributes"`
	Global     bool     `yaml:"global"`
}

type RegionEntry struct {
	City      string   `yaml:"city"`
	Country   string   `yaml:"country"`
	Providers []string `yaml:"providers"`
}

type cityKey struct {
	city    string
	country string
}

// Registry is immutable after construction and safe for concurrent reads.
type Registry struct {
	providers []model.Provider
	entries   []ProviderEntry
	byID      map[string]int
	cities    map[cityKey][]string
	countries map[string][]string
	global    []string
	languages map[string]string
}

const DefaultLanguage = "en"

// Default returns the registry built from the embedded provider table.
func Default() (*Registry, error) {
	return Parse(defaultYAML)
}

// Load reads a YAML registry file; an empty path selects the embedded default.
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %q: %w", path, err)
	}
	r, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("registry %q: %w", path, err)
	}
	return r, nil
}

func Parse(b []byte) (*Registry, error) {
	var f File
	if err := yaml.UnmarshalStrict(b, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return New(f)
}

func New(f File) (*Registry, error) {
	r := &Registry{
		byID:      make(map[string]int, len(f.Providers)),
		cities:    map[cityKey][]string{},
		countries: map[string][]string{},
		languages: map[string]string{},
	}

	for _, p := range f.Providers {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, errors.New("provider with empty id")
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("provider %q registered twice", id)
		}
		p.ID = id
		if p.Name == "" {
			p.Name = id
		}
		r.byID[id] = len(r.providers)
		r.entries = append(r.entries, p)
		r.providers = append(r.providers, model.Provider{
			ID:          id,
			DisplayName: p.Name,
			Website:     p.Website,
			Global:      p.Global,
		})
		if p.Global {
			r.global = append(r.global, id)
		}
	}

	for i, reg := range f.Regions {
		country := norm(reg.Country)
		if country == "" {
			return nil, fmt.Errorf("region %d: country is required", i)
		}
		ids := make([]string, 0, len(reg.Providers))
		seen := map[string]struct{}{}
		for _, id := range reg.Providers {
			id = strings.TrimSpace(id)
			idx, ok := r.byID[id]
			if !ok {
				return nil, fmt.Errorf("region %d (%s): unknown provider %q", i, model.Region{City: reg.City, Country: reg.Country}.Label(), id)
			}
			if _, dup := seen[id]; dup {
				return nil, fmt.Errorf("region %d: provider %q listed twice", i, id)
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			p := &r.providers[idx]
			p.Regions = append(p.Regions, model.RegionRef{Country: reg.Country, City: reg.City})
		}

		if city := norm(reg.City); city != "" {
			k := cityKey{city: city, country: country}
			if _, dup := r.cities[k]; dup {
				return nil, fmt.Errorf("region %d: duplicate entry for %s, %s", i, reg.City, reg.Country)
			}
			r.cities[k] = ids
			continue
		}
		if _, dup := r.countries[country]; dup {
			return nil, fmt.Errorf("region %d: duplicate entry for country %s", i, reg.Country)
		}
		r.countries[country] = ids
	}

	for country, lang := range f.Languages {
		if c, l := norm(country), strings.TrimSpace(lang); c != "" && l != "" {
			r.languages[c] = l
		}
	}
	return r, nil
}

// Resolve returns the ordered provider ids operable in (city, country):
// an exact city entry, else the country entry, else every global provider.
func (r *Registry) Resolve(city, country string) []string {
	c := norm(country)
	if c != "" {
		if ct := norm(city); ct != "" {
			if ids, ok := r.cities[cityKey{city: ct, country: c}]; ok {
				return slices.Clone(ids)
			}
		}
		if ids, ok := r.countries[c]; ok {
			return slices.Clone(ids)
		}
	}
	return slices.Clone(r.global)
}

// Language returns the default UI language for a country.
func (r *Registry) Language(country string) string {
	if l, ok := r.languages[norm(country)]; ok {
		return l
	}
	return DefaultLanguage
}

func (r *Registry) Provider(id string) (model.Provider, bool) {
	i, ok := r.byID[id]
	if !ok {
		return model.Provider{}, false
	}
	return r.providers[i], true
}

// Entry exposes the raw registration (format, default attributes) used to build adapters.
func (r *Registry) Entry(id string) (ProviderEntry, bool) {
	i, ok := r.byID[id]
	if !ok {
		return ProviderEntry{}, false
	}
	return r.entries[i], true
}

// Providers returns all providers in registration order.
func (r *Registry) Providers() []model.Provider {
	return slices.Clone(r.providers)
}

func norm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
