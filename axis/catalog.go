package axis

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Catalog errors.
var (
	// ErrUnknownAxis is returned when a catalog names an axis that does not exist.
	ErrUnknownAxis = errors.New("unknown axis")
	// ErrInvalidCatalog is returned when a catalog fails validation.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// Catalog is an immutable set of presets per axis. Use Registry to swap
// catalogs at runtime.
type Catalog struct {
	presets  map[Axis][]Preset
	byID     map[int]Preset
	defaults map[Axis]string
}

type catalogFile struct {
	Axes []axisEntry `yaml:"axes"`
}

type axisEntry struct {
	Axis    string   `yaml:"axis"`
	Default string   `yaml:"default"`
	Presets []Preset `yaml:"presets"`
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := ParseCatalog(builtinCatalog)
		if err != nil {
			panic(fmt.Sprintf("built-in axis catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog and validates it.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		presets:  make(map[Axis][]Preset),
		byID:     make(map[int]Preset),
		defaults: make(map[Axis]string),
	}

	for _, entry := range file.Axes {
		a, ok := Parse(entry.Axis)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAxis, entry.Axis)
		}
		if _, dup := c.defaults[a]; dup {
			return nil, fmt.Errorf("%w: axis %s listed twice", ErrInvalidCatalog, a)
		}
		c.defaults[a] = strings.TrimSpace(entry.Default)

		names := make(map[string]bool, len(entry.Presets))
		for _, p := range entry.Presets {
			p.Axis = a
			p.Name = strings.TrimSpace(p.Name)
			if p.ID <= 0 {
				return nil, fmt.Errorf("%w: preset %q on %s needs a positive id", ErrInvalidCatalog, p.Name, a)
			}
			if p.Name == "" {
				return nil, fmt.Errorf("%w: preset %d on %s has no name", ErrInvalidCatalog, p.ID, a)
			}
			if len(p.Lines) == 0 {
				return nil, fmt.Errorf("%w: preset %q on %s has no instruction lines", ErrInvalidCatalog, p.Name, a)
			}
			if _, dup := c.byID[p.ID]; dup {
				return nil, fmt.Errorf("%w: duplicate preset id %d", ErrInvalidCatalog, p.ID)
			}
			lower := strings.ToLower(p.Name)
			if names[lower] {
				return nil, fmt.Errorf("%w: duplicate preset name %q on %s", ErrInvalidCatalog, p.Name, a)
			}
			names[lower] = true

			c.byID[p.ID] = p
			c.presets[a] = append(c.presets[a], p)
		}
	}

	if err := c.validateDefaults(); err != nil {
		return nil, err
	}
	return c, nil
}

// validateDefaults checks that every axis has an active default preset.
func (c *Catalog) validateDefaults() error {
	for _, a := range All {
		name, ok := c.defaults[a]
		if !ok {
			return fmt.Errorf("%w: axis %s missing", ErrInvalidCatalog, a)
		}
		p, found := c.LookupName(a, name)
		if !found {
			return fmt.Errorf("%w: default %q for %s is not an active preset", ErrInvalidCatalog, name, a)
		}
		c.defaults[a] = p.Name
	}
	return nil
}

// Lookup returns the preset with the given ID.
func (c *Catalog) Lookup(id int) (Preset, bool) {
	p, ok := c.byID[id]
	if !ok || p.Inactive {
		return Preset{}, false
	}
	return p, true
}

// LookupName finds an active preset on axis a by display name or key,
// ignoring case.
func (c *Catalog) LookupName(a Axis, name string) (Preset, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Preset{}, false
	}
	for _, p := range c.presets[a] {
		if p.Inactive {
			continue
		}
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.Key, name) {
			return p, true
		}
	}
	return Preset{}, false
}

// Default returns the default preset for an axis.
func (c *Catalog) Default(a Axis) Preset {
	p, _ := c.LookupName(a, c.defaults[a])
	return p
}

// Presets returns the active presets of an axis in catalog order.
func (c *Catalog) Presets(a Axis) []Preset {
	out := make([]Preset, 0, len(c.presets[a]))
	for _, p := range c.presets[a] {
		if !p.Inactive {
			out = append(out, p)
		}
	}
	return out
}

// Resolve turns a reference into a preset of axis a. ID references are tried
// first and must belong to the same axis; when no preset has the ID the raw
// text is matched as a name. A name that matches nothing yields a preset
// carrying only that name, which compiles to the axis default lines.
// The boolean is false only for unset references.
func (c *Catalog) Resolve(a Axis, r Ref) (Preset, bool) {
	switch r.Kind {
	case RefNone:
		return Preset{}, false
	case RefByID:
		if p, ok := c.Lookup(r.ID); ok && p.Axis == a {
			return p, true
		}
	}
	if p, ok := c.LookupName(a, r.Name); ok {
		return p, true
	}
	return Preset{Axis: a, Name: r.Name}, true
}

// IDs returns every preset ID in ascending order.
func (c *Catalog) IDs() []int {
	ids := make([]int, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
