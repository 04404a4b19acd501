package axis

import (
	"strconv"
	"strings"
)

// Preset is one named value of an axis.
type Preset struct {
	ID          int      `yaml:"id" json:"id"`
	Axis        Axis     `yaml:"-" json:"axis"`
	Key         string   `yaml:"key" json:"key"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Lines       []string `yaml:"lines" json:"lines"`
	Inactive    bool     `yaml:"inactive,omitempty" json:"inactive,omitempty"`
}

// Known reports whether the preset came from the catalog. Presets built from
// an unmatched name carry no instruction lines.
func (p Preset) Known() bool {
	return p.ID != 0 && len(p.Lines) > 0
}

// Text joins the instruction lines into a block.
func (p Preset) Text() string {
	return strings.Join(p.Lines, "\n")
}

// RefKind tags which form a Ref was given in.
type RefKind int

const (
	// RefNone means no explicit value; the level inherits.
	RefNone RefKind = iota
	// RefByID selects a preset by catalog ID.
	RefByID
	// RefByName selects a preset by its display name.
	RefByName
)

// Ref is a preset reference as it arrives from profiles and overrides:
// either a catalog ID or a literal name.
type Ref struct {
	Kind RefKind
	ID   int
	Name string
}

// ByID returns a reference to the preset with the given ID.
func ByID(id int) Ref {
	return Ref{Kind: RefByID, ID: id, Name: strconv.Itoa(id)}
}

// ByName returns a reference to the preset with the given name.
func ByName(name string) Ref {
	return Ref{Kind: RefByName, Name: strings.TrimSpace(name)}
}

// IsSet reports whether the reference carries an explicit value.
func (r Ref) IsSet() bool {
	return r.Kind != RefNone
}

// String returns the raw form of the reference.
func (r Ref) String() string {
	switch r.Kind {
	case RefByID:
		return strconv.Itoa(r.ID)
	case RefByName:
		return r.Name
	}
	return ""
}

// ParseRef converts a raw override value into a Ref. Empty values and
// "inherit" (any case) yield an unset Ref. Numeric-looking values become ID
// references; the original text is kept so the catalog can fall back to a
// name match when no preset has that ID.
func ParseRef(raw string) Ref {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, "inherit") {
		return Ref{}
	}
	if id, err := strconv.Atoi(v); err == nil {
		return Ref{Kind: RefByID, ID: id, Name: v}
	}
	return ByName(v)
}

// MarshalText encodes the reference in its raw form so maps of references
// round-trip through JSON and YAML.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a raw reference with ParseRef.
func (r *Ref) UnmarshalText(text []byte) error {
	*r = ParseRef(string(text))
	return nil
}
