package resolution

import (
	"sort"
	"strings"

	"github.com/c360studio/workbench/axis"
)

// Level is a precedence tier. Higher levels win.
type Level int

const (
	LevelOrgDefault Level = iota
	LevelUserProfile
	LevelProjectPrefs
	LevelSession
	LevelChat
)

// String returns the level name used in provenance and instruction text.
func (l Level) String() string {
	switch l {
	case LevelOrgDefault:
		return "ORG_DEFAULT"
	case LevelUserProfile:
		return "USER_PROFILE"
	case LevelProjectPrefs:
		return "PROJECT_PREFS"
	case LevelSession:
		return "SESSION_OVERRIDE"
	case LevelChat:
		return "CHAT_OVERRIDE"
	}
	return "UNKNOWN"
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Overrides is one layer of explicit axis selections. A nil or empty
// Overrides sets nothing.
type Overrides struct {
	Values map[axis.Axis]axis.Ref `json:"values,omitempty"`
	// Ignored holds raw keys that named no axis, sorted.
	Ignored []string `json:"ignored,omitempty"`
}

// ParseOverrides builds an Overrides layer from raw key/value input. Keys may
// be axis names, legacy category names or profile field names in any case.
// Empty and "inherit" values are skipped.
func ParseOverrides(raw map[string]string) Overrides {
	o := Overrides{}
	for k, v := range raw {
		a, ok := axis.Parse(k)
		if !ok {
			o.Ignored = append(o.Ignored, strings.TrimSpace(k))
			continue
		}
		ref := axis.ParseRef(v)
		if !ref.IsSet() {
			continue
		}
		o.Set(a, ref)
	}
	sort.Strings(o.Ignored)
	return o
}

// Set records an explicit selection. Unset refs are ignored.
func (o *Overrides) Set(a axis.Axis, ref axis.Ref) {
	if !ref.IsSet() {
		return
	}
	if o.Values == nil {
		o.Values = make(map[axis.Axis]axis.Ref)
	}
	o.Values[a] = ref
}

// Get returns the explicit selection for a, if any.
func (o *Overrides) Get(a axis.Axis) (axis.Ref, bool) {
	if o == nil {
		return axis.Ref{}, false
	}
	ref, ok := o.Values[a]
	return ref, ok && ref.IsSet()
}

// Keys returns the axes this layer sets, sorted by name.
func (o *Overrides) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, 0, len(o.Values))
	for a, ref := range o.Values {
		if ref.IsSet() {
			keys = append(keys, a.String())
		}
	}
	sort.Strings(keys)
	return keys
}

// IsEmpty reports whether the layer sets no axis.
func (o *Overrides) IsEmpty() bool {
	return len(o.Keys()) == 0
}

func fromSelections(sel map[axis.Axis]axis.Ref) Overrides {
	o := Overrides{}
	for a, ref := range sel {
		if norm, ok := axis.Parse(a.String()); ok {
			o.Set(norm, ref)
		}
	}
	return o
}
