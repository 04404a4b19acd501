package definition

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/c360studio/workbench/directory"
	"github.com/c360studio/workbench/validator"
)

// DocumentType names a definition document family.
type DocumentType string

const (
	// TypePDE is the project definition; it commits to a CKO.
	TypePDE DocumentType = "PDE"
	// TypeCDE is a chat definition; it commits to a WKO.
	TypeCDE DocumentType = "CDE"
	// TypePPDE is a planning stage block; it commits to a PDO.
	TypePPDE DocumentType = "PPDE"
)

// ParseDocumentType accepts any case.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := specs[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDocument, s)
	}
	return t, nil
}

// DocumentRef identifies one document instance.
type DocumentRef struct {
	Type      DocumentType `json:"type"`
	ProjectID string       `json:"project_id"`
	// Scope is the chat for CDE and the stage for PPDE; PDE has none.
	Scope string `json:"scope,omitempty"`
}

// ID returns type/project[/scope].
func (d DocumentRef) ID() string {
	id := string(d.Type) + "/" + d.ProjectID
	if d.Scope != "" {
		id += "/" + d.Scope
	}
	return id
}

// Validate checks that the reference names a known, fully scoped document.
func (d DocumentRef) Validate() error {
	if _, ok := specs[d.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDocument, d.Type)
	}
	if strings.TrimSpace(d.ProjectID) == "" {
		return errors.New("document project is required")
	}
	if d.Type != TypePDE && strings.TrimSpace(d.Scope) == "" {
		return fmt.Errorf("%s documents require a scope", d.Type)
	}
	if strings.Contains(d.Scope, "/") {
		return fmt.Errorf("document scope %q must not contain '/'", d.Scope)
	}
	return nil
}

// DirectRule decides a field without the model. It returns nil when the
// model should decide.
type DirectRule func(fieldKey, value string) *validator.Result

// FieldSpec declares one field of a document.
type FieldSpec struct {
	Key      string     `json:"key"`
	Label    string     `json:"label"`
	Tier     string     `json:"tier,omitempty"`
	Required bool       `json:"required"`
	Summary  string     `json:"summary,omitempty"`
	Rubric   string     `json:"rubric,omitempty"`
	Direct   DirectRule `json:"-"`
}

// DocumentSpec declares a document family. Field order is validation order.
type DocumentSpec struct {
	Type             DocumentType
	ArtefactKind     string
	Fields           []FieldSpec
	Boilerplate      string
	DraftBoilerplate string
}

// Field returns the spec for key.
func (s *DocumentSpec) Field(key string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Keys returns every field key in declared order.
func (s *DocumentSpec) Keys() []string {
	return keysOf(s.Fields)
}

// RequiredKeys returns the required field keys in declared order.
func (s *DocumentSpec) RequiredKeys() []string {
	var keys []string
	for _, f := range s.Fields {
		if f.Required {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// SpecFor returns the spec for a document type.
func SpecFor(t DocumentType) (*DocumentSpec, error) {
	s, ok := specs[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocument, t)
	}
	return s, nil
}

// SystemRoot is the artefact root value meaning "let the workbench choose".
const SystemRoot = "SYSTEM"

// EnumRule passes values that match one of allowed case-insensitively and
// locks the upper-cased form.
func EnumRule(label string, allowed []string) DirectRule {
	return func(key, value string) *validator.Result {
		v := strings.ToUpper(strings.TrimSpace(value))
		if v == "" {
			return validator.Weak(key, "", label+" is required.")
		}
		if !slices.Contains(allowed, v) {
			opts := slices.Clone(allowed)
			slices.Sort(opts)
			return validator.Weak(key, "", label+" must be one of: "+strings.Join(opts, ", ")+".")
		}
		return validator.Pass(key, v)
	}
}

// ArtefactRootRule accepts SYSTEM, blank (meaning SYSTEM) or anything that
// looks like a folder path. Containment is enforced at commit time.
func ArtefactRootRule(key, value string) *validator.Result {
	raw := strings.TrimSpace(value)
	if raw == "" || strings.EqualFold(raw, SystemRoot) {
		return validator.Pass(key, SystemRoot)
	}
	if !strings.ContainsAny(raw, `/\:`) {
		return validator.Weak(key, "", "Use SYSTEM or a folder path.")
	}
	return validator.Pass(key, raw)
}

func primaryTypeNames() []string {
	out := make([]string, len(directory.PrimaryTypes))
	for i, t := range directory.PrimaryTypes {
		out[i] = string(t)
	}
	return out
}

func projectStatusNames() []string {
	out := make([]string, len(directory.ProjectStatuses))
	for i, s := range directory.ProjectStatuses {
		out[i] = string(s)
	}
	return out
}
