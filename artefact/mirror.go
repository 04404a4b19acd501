package artefact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/c360studio/workbench/definition"
)

// MaxRootRefLength bounds a user supplied artefact root.
const MaxRootRefLength = 200

// ErrOutsideBase is returned when a mirror path would leave the base directory.
var ErrOutsideBase = errors.New("path escapes artefact base")

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Mirror writes plain-text artefact copies under a base directory.
type Mirror struct {
	base    string
	allowed []string
}

// NewMirror creates a mirror rooted at base. allowed are doublestar patterns
// a user supplied root must match; an empty list allows any well-formed root.
func NewMirror(base string, allowed []string) (*Mirror, error) {
	if strings.TrimSpace(base) == "" {
		return nil, errors.New("artefact base directory is required")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve artefact base: %w", err)
	}
	for _, p := range allowed {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid artefact root pattern %q", p)
		}
	}
	return &Mirror{base: abs, allowed: allowed}, nil
}

// Base returns the absolute base directory.
func (m *Mirror) Base() string {
	return m.base
}

// DefaultRoot is the root used when no acceptable root was supplied.
func DefaultRoot(projectID string) string {
	return "projects/" + safeName(projectID)
}

// SafeRoot returns ref when it is an acceptable relative folder, otherwise
// the project's default root. Acceptable means: relative, slash separated,
// every segment made of letters, digits, '_' or '-', at most
// MaxRootRefLength characters, and matching an allowed pattern.
func (m *Mirror) SafeRoot(ref, projectID string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.EqualFold(ref, definition.SystemRoot) || len(ref) > MaxRootRefLength {
		return DefaultRoot(projectID)
	}
	for _, seg := range strings.Split(ref, "/") {
		if !segmentPattern.MatchString(seg) {
			return DefaultRoot(projectID)
		}
	}
	if len(m.allowed) == 0 {
		return ref
	}
	for _, p := range m.allowed {
		if ok, err := doublestar.Match(p, ref); err == nil && ok {
			return ref
		}
	}
	return DefaultRoot(projectID)
}

// resolve joins rel under the base and checks it stays inside.
func (m *Mirror) resolve(rel string) (string, error) {
	full := filepath.Join(m.base, filepath.FromSlash(rel))
	r, err := filepath.Rel(m.base, full)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, rel)
	}
	if r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) || filepath.IsAbs(r) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, rel)
	}
	return full, nil
}

// Write stores content at rel.
func (m *Mirror) Write(rel, content string) error {
	full, err := m.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write mirror: %w", err)
	}
	return nil
}

// Remove deletes the mirror at rel. A missing file is not an error.
func (m *Mirror) Remove(rel string) error {
	full, err := m.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove mirror: %w", err)
	}
	return nil
}

// Read returns the mirror stored at rel.
func (m *Mirror) Read(rel string) (string, error) {
	full, err := m.resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FileName names the mirror of one artefact version.
func FileName(kind Kind, doc definition.DocumentRef, version int) string {
	name := string(kind) + "-" + safeName(doc.ProjectID)
	if doc.Scope != "" {
		name += "-" + safeName(doc.Scope)
	}
	return fmt.Sprintf("%s-v%03d.md", name, version)
}

// RelPath is root/FileName.
func RelPath(root string, kind Kind, doc definition.DocumentRef, version int) string {
	return path.Join(root, FileName(kind, doc, version))
}

func safeName(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "_")
	if s == "" {
		return "_"
	}
	return s
}
