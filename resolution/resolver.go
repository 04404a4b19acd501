// Package resolution merges the configuration layers that apply to one
// (project, user, chat) triple into an EffectiveContext.
//
// Precedence, lowest first: org defaults, user profile, project prefs,
// session overrides, chat overrides. A layer only replaces an axis it sets
// explicitly.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/workbench/axis"
	"github.com/c360studio/workbench/directory"
)

// Selection is the preset chosen for one axis and the level that chose it.
type Selection struct {
	Preset axis.Preset `json:"preset"`
	Level  Level       `json:"level"`
	// Ref is the raw reference as given; empty for catalog defaults.
	Ref axis.Ref `json:"ref"`
}

// Provenance records which inputs contributed to an EffectiveContext.
type Provenance struct {
	ProfileID           string   `json:"profile_id,omitempty"`
	PrefsApplied        bool     `json:"prefs_applied"`
	SessionOverrideKeys []string `json:"session_override_keys"`
	ChatOverrideKeys    []string `json:"chat_override_keys"`
	Notes               []string `json:"notes,omitempty"`
}

// EffectiveContext is the resolved configuration for one request. It is a
// pure function of its inputs and is never persisted.
type EffectiveContext struct {
	ProjectID   string                  `json:"project_id"`
	UserID      string                  `json:"user_id"`
	ChatID      string                  `json:"chat_id,omitempty"`
	ProjectKind directory.ProjectKind   `json:"project_kind"`
	Language    string                  `json:"language"`
	Values      map[axis.Axis]Selection `json:"values"`
	Governance  string                  `json:"governance,omitempty"`
	Provenance  Provenance              `json:"provenance"`
}

// Selection returns the selection for axis a.
func (ec *EffectiveContext) Selection(a axis.Axis) (Selection, bool) {
	s, ok := ec.Values[a]
	return s, ok
}

// Request names the triple to resolve and carries the request-scoped layers.
type Request struct {
	ProjectID string
	UserID    string
	ChatID    string
	Session   Overrides
	Chat      Overrides
}

// Resolver resolves effective contexts against a directory and catalog.
type Resolver struct {
	dir         directory.Reader
	registry    *axis.Registry
	orgDefaults Overrides
	logger      *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOrgDefaults sets the organisation-level selections. Axes it leaves
// unset use the catalog default.
func WithOrgDefaults(o Overrides) Option {
	return func(r *Resolver) {
		r.orgDefaults = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// NewResolver creates a resolver.
func NewResolver(dir directory.Reader, registry *axis.Registry, opts ...Option) *Resolver {
	if registry == nil {
		registry = axis.NewRegistry(nil)
	}
	r := &Resolver{
		dir:      dir,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the catalog registry the resolver reads.
func (r *Resolver) Registry() *axis.Registry {
	return r.registry
}

// Resolve builds the effective context for req. A missing project or user is
// an error wrapping directory.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*EffectiveContext, error) {
	project, err := r.dir.Project(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("resolve project %q: %w", req.ProjectID, err)
	}
	if _, err := r.dir.User(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("resolve user %q: %w", req.UserID, err)
	}

	b := &builder{
		catalog: r.registry.Catalog(),
		values:  make(map[axis.Axis]Selection, len(axis.All)),
	}
	ec := &EffectiveContext{
		ProjectID:   project.ID,
		UserID:      req.UserID,
		ChatID:      req.ChatID,
		ProjectKind: project.Kind,
		Values:      b.values,
	}

	for _, a := range axis.All {
		b.values[a] = Selection{Preset: b.catalog.Default(a), Level: LevelOrgDefault}
	}
	b.apply(LevelOrgDefault, r.orgDefaults)

	profile, err := r.dir.Profile(ctx, req.UserID)
	switch {
	case err == nil:
		ec.Provenance.ProfileID = profile.ID
		layer := fromSelections(profile.Selections)
		withLanguage(&layer, profile.Language)
		b.apply(LevelUserProfile, layer)
	case errors.Is(err, directory.ErrNotFound):
		b.note("no user profile; org defaults apply")
	default:
		return nil, fmt.Errorf("resolve profile for %q: %w", req.UserID, err)
	}

	prefs, err := r.dir.Prefs(ctx, req.ProjectID, req.UserID)
	switch {
	case err == nil:
		ec.Provenance.PrefsApplied = true
		layer := fromSelections(prefs.Selections)
		withLanguage(&layer, prefs.Language)
		b.apply(LevelProjectPrefs, layer)
	case errors.Is(err, directory.ErrNotFound):
	default:
		return nil, fmt.Errorf("resolve prefs for %q/%q: %w", req.ProjectID, req.UserID, err)
	}

	b.apply(LevelSession, req.Session)
	b.apply(LevelChat, req.Chat)
	b.ignored("session", req.Session.Ignored)
	b.ignored("chat", req.Chat.Ignored)

	ec.Provenance.SessionOverrideKeys = nonNil(req.Session.Keys())
	ec.Provenance.ChatOverrideKeys = nonNil(req.Chat.Keys())
	ec.Language = b.values[axis.Language].Preset.Name

	if project.IsSandbox() {
		b.note("sandbox project: governance text omitted")
	} else {
		ec.Governance = project.Governance
	}
	ec.Provenance.Notes = b.notes

	r.logger.Debug("Resolved effective context",
		"project_id", ec.ProjectID,
		"user_id", ec.UserID,
		"chat_id", ec.ChatID,
		"session_keys", ec.Provenance.SessionOverrideKeys,
		"chat_keys", ec.Provenance.ChatOverrideKeys)

	return ec, nil
}

type builder struct {
	catalog *axis.Catalog
	values  map[axis.Axis]Selection
	notes   []string
}

func (b *builder) apply(level Level, o Overrides) {
	for _, a := range axis.All {
		ref, ok := o.Get(a)
		if !ok {
			continue
		}
		p, _ := b.catalog.Resolve(a, ref)
		if !p.Known() {
			b.note(fmt.Sprintf("%s value %q at %s matched no preset; default lines apply", a, ref.String(), level))
		}
		b.values[a] = Selection{Preset: p, Level: level, Ref: ref}
	}
}

func (b *builder) ignored(layer string, keys []string) {
	for _, k := range keys {
		b.note(fmt.Sprintf("%s override key %q names no axis; ignored", layer, k))
	}
}

func (b *builder) note(s string) {
	b.notes = append(b.notes, s)
}

func withLanguage(o *Overrides, language string) {
	if _, set := o.Get(axis.Language); set {
		return
	}
	o.Set(axis.Language, axis.ParseRef(language))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
