// Package artefact freezes locked definition documents into immutable,
// versioned artefacts and manages which version of each kind is accepted.
package artefact

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an artefact does not exist.
	ErrNotFound = errors.New("artefact not found")
	// ErrNotDraft is returned when accepting an artefact that is not DRAFT.
	ErrNotDraft = errors.New("only DRAFT artefacts can be accepted")
	// ErrMissingLocks is wrapped by a PreconditionError naming unlocked fields.
	ErrMissingLocks = errors.New("missing locked fields")
)

// PreconditionError reports why a commit or accept may not proceed.
type PreconditionError struct {
	Document string
	Missing  []string
	Err      error
}

func (e *PreconditionError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("cannot commit %s; %v: %s", e.Document, e.Err, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: %v", e.Document, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// Kind is an artefact family.
type Kind string

const (
	// KindCKO is a canonical knowledge object: the project definition.
	KindCKO Kind = "CKO"
	// KindWKO is a working knowledge object produced from a chat definition.
	KindWKO Kind = "WKO"
	// KindPDO is a planning definition object.
	KindPDO Kind = "PDO"
	// KindTKO is a transfer knowledge object.
	KindTKO Kind = "TKO"
	// KindPKO is a policy knowledge object.
	KindPKO Kind = "PKO"
)

// Kinds lists every artefact kind.
var Kinds = []Kind{KindCKO, KindWKO, KindPDO, KindTKO, KindPKO}

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	return slices.Contains(Kinds, k)
}

// ParseKind accepts any case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("unknown artefact kind %q", s)
	}
	return k, nil
}

// Status is the lifecycle state of an artefact.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusAccepted   Status = "ACCEPTED"
	StatusSuperseded Status = "SUPERSEDED"
)

// IsValid returns true if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusAccepted, StatusSuperseded:
		return true
	}
	return false
}

// CanTransitionTo returns true if the status can move to target.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusDraft:
		return target == StatusAccepted
	case StatusAccepted:
		return target == StatusSuperseded
	}
	return false
}

// Artefact is a frozen snapshot of one locked document. The body is
// written once at commit; Status and the accept stamp come from the
// project's ledger.
type Artefact struct {
	ID            string            `json:"id"`
	ProjectID     string            `json:"project_id"`
	Kind          Kind              `json:"kind"`
	DocumentID    string            `json:"document_id"`
	Version       int               `json:"version"`
	Status        Status            `json:"status"`
	FieldSnapshot map[string]string `json:"field_snapshot"`
	SnapshotJSON  string            `json:"snapshot_json"`
	ContentText   string            `json:"content_text"`
	RelPath       string            `json:"rel_path"`
	CreatedBy     string            `json:"created_by"`
	CreatedAt     time.Time         `json:"created_at"`
	AcceptedBy    string            `json:"accepted_by,omitempty"`
	AcceptedAt    *time.Time        `json:"accepted_at,omitempty"`
}

// Entry is an artefact's row in its project's ledger.
type Entry struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	DocumentID string     `json:"document_id"`
	Version    int        `json:"version"`
	Status     Status     `json:"status"`
	AcceptedBy string     `json:"accepted_by,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// EntryOf returns the ledger row for a.
func EntryOf(a *Artefact) *Entry {
	return &Entry{
		ID:         a.ID,
		Kind:       a.Kind,
		DocumentID: a.DocumentID,
		Version:    a.Version,
		Status:     a.Status,
		AcceptedBy: a.AcceptedBy,
		AcceptedAt: a.AcceptedAt,
	}
}

// apply copies the ledger-owned state of e onto a.
func (e *Entry) apply(a *Artefact) {
	a.Status = e.Status
	a.AcceptedBy = e.AcceptedBy
	a.AcceptedAt = e.AcceptedAt
}

// Ledger indexes one project's artefacts and holds the accepted pointer per
// kind. It is read and written as a single record, so version reservation
// and accept with supersede are atomic per project. Artefact bodies live
// outside it.
type Ledger struct {
	ProjectID   string          `json:"project_id"`
	LastVersion map[Kind]int    `json:"last_version"`
	Entries     []*Entry        `json:"entries"`
	Accepted    map[Kind]string `json:"accepted"`
	// DefinedBy and DefinedAt stamp the accepted CKO.
	DefinedBy string     `json:"defined_by,omitempty"`
	DefinedAt *time.Time `json:"defined_at,omitempty"`
}

// NewLedger returns an empty ledger for projectID.
func NewLedger(projectID string) *Ledger {
	return &Ledger{
		ProjectID:   projectID,
		LastVersion: make(map[Kind]int),
		Accepted:    make(map[Kind]string),
	}
}

// ensure fills maps left nil by decoding.
func (l *Ledger) ensure() {
	if l.LastVersion == nil {
		l.LastVersion = make(map[Kind]int)
	}
	if l.Accepted == nil {
		l.Accepted = make(map[Kind]string)
	}
}

// NextVersion reserves and returns the next version of kind. Versions are
// never handed out twice, even if the artefact is later removed.
func (l *Ledger) NextVersion(k Kind) int {
	l.ensure()
	next := l.LastVersion[k] + 1
	for _, e := range l.Entries {
		if e.Kind == k && e.Version >= next {
			next = e.Version + 1
		}
	}
	l.LastVersion[k] = next
	return next
}

// Find returns the entry with id.
func (l *Ledger) Find(id string) (*Entry, bool) {
	for _, e := range l.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Add appends e.
func (l *Ledger) Add(e *Entry) {
	l.Entries = append(l.Entries, e)
}

// Remove drops the entry with id. The version counter is left alone.
func (l *Ledger) Remove(id string) bool {
	for i, e := range l.Entries {
		if e.ID == id {
			l.Entries = slices.Delete(l.Entries, i, i+1)
			for k, acc := range l.Accepted {
				if acc == id {
					delete(l.Accepted, k)
				}
			}
			return true
		}
	}
	return false
}

// Current returns the accepted entry of kind.
func (l *Ledger) Current(k Kind) (*Entry, bool) {
	id, ok := l.Accepted[k]
	if !ok {
		return nil, false
	}
	return l.Find(id)
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	c := NewLedger(l.ProjectID)
	for k, v := range l.LastVersion {
		c.LastVersion[k] = v
	}
	for k, v := range l.Accepted {
		c.Accepted[k] = v
	}
	c.DefinedBy = l.DefinedBy
	c.DefinedAt = l.DefinedAt
	c.Entries = make([]*Entry, len(l.Entries))
	for i, e := range l.Entries {
		cp := *e
		c.Entries[i] = &cp
	}
	return c
}

// Store persists ledgers and artefact bodies.
type Store interface {
	// Ledger returns the project's ledger, or an empty one.
	Ledger(ctx context.Context, projectID string) (*Ledger, error)
	// UpdateLedger applies fn to the current ledger and saves the result
	// atomically. fn may run more than once when writers race; an error from
	// fn aborts the update and is returned wrapped.
	UpdateLedger(ctx context.Context, projectID string, fn func(*Ledger) error) error

	// PutArtefact stores an artefact body under its project and ID.
	PutArtefact(ctx context.Context, a *Artefact) error
	// Artefact returns a stored body, or an error wrapping ErrNotFound.
	Artefact(ctx context.Context, projectID, id string) (*Artefact, error)
	// DeleteArtefact removes a body. Removing a missing body is not an error.
	DeleteArtefact(ctx context.Context, projectID, id string) error
}
