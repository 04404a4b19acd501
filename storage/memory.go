package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/c360studio/workbench/artefact"
	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/directory"
)

// MemoryStore is a Store held in process memory. Values are copied on the
// way in and out, so callers never share state with the store.
type MemoryStore struct {
	mu        sync.Mutex
	projects  map[string]*directory.Project
	users     map[string]*directory.User
	profiles  map[string]*directory.Profile
	prefs     map[string]*directory.ProjectPrefs
	fields    map[string]map[string]*definition.Field
	ledgers   map[string]*artefact.Ledger
	artefacts map[string]*artefact.Artefact
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:  make(map[string]*directory.Project),
		users:     make(map[string]*directory.User),
		profiles:  make(map[string]*directory.Profile),
		prefs:     make(map[string]*directory.ProjectPrefs),
		fields:    make(map[string]map[string]*definition.Field),
		ledgers:   make(map[string]*artefact.Ledger),
		artefacts: make(map[string]*artefact.Artefact),
	}
}

// clone deep-copies v through its JSON form, the same form KVStore persists.
func clone[T any](v *T) (*T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func get[T any](m map[string]*T, key, what string) (*T, error) {
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", directory.ErrNotFound, what)
	}
	return clone(v)
}

func put[T any](m map[string]*T, key string, v *T) error {
	c, err := clone(v)
	if err != nil {
		return err
	}
	m[key] = c
	return nil
}

// Project retrieves a project by ID.
func (s *MemoryStore) Project(_ context.Context, id string) (*directory.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.projects, id, "project "+id)
}

// User retrieves a user by ID.
func (s *MemoryStore) User(_ context.Context, id string) (*directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.users, id, "user "+id)
}

// Profile retrieves a user's profile.
func (s *MemoryStore) Profile(_ context.Context, userID string) (*directory.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.profiles, userID, "profile of "+userID)
}

// Prefs retrieves a user's preferences for one project.
func (s *MemoryStore) Prefs(_ context.Context, projectID, userID string) (*directory.ProjectPrefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.prefs, projectID+"/"+userID, "prefs of "+userID+" in "+projectID)
}

// PutProject creates or replaces a project.
func (s *MemoryStore) PutProject(_ context.Context, p *directory.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return put(s.projects, p.ID, p)
}

// PutUser creates or replaces a user.
func (s *MemoryStore) PutUser(_ context.Context, u *directory.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return put(s.users, u.ID, u)
}

// PutProfile creates or replaces a profile.
func (s *MemoryStore) PutProfile(_ context.Context, p *directory.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return put(s.profiles, p.UserID, p)
}

// PutPrefs creates or replaces project preferences.
func (s *MemoryStore) PutPrefs(_ context.Context, p *directory.ProjectPrefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return put(s.prefs, p.ProjectID+"/"+p.UserID, p)
}

// Fields returns every stored field of a document.
func (s *MemoryStore) Fields(_ context.Context, documentID string) ([]*definition.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*definition.Field, 0, len(s.fields[documentID]))
	for _, f := range s.fields[documentID] {
		c, err := clone(f)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// PutField creates or replaces one field.
func (s *MemoryStore) PutField(_ context.Context, f *definition.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fields[f.DocumentID] == nil {
		s.fields[f.DocumentID] = make(map[string]*definition.Field)
	}
	return put(s.fields[f.DocumentID], f.Key, f)
}

// Ledger returns the project's ledger, or an empty one.
func (s *MemoryStore) Ledger(_ context.Context, projectID string) (*artefact.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.ledgers[projectID]; ok {
		return l.Clone(), nil
	}
	return artefact.NewLedger(projectID), nil
}

// UpdateLedger applies fn under the store lock.
func (s *MemoryStore) UpdateLedger(_ context.Context, projectID string, fn func(*artefact.Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := artefact.NewLedger(projectID)
	if cur, ok := s.ledgers[projectID]; ok {
		l = cur.Clone()
	}
	if err := fn(l); err != nil {
		return fmt.Errorf("update ledger %s: %w", projectID, err)
	}
	s.ledgers[projectID] = l
	return nil
}

// PutArtefact stores an artefact body.
func (s *MemoryStore) PutArtefact(_ context.Context, a *artefact.Artefact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return put(s.artefacts, a.ProjectID+"/"+a.ID, a)
}

// Artefact retrieves an artefact body.
func (s *MemoryStore) Artefact(_ context.Context, projectID, id string) (*artefact.Artefact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artefacts[projectID+"/"+id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", artefact.ErrNotFound, id)
	}
	return clone(a)
}

// DeleteArtefact removes an artefact body.
func (s *MemoryStore) DeleteArtefact(_ context.Context, projectID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artefacts, projectID+"/"+id)
	return nil
}
