// Package storage persists the workbench directory, definition fields and
// artefact ledgers, in NATS JetStream KV or in memory.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/workbench/artefact"
	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/directory"
)

// Store is everything the workbench persists.
type Store interface {
	directory.Store
	definition.FieldStore
	artefact.Store
}

// DefaultMaxRetries bounds compare-and-swap attempts on a ledger.
const DefaultMaxRetries = 8

// KVOption configures a KVStore.
type KVOption func(*KVStore)

// WithMaxRetries bounds ledger compare-and-swap attempts.
func WithMaxRetries(n int) KVOption {
	return func(s *KVStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) KVOption {
	return func(s *KVStore) {
		s.logger = l
	}
}

// KVStore is a Store backed by four JetStream KV buckets. Ledgers hold only
// the per-project index; artefact bodies get a key each.
type KVStore struct {
	directory  jetstream.KeyValue
	fields     jetstream.KeyValue
	ledgers    jetstream.KeyValue
	artefacts  jetstream.KeyValue
	maxRetries int
	logger     *slog.Logger
}

var _ Store = (*KVStore)(nil)

// NewKVStore creates a KVStore with the given JetStream context.
// It creates the necessary KV buckets if they don't exist.
func NewKVStore(ctx context.Context, js jetstream.JetStream, opts ...KVOption) (*KVStore, error) {
	dir, err := getOrCreateBucket(ctx, js, BucketDirectory)
	if err != nil {
		return nil, fmt.Errorf("create directory bucket: %w", err)
	}

	fields, err := getOrCreateBucket(ctx, js, BucketFields)
	if err != nil {
		return nil, fmt.Errorf("create fields bucket: %w", err)
	}

	ledgers, err := getOrCreateBucket(ctx, js, BucketLedgers)
	if err != nil {
		return nil, fmt.Errorf("create ledgers bucket: %w", err)
	}

	artefacts, err := getOrCreateBucket(ctx, js, BucketArtefacts)
	if err != nil {
		return nil, fmt.Errorf("create artefacts bucket: %w", err)
	}

	s := &KVStore{
		directory:  dir,
		fields:     fields,
		ledgers:    ledgers,
		artefacts:  artefacts,
		maxRetries: DefaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Workbench %s storage", strings.ToLower(strings.TrimPrefix(name, "WORKBENCH_"))),
		History:     5, // Keep last 5 revisions
	})
}

func getJSON(ctx context.Context, kv jetstream.KeyValue, key, what string, v any) error {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", directory.ErrNotFound, what)
		}
		return fmt.Errorf("get %s: %w", what, err)
	}
	if err := json.Unmarshal(entry.Value(), v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}

func putJSON(ctx context.Context, kv jetstream.KeyValue, key, what string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", what, err)
	}
	if _, err := kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store %s: %w", what, err)
	}
	return nil
}

// Project retrieves a project by ID.
func (s *KVStore) Project(ctx context.Context, id string) (*directory.Project, error) {
	var p directory.Project
	if err := getJSON(ctx, s.directory, projectKey(id), "project "+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// User retrieves a user by ID.
func (s *KVStore) User(ctx context.Context, id string) (*directory.User, error) {
	var u directory.User
	if err := getJSON(ctx, s.directory, userKey(id), "user "+id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Profile retrieves a user's profile.
func (s *KVStore) Profile(ctx context.Context, userID string) (*directory.Profile, error) {
	var p directory.Profile
	if err := getJSON(ctx, s.directory, profileKey(userID), "profile of "+userID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Prefs retrieves a user's preferences for one project.
func (s *KVStore) Prefs(ctx context.Context, projectID, userID string) (*directory.ProjectPrefs, error) {
	var p directory.ProjectPrefs
	if err := getJSON(ctx, s.directory, prefsKey(projectID, userID), "prefs of "+userID+" in "+projectID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PutProject creates or replaces a project.
func (s *KVStore) PutProject(ctx context.Context, p *directory.Project) error {
	return putJSON(ctx, s.directory, projectKey(p.ID), "project", p)
}

// PutUser creates or replaces a user.
func (s *KVStore) PutUser(ctx context.Context, u *directory.User) error {
	return putJSON(ctx, s.directory, userKey(u.ID), "user", u)
}

// PutProfile creates or replaces a profile.
func (s *KVStore) PutProfile(ctx context.Context, p *directory.Profile) error {
	return putJSON(ctx, s.directory, profileKey(p.UserID), "profile", p)
}

// PutPrefs creates or replaces project preferences.
func (s *KVStore) PutPrefs(ctx context.Context, p *directory.ProjectPrefs) error {
	return putJSON(ctx, s.directory, prefsKey(p.ProjectID, p.UserID), "prefs", p)
}

// Fields returns every stored field of a document.
func (s *KVStore) Fields(ctx context.Context, documentID string) ([]*definition.Field, error) {
	w, err := s.fields.Watch(ctx, documentPrefix(documentID)+".>", jetstream.IgnoreDeletes())
	if err != nil {
		return nil, fmt.Errorf("watch fields of %s: %w", documentID, err)
	}
	defer func() {
		_ = w.Stop()
	}()

	var out []*definition.Field
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry, ok := <-w.Updates():
			// A nil entry marks the end of the current values.
			if !ok || entry == nil {
				return out, nil
			}
			var f definition.Field
			if err := json.Unmarshal(entry.Value(), &f); err != nil {
				s.logger.Warn("Skipping undecodable field", "key", entry.Key(), "error", err)
				continue
			}
			out = append(out, &f)
		}
	}
}

// PutField creates or replaces one field.
func (s *KVStore) PutField(ctx context.Context, f *definition.Field) error {
	return putJSON(ctx, s.fields, fieldKey(f.DocumentID, f.Key), "field "+f.Key, f)
}

// loadLedger returns the ledger and its revision; revision 0 means it does
// not exist yet.
func (s *KVStore) loadLedger(ctx context.Context, projectID string) (*artefact.Ledger, uint64, error) {
	entry, err := s.ledgers.Get(ctx, ledgerKey(projectID))
	if err != nil {
		if isNotFound(err) {
			return artefact.NewLedger(projectID), 0, nil
		}
		return nil, 0, fmt.Errorf("get ledger %s: %w", projectID, err)
	}
	l := artefact.NewLedger(projectID)
	if err := json.Unmarshal(entry.Value(), l); err != nil {
		return nil, 0, fmt.Errorf("unmarshal ledger %s: %w", projectID, err)
	}
	return l, entry.Revision(), nil
}

// Ledger returns the project's ledger, or an empty one.
func (s *KVStore) Ledger(ctx context.Context, projectID string) (*artefact.Ledger, error) {
	l, _, err := s.loadLedger(ctx, projectID)
	return l, err
}

// UpdateLedger applies fn and writes the result only if nobody else wrote
// the ledger in between, retrying on conflict.
func (s *KVStore) UpdateLedger(ctx context.Context, projectID string, fn func(*artefact.Ledger) error) error {
	key := ledgerKey(projectID)
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		l, rev, err := s.loadLedger(ctx, projectID)
		if err != nil {
			return err
		}
		if err := fn(l); err != nil {
			return fmt.Errorf("update ledger %s: %w", projectID, err)
		}
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("marshal ledger %s: %w", projectID, err)
		}

		if rev == 0 {
			_, err = s.ledgers.Create(ctx, key, data)
		} else {
			_, err = s.ledgers.Update(ctx, key, data, rev)
		}
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return fmt.Errorf("store ledger %s: %w", projectID, err)
		}
		s.logger.Debug("Ledger update conflict, retrying", "project_id", projectID, "attempt", attempt)
	}
	return fmt.Errorf("%w: ledger %s after %d attempts", ErrConflict, projectID, s.maxRetries)
}

// PutArtefact stores an artefact body.
func (s *KVStore) PutArtefact(ctx context.Context, a *artefact.Artefact) error {
	return putJSON(ctx, s.artefacts, artefactKey(a.ProjectID, a.ID), "artefact "+a.ID, a)
}

// Artefact retrieves an artefact body.
func (s *KVStore) Artefact(ctx context.Context, projectID, id string) (*artefact.Artefact, error) {
	entry, err := s.artefacts.Get(ctx, artefactKey(projectID, id))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", artefact.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get artefact %s: %w", id, err)
	}
	var a artefact.Artefact
	if err := json.Unmarshal(entry.Value(), &a); err != nil {
		return nil, fmt.Errorf("unmarshal artefact %s: %w", id, err)
	}
	return &a, nil
}

// DeleteArtefact removes an artefact body.
func (s *KVStore) DeleteArtefact(ctx context.Context, projectID, id string) error {
	if err := s.artefacts.Delete(ctx, artefactKey(projectID, id)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete artefact %s: %w", id, err)
	}
	return nil
}
