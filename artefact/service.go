package artefact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/directory"
	"github.com/google/uuid"
)

// Accept result statuses.
const (
	AcceptAccepted = "accepted"
	AcceptNoop     = "noop"
)

// errUnchanged aborts a ledger update that has nothing to write.
var errUnchanged = errors.New("ledger unchanged")

// DocumentSource reads definition documents. *definition.Engine implements it.
type DocumentSource interface {
	Fields(ctx context.Context, ref definition.DocumentRef) ([]*definition.Field, error)
	Spec(ref definition.DocumentRef) (*definition.DocumentSpec, error)
}

// Observer is told about every commit and accept attempt. outcome is one of
// "created", "precondition", "error", "accepted" or "noop".
type Observer func(op string, kind Kind, outcome string)

// CommitRequest freezes one document.
type CommitRequest struct {
	Document definition.DocumentRef
	Actor    directory.Actor
}

// AcceptRequest accepts one DRAFT artefact.
type AcceptRequest struct {
	ProjectID  string
	ArtefactID string
	Actor      directory.Actor
}

// AcceptResult reports what Accept did.
type AcceptResult struct {
	ProjectID  string    `json:"project_id"`
	ArtefactID string    `json:"artefact_id"`
	PreviousID string    `json:"previous_accepted_id,omitempty"`
	Status     string    `json:"status"`
	Artefact   *Artefact `json:"artefact"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithObserver registers a commit/accept callback.
func WithObserver(fn Observer) Option {
	return func(s *Service) {
		s.observe = fn
	}
}

// Service commits locked documents and accepts artefacts.
type Service struct {
	docs     DocumentSource
	projects directory.Store
	ledgers  Store
	mirror   *Mirror
	logger   *slog.Logger
	now      func() time.Time
	observe  Observer
}

// NewService wires a Service.
func NewService(docs DocumentSource, projects directory.Store, ledgers Store, mirror *Mirror, opts ...Option) *Service {
	s := &Service{
		docs:     docs,
		projects: projects,
		ledgers:  ledgers,
		mirror:   mirror,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) report(op string, kind Kind, outcome string) {
	if s.observe != nil {
		s.observe(op, kind, outcome)
	}
}

// Commit freezes every locked field of a document into a new DRAFT artefact
// and writes its plain-text mirror. Nothing is written unless every required
// field is PASS_LOCKED with a value.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*Artefact, error) {
	if !req.Actor.IsCommitter() {
		return nil, fmt.Errorf("%w: only committers commit documents", definition.ErrPermissionDenied)
	}
	ref := req.Document
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	project, err := s.projects.Project(ctx, ref.ProjectID)
	if err != nil {
		return nil, err
	}
	spec, err := s.docs.Spec(ref)
	if err != nil {
		return nil, err
	}
	kind, err := ParseKind(spec.ArtefactKind)
	if err != nil {
		return nil, err
	}
	fields, err := s.docs.Fields(ctx, ref)
	if err != nil {
		return nil, err
	}

	locked, missing := definition.Snapshot(spec, fields)
	if len(missing) > 0 {
		s.report("commit", kind, "precondition")
		return nil, &PreconditionError{Document: ref.ID(), Missing: missing, Err: ErrMissingLocks}
	}

	requested := project.ArtefactRoot
	if ref.Type == definition.TypePDE {
		if v := locked[definition.KeyArtefactRoot]; v != "" && !strings.EqualFold(v, definition.SystemRoot) {
			requested = v
		}
	}
	root := s.mirror.SafeRoot(requested, project.ID)
	now := s.now()

	var version int
	err = s.ledgers.UpdateLedger(ctx, project.ID, func(l *Ledger) error {
		version = l.NextVersion(kind)
		return nil
	})
	if err != nil {
		s.report("commit", kind, "error")
		return nil, fmt.Errorf("commit %s: %w", ref.ID(), err)
	}

	h := Header{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Owner:       project.Owner,
		DocumentID:  ref.ID(),
		Version:     version,
		Date:        now.Format(time.DateOnly),
	}
	snap, err := SnapshotJSON(kind, h, locked)
	if err != nil {
		s.report("commit", kind, "error")
		return nil, fmt.Errorf("commit %s: %w", ref.ID(), err)
	}
	a := &Artefact{
		ID:            uuid.NewString(),
		ProjectID:     project.ID,
		Kind:          kind,
		DocumentID:    ref.ID(),
		Version:       version,
		Status:        StatusDraft,
		FieldSnapshot: locked,
		SnapshotJSON:  snap,
		ContentText:   Render(kind, h, spec, locked),
		RelPath:       RelPath(root, kind, ref, version),
		CreatedBy:     req.Actor.UserID,
		CreatedAt:     now,
	}

	// Readers see the artefact once its ledger entry lands.
	if err := s.publish(ctx, a); err != nil {
		s.report("commit", kind, "error")
		return nil, fmt.Errorf("commit %s: %w", ref.ID(), err)
	}

	if ref.Type == definition.TypePDE {
		s.applyDefinition(ctx, project, locked, root)
	}

	s.report("commit", kind, "created")
	s.logger.Info("Artefact committed",
		"project_id", project.ID, "kind", kind, "version", a.Version, "rel_path", a.RelPath)
	return a, nil
}

// publish stores the body and mirror of a, then adds its ledger entry.
// A failed step undoes the steps before it.
func (s *Service) publish(ctx context.Context, a *Artefact) error {
	if err := s.ledgers.PutArtefact(ctx, a); err != nil {
		return err
	}
	if err := s.mirror.Write(a.RelPath, a.ContentText); err != nil {
		s.discard(ctx, a, false)
		return err
	}
	err := s.ledgers.UpdateLedger(ctx, a.ProjectID, func(l *Ledger) error {
		l.Add(EntryOf(a))
		return nil
	})
	if err != nil {
		s.discard(ctx, a, true)
		return err
	}
	return nil
}

func (s *Service) discard(ctx context.Context, a *Artefact, mirrored bool) {
	if err := s.ledgers.DeleteArtefact(ctx, a.ProjectID, a.ID); err != nil {
		s.logger.Error("Failed to remove artefact after failed commit",
			"project_id", a.ProjectID, "artefact_id", a.ID, "error", err)
	}
	if !mirrored {
		return
	}
	if err := s.mirror.Remove(a.RelPath); err != nil {
		s.logger.Error("Failed to remove mirror after failed commit",
			"project_id", a.ProjectID, "rel_path", a.RelPath, "error", err)
	}
}

// applyDefinition copies committed project definition values onto the
// project record. The artefact stays committed if this fails.
func (s *Service) applyDefinition(ctx context.Context, project *directory.Project, locked map[string]string, root string) {
	p := *project
	if t := directory.PrimaryType(strings.ToUpper(locked[definition.KeyProjectType])); slices.Contains(directory.PrimaryTypes, t) {
		p.PrimaryType = t
	}
	if st := directory.ProjectStatus(strings.ToUpper(locked[definition.KeyStatus])); slices.Contains(directory.ProjectStatuses, st) {
		p.Status = st
	}
	if goal := strings.TrimSpace(locked[definition.KeyPrimaryGoal]); goal != "" {
		p.Purpose = goal
	}
	p.ArtefactRoot = root
	p.UpdatedAt = s.now()
	if err := s.projects.PutProject(ctx, &p); err != nil {
		s.logger.Warn("Failed to update project from definition", "project_id", p.ID, "error", err)
	}
}

// Accept makes a DRAFT artefact the accepted one of its kind, superseding
// the previous one, in a single ledger update. The ledger's accepted
// pointer is the project's only record of which artefact is current.
// Accepting the artefact that is already accepted is a no-op.
func (s *Service) Accept(ctx context.Context, req AcceptRequest) (*AcceptResult, error) {
	if !req.Actor.IsCommitter() {
		return nil, fmt.Errorf("%w: only committers accept artefacts", definition.ErrPermissionDenied)
	}
	now := s.now()

	var (
		entry Entry
		prev  string
		noop  bool
		kind  Kind
	)
	err := s.ledgers.UpdateLedger(ctx, req.ProjectID, func(l *Ledger) error {
		e, ok := l.Find(req.ArtefactID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, req.ArtefactID)
		}
		kind = e.Kind
		if e.Status == StatusAccepted && l.Accepted[e.Kind] == e.ID {
			entry, prev, noop = *e, e.ID, true
			return errUnchanged
		}
		if e.Status != StatusDraft {
			return &PreconditionError{Document: e.DocumentID, Err: ErrNotDraft}
		}

		prev = l.Accepted[e.Kind]
		for _, other := range l.Entries {
			if other.Kind == e.Kind && other.Status == StatusAccepted {
				other.Status = StatusSuperseded
				if prev == "" {
					prev = other.ID
				}
			}
		}
		e.Status = StatusAccepted
		e.AcceptedBy = req.Actor.UserID
		e.AcceptedAt = &now
		l.ensure()
		l.Accepted[e.Kind] = e.ID
		if e.Kind == KindCKO {
			l.DefinedBy = req.Actor.UserID
			l.DefinedAt = &now
		}
		entry, noop = *e, false
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		s.report("accept", kind, "error")
		return nil, fmt.Errorf("accept %s: %w", req.ArtefactID, err)
	}

	a, err := s.body(ctx, req.ProjectID, &entry)
	if err != nil {
		s.report("accept", kind, "error")
		return nil, fmt.Errorf("accept %s: %w", req.ArtefactID, err)
	}
	res := &AcceptResult{ProjectID: req.ProjectID, ArtefactID: a.ID, PreviousID: prev, Artefact: a}
	if noop {
		res.Status = AcceptNoop
		s.report("accept", kind, AcceptNoop)
		return res, nil
	}
	res.Status = AcceptAccepted
	s.report("accept", kind, AcceptAccepted)
	s.logger.Info("Artefact accepted",
		"project_id", req.ProjectID, "artefact_id", a.ID, "kind", kind, "previous", prev)
	return res, nil
}

// body loads the stored artefact for e with the ledger's state applied.
func (s *Service) body(ctx context.Context, projectID string, e *Entry) (*Artefact, error) {
	a, err := s.ledgers.Artefact(ctx, projectID, e.ID)
	if err != nil {
		return nil, err
	}
	e.apply(a)
	return a, nil
}

// Project returns a project with its definition pointer filled in from the
// ledger.
func (s *Service) Project(ctx context.Context, projectID string) (*directory.Project, error) {
	p, err := s.projects.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	l, err := s.ledgers.Ledger(ctx, projectID)
	if err != nil {
		return nil, err
	}
	p.DefinedCKO, p.DefinedBy, p.DefinedAt = "", "", nil
	if id, ok := l.Accepted[KindCKO]; ok {
		p.DefinedCKO, p.DefinedBy, p.DefinedAt = id, l.DefinedBy, l.DefinedAt
	}
	return p, nil
}

// List returns a project's artefacts of kind (all kinds when empty), ordered
// by kind then version.
func (s *Service) List(ctx context.Context, projectID string, kind Kind) ([]*Artefact, error) {
	l, err := s.ledgers.Ledger(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var entries []*Entry
	for _, e := range l.Entries {
		if kind == "" || e.Kind == kind {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b *Entry) int {
		if a.Kind != b.Kind {
			return slices.Index(Kinds, a.Kind) - slices.Index(Kinds, b.Kind)
		}
		return a.Version - b.Version
	})
	out := make([]*Artefact, 0, len(entries))
	for _, e := range entries {
		a, err := s.body(ctx, projectID, e)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Get returns one artefact.
func (s *Service) Get(ctx context.Context, projectID, id string) (*Artefact, error) {
	l, err := s.ledgers.Ledger(ctx, projectID)
	if err != nil {
		return nil, err
	}
	e, ok := l.Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.body(ctx, projectID, e)
}

// Current returns the accepted artefact of kind.
func (s *Service) Current(ctx context.Context, projectID string, kind Kind) (*Artefact, error) {
	l, err := s.ledgers.Ledger(ctx, projectID)
	if err != nil {
		return nil, err
	}
	e, ok := l.Current(kind)
	if !ok {
		return nil, fmt.Errorf("%w: no accepted %s", ErrNotFound, kind)
	}
	return s.body(ctx, projectID, e)
}
