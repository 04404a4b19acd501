// Package definition runs the field lock state machine shared by the
// project, chat and planning definition documents.
package definition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/workbench/directory"
	"github.com/c360studio/workbench/validator"
)

// FieldValidator classifies one field value.
type FieldValidator interface {
	Validate(ctx context.Context, in validator.Input) (*validator.Result, error)
}

// Mode selects how Run treats its inputs.
type Mode string

const (
	// ModeLoose stores values as drafts without validation.
	ModeLoose Mode = "LOOSE"
	// ModeControlled validates in order and locks until the first blocker.
	ModeControlled Mode = "CONTROLLED"
)

// ParseMode accepts any case.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if m != ModeLoose && m != ModeControlled {
		return "", fmt.Errorf("unknown run mode %q", s)
	}
	return m, nil
}

// Outcome is the result of a single-field operation. A blocked outcome is
// not an error: the field state was saved with the failing validation.
type Outcome struct {
	Field      *Field            `json:"field"`
	Blocked    bool              `json:"blocked"`
	NoOp       bool              `json:"noop,omitempty"`
	Message    string            `json:"message"`
	Validation *validator.Result `json:"validation,omitempty"`
}

// RunResult is the result of Run or Preflight.
type RunResult struct {
	Mode         Mode                `json:"mode"`
	OK           bool                `json:"ok"`
	Results      []*validator.Result `json:"results,omitempty"`
	FirstBlocker *validator.Result   `json:"first_blocker,omitempty"`
	Message      string              `json:"message,omitempty"`
	Locked       map[string]string   `json:"locked_fields"`
	Stored       []string            `json:"stored,omitempty"`
}

// DocumentState summarises a document's progress.
type DocumentState struct {
	Document          string         `json:"document"`
	Counts            map[Status]int `json:"counts"`
	Total             int            `json:"total"`
	NextUnlocked      string         `json:"next_unlocked,omitempty"`
	AllRequiredLocked bool           `json:"all_required_locked"`
	Missing           []string       `json:"missing,omitempty"`
}

// TransitionObserver is told about every status change the engine saves.
type TransitionObserver func(doc DocumentType, from, to Status)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTransitionObserver registers a status change callback.
func WithTransitionObserver(fn TransitionObserver) Option {
	return func(e *Engine) {
		e.observe = fn
	}
}

// WithSpec replaces the built-in spec for spec.Type.
func WithSpec(spec *DocumentSpec) Option {
	return func(e *Engine) {
		e.specs[spec.Type] = spec
	}
}

// Engine applies lock operations to definition documents.
type Engine struct {
	store     FieldStore
	validator FieldValidator
	specs     map[DocumentType]*DocumentSpec
	logger    *slog.Logger
	now       func() time.Time
	observe   TransitionObserver
}

// NewEngine creates an engine over store and v.
func NewEngine(store FieldStore, v FieldValidator, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		validator: v,
		specs:     make(map[DocumentType]*DocumentSpec),
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// document is a loaded document: its spec and every declared field.
type document struct {
	ref    DocumentRef
	spec   *DocumentSpec
	fields map[string]*Field
}

// load reads a document, creating any declared field that is not stored yet.
func (e *Engine) load(ctx context.Context, ref DocumentRef) (*document, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	spec, err := e.Spec(ref)
	if err != nil {
		return nil, err
	}
	stored, err := e.store.Fields(ctx, ref.ID())
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref.ID(), err)
	}

	doc := &document{ref: ref, spec: spec, fields: make(map[string]*Field, len(spec.Fields))}
	for _, f := range stored {
		doc.fields[f.Key] = f
	}
	for _, fs := range spec.Fields {
		f, ok := doc.fields[fs.Key]
		if ok {
			if f.Tier != fs.Tier {
				f.Tier = fs.Tier
				if err := e.put(ctx, f); err != nil {
					return nil, err
				}
			}
			continue
		}
		f = &Field{DocumentID: ref.ID(), Key: fs.Key, Tier: fs.Tier, Status: StatusDraft}
		if err := e.put(ctx, f); err != nil {
			return nil, err
		}
		doc.fields[fs.Key] = f
	}
	return doc, nil
}

func (d *document) field(key string) (*Field, FieldSpec, error) {
	fs, ok := d.spec.Field(key)
	if !ok {
		return nil, FieldSpec{}, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, d.spec.Type, key)
	}
	return d.fields[key], fs, nil
}

// lockedExcept returns the locked values of every field but key.
func (d *document) lockedExcept(key string) map[string]string {
	out := make(map[string]string)
	for k, f := range d.fields {
		if k == key || !f.IsLocked() {
			continue
		}
		if v := strings.TrimSpace(f.Value); v != "" {
			out[k] = v
		}
	}
	return out
}

func (d *document) ordered() []*Field {
	out := make([]*Field, 0, len(d.spec.Fields))
	for _, fs := range d.spec.Fields {
		out = append(out, d.fields[fs.Key])
	}
	return out
}

func (e *Engine) put(ctx context.Context, f *Field) error {
	f.UpdatedAt = e.now()
	if err := e.store.PutField(ctx, f); err != nil {
		return fmt.Errorf("save field %s: %w", f.Key, err)
	}
	return nil
}

// save persists f and reports a status change from prev.
func (e *Engine) save(ctx context.Context, doc *document, f *Field, prev Status) error {
	if err := e.put(ctx, f); err != nil {
		return err
	}
	if prev != f.Status {
		if !prev.CanTransitionTo(f.Status) {
			e.logger.Error("Unexpected field transition",
				"document", doc.ref.ID(), "field_key", f.Key, "from", prev, "to", f.Status)
		}
		if e.observe != nil {
			e.observe(doc.spec.Type, prev, f.Status)
		}
	}
	return nil
}

// check decides a verdict for value, by direct rule when the field has one.
// Blank values without a rule are WEAK without a model call.
func (e *Engine) check(ctx context.Context, doc *document, fs FieldSpec, value string, locked map[string]string) (*validator.Result, error) {
	if fs.Direct != nil {
		if res := fs.Direct(fs.Key, value); res != nil {
			return res, nil
		}
	}
	if strings.TrimSpace(value) == "" {
		return validator.Weak(fs.Key, "", EmptyValueIssue), nil
	}
	return e.validator.Validate(ctx, validator.Input{
		FieldKey:    fs.Key,
		Value:       value,
		Locked:      locked,
		Rubric:      fs.Rubric,
		Boilerplate: doc.spec.Boilerplate,
	})
}

// lockValue is the text a PASS result locks in.
func lockValue(fs FieldSpec, res *validator.Result, proposed string) string {
	v := res.Revision(proposed)
	if fs.Key == KeyArtefactRoot && v == "" {
		return SystemRoot
	}
	return v
}

func (e *Engine) edit(f *Field, actor directory.Actor, value string) {
	if value == f.Value {
		return
	}
	now := e.now()
	f.Value = value
	f.LastEditedBy = actor.UserID
	f.LastEditedAt = &now
}

func (e *Engine) lock(f *Field, actor directory.Actor) {
	now := e.now()
	f.Status = StatusLocked
	f.ProposedBy, f.ProposedAt = "", nil
	f.LockedBy, f.LockedAt = actor.UserID, &now
}

func (e *Engine) propose(f *Field, actor directory.Actor) {
	now := e.now()
	f.Status = StatusProposed
	f.ProposedBy, f.ProposedAt = actor.UserID, &now
	f.LockedBy, f.LockedAt = "", nil
}

func toDraft(f *Field) {
	f.Status = StatusDraft
	f.ProposedBy, f.ProposedAt = "", nil
	f.LockedBy, f.LockedAt = "", nil
}

// Propose validates value for key. A PASS locks the field for committers and
// proposes it for editors; anything else leaves it DRAFT and is reported as a
// blocked outcome.
func (e *Engine) Propose(ctx context.Context, ref DocumentRef, actor directory.Actor, key, value string) (*Outcome, error) {
	if !actor.CanEdit() {
		return nil, fmt.Errorf("%w: %s may not edit %s", ErrPermissionDenied, actor.UserID, ref.ID())
	}
	value = strings.TrimSpace(value)
	doc, err := e.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	f, fs, err := doc.field(key)
	if err != nil {
		return nil, err
	}
	if !actor.IsCommitter() && f.Status != StatusDraft {
		return nil, fmt.Errorf("%w: %s is %s", ErrPermissionDenied, key, f.Status)
	}

	res, err := e.check(ctx, doc, fs, value, doc.lockedExcept(key))
	if err != nil {
		return nil, fmt.Errorf("propose %s: %w", key, err)
	}

	prev := f.Status
	e.edit(f, actor, value)
	f.LastValidation = res

	if !res.Passed() {
		toDraft(f)
		if err := e.save(ctx, doc, f, prev); err != nil {
			return nil, err
		}
		e.logger.Info("Field blocked", "document", ref.ID(), "field_key", key, "verdict", res.Verdict)
		return &Outcome{Field: f, Blocked: true, Message: BlockedMessage(key, res), Validation: res}, nil
	}

	e.edit(f, actor, lockValue(fs, res, value))
	f.ValidatedValue = f.Value
	msg := "Lock proposed: " + key
	if actor.IsCommitter() {
		e.lock(f, actor)
		msg = "Field locked."
	} else {
		e.propose(f, actor)
	}
	if err := e.save(ctx, doc, f, prev); err != nil {
		return nil, err
	}
	e.logger.Info("Field passed", "document", ref.ID(), "field_key", key, "status", f.Status)
	return &Outcome{Field: f, Message: msg, Validation: res}, nil
}

// Approve locks a PROPOSED field. value, when non-blank, replaces the
// proposed text first. The field is re-validated unless its last PASS still
// applies to the current value.
func (e *Engine) Approve(ctx context.Context, ref DocumentRef, actor directory.Actor, key, value string) (*Outcome, error) {
	if !actor.IsCommitter() {
		return nil, fmt.Errorf("%w: only committers approve locks", ErrPermissionDenied)
	}
	doc, err := e.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	f, fs, err := doc.field(key)
	if err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)

	if f.IsLocked() && (value == "" || value == f.Value) {
		return &Outcome{Field: f, NoOp: true, Message: "Field already locked.", Validation: f.LastValidation}, nil
	}
	if f.Status != StatusProposed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotProposed, key, f.Status)
	}

	work := f.clone()
	if value != "" {
		e.edit(work, actor, value)
	}

	if !work.hasFreshPass() {
		res, err := e.check(ctx, doc, fs, work.Value, doc.lockedExcept(key))
		if err != nil {
			return nil, fmt.Errorf("approve %s: %w", key, err)
		}
		work.LastValidation = res
		if !res.Passed() {
			work.LockedBy, work.LockedAt = "", nil
			if err := e.save(ctx, doc, work, f.Status); err != nil {
				return nil, err
			}
			return &Outcome{Field: work, Blocked: true, Message: BlockedMessage(key, res), Validation: res}, nil
		}
		e.edit(work, actor, lockValue(fs, res, work.Value))
		work.ValidatedValue = work.Value
	}

	e.lock(work, actor)
	if err := e.save(ctx, doc, work, f.Status); err != nil {
		return nil, err
	}
	e.logger.Info("Field approved", "document", ref.ID(), "field_key", key, "locked_by", actor.UserID)
	return &Outcome{Field: work, Message: "Field locked.", Validation: work.LastValidation}, nil
}

// OverrideLock locks key without a model call. A blank value locks the
// current text.
func (e *Engine) OverrideLock(ctx context.Context, ref DocumentRef, actor directory.Actor, key, value string) (*Outcome, error) {
	if !actor.IsCommitter() {
		return nil, fmt.Errorf("%w: only committers override-lock a field", ErrPermissionDenied)
	}
	doc, err := e.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	f, _, err := doc.field(key)
	if err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		value = strings.TrimSpace(f.Value)
	}
	if value == "" {
		return nil, ErrEmptyValue
	}

	prev := f.Status
	e.edit(f, actor, value)
	f.LastValidation = validator.OverrideLock(key, value)
	f.ValidatedValue = value
	e.lock(f, actor)
	if err := e.save(ctx, doc, f, prev); err != nil {
		return nil, err
	}
	e.logger.Warn("Field override-locked", "document", ref.ID(), "field_key", key, "locked_by", actor.UserID)
	return &Outcome{Field: f, Message: "Field override-locked.", Validation: f.LastValidation}, nil
}

// Reopen returns a PROPOSED or PASS_LOCKED field to DRAFT.
func (e *Engine) Reopen(ctx context.Context, ref DocumentRef, actor directory.Actor, key string) (*Outcome, error) {
	if !actor.IsCommitter() {
		return nil, fmt.Errorf("%w: only committers reopen fields", ErrPermissionDenied)
	}
	doc, err := e.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	f, _, err := doc.field(key)
	if err != nil {
		return nil, err
	}
	if f.Status == StatusDraft {
		return &Outcome{Field: f, NoOp: true, Message: "Field is already draft."}, nil
	}
	prev := f.Status
	toDraft(f)
	if err := e.save(ctx, doc, f, prev); err != nil {
		return nil, err
	}
	return &Outcome{Field: f, Message: "Field reopened."}, nil
}

// Save applies bulk edits. Editors may only change DRAFT fields. A committer
// editing a PROPOSED field re-proposes it under their name; editing a
// PASS_LOCKED field unlocks it back to DRAFT. Nothing is written when any
// edit is refused.
func (e *Engine) Save(ctx context.Context, ref DocumentRef, actor directory.Actor, values map[string]string) ([]*Field, error) {
	return e.write(ctx, ref, actor, values, false)
}

// write applies value edits. Edited locked fields always drop to DRAFT;
// edited PROPOSED fields do too when toDrafts is set.
func (e *Engine) write(ctx context.Context, ref DocumentRef, actor directory.Actor, values map[string]string, toDrafts bool) ([]*Field, error) {
	if !actor.CanEdit() {
		return nil, fmt.Errorf("%w: %s may not edit %s", ErrPermissionDenied, actor.UserID, ref.ID())
	}
	doc, err := e.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	type change struct {
		f     *Field
		value string
	}
	var changes []change
	for _, fs := range doc.spec.Fields {
		raw, ok := values[fs.Key]
		if !ok {
			continue
		}
		value := strings.TrimSpace(raw)
		f := doc.fields[fs.Key]
		if value == f.Value {
			continue
		}
		if f.Status != StatusDraft && !actor.IsCommitter() {
			return nil, fmt.Errorf("%w: %s is %s", ErrPermissionDenied, fs.Key, f.Status)
		}
		changes = append(changes, change{f: f, value: value})
	}
	for key := range values {
		if _, ok := doc.spec.Field(key); !ok {
			return nil, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, doc.spec.Type, key)
		}
	}

	out := make([]*Field, 0, len(changes))
	for _, c := range changes {
		prev := c.f.Status
		e.edit(c.f, actor, c.value)
		switch {
		case prev == StatusLocked, prev == StatusProposed && toDrafts:
			toDraft(c.f)
		case prev == StatusProposed:
			e.propose(c.f, actor)
		}
		if err := e.save(ctx, doc, c.f, prev); err != nil {
			return out, err
		}
		out = append(out, c.f)
	}
	return out, nil
}

// Run drives a whole document. LOOSE stores the given non-blank values as
// drafts. CONTROLLED validates every field in declared order against the
// growing locked context, locks each PASS and stops at the first blocker,
// which is saved with its validation: a draft blocker becomes PROPOSED for
// review, a locked one whose new value failed is unlocked to DRAFT.
func (e *Engine) Run(ctx context.Context, ref DocumentRef, actor directory.Actor, inputs map[string]string, mode Mode) (*RunResult, error) {
	switch mode {
	case ModeLoose:
		values := make(map[string]string, len(inputs))
		for k, v := range inputs {
			if strings.TrimSpace(v) != "" {
				values[k] = v
			}
		}
		changed, err := e.write(ctx, ref, actor, values, true)
		if err != nil {
			return nil, err
		}
		stored := make([]string, len(changed))
		for i, f := range changed {
			stored[i] = f.Key
		}
		locked, err := e.LockedFields(ctx, ref)
		if err != nil {
			return nil, err
		}
		return &RunResult{Mode: mode, OK: true, Stored: stored, Locked: locked}, nil
	case ModeControlled:
		if !actor.IsCommitter() {
			return nil, fmt.Errorf("%w: only committers run controlled", ErrPermissionDenied)
		}
		return e.sequence(ctx, ref, actor, inputs, true)
	}
	return nil, fmt.Errorf("unknown run mode %q", mode)
}

// Preflight runs the controlled sequence without saving anything.
func (e *Engine) Preflight(ctx context.Context, ref DocumentRef, actor directory.Actor, inputs map[string]string) (*RunResult, error) {
	if !actor.CanEdit() {
		return nil, fmt.Errorf("%w: %s may not edit %s", ErrPermissionDenied, actor.UserID, ref.ID())
	}
	return e.sequence(ctx, ref, actor, inputs, false)
}

func (e *Engine) sequence(ctx context.Context, ref DocumentRef, actor directory.Actor, inputs map[string]string, persist bool) (*RunResult, error) {
	doc, err := e.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	locked := doc.lockedExcept("")
	out := &RunResult{Mode: ModeControlled, Locked: locked}

	for _, fs := range doc.spec.Fields {
		f := doc.fields[fs.Key]
		proposed := strings.TrimSpace(f.Value)
		if raw, ok := inputs[fs.Key]; ok {
			proposed = strings.TrimSpace(raw)
		}
		if !fs.Required && proposed == "" {
			continue
		}
		if f.IsLocked() && proposed == f.Value && f.LastValidation != nil {
			out.Results = append(out.Results, f.LastValidation)
			continue
		}

		prior := make(map[string]string, len(locked))
		for k, v := range locked {
			if k != fs.Key {
				prior[k] = v
			}
		}
		res, err := e.check(ctx, doc, fs, proposed, prior)
		if err != nil {
			return nil, fmt.Errorf("run %s at %s: %w", ref.ID(), fs.Key, err)
		}
		out.Results = append(out.Results, res)

		if !res.Passed() {
			out.FirstBlocker = res
			out.Message = BlockedMessage(fs.Key, res)
			if persist {
				prev := f.Status
				e.edit(f, actor, proposed)
				f.LastValidation = res
				switch prev {
				case StatusLocked:
					toDraft(f)
				case StatusDraft:
					e.propose(f, actor)
				}
				if err := e.save(ctx, doc, f, prev); err != nil {
					return nil, err
				}
			}
			break
		}

		value := lockValue(fs, res, proposed)
		locked[fs.Key] = value
		if persist {
			prev := f.Status
			e.edit(f, actor, value)
			f.LastValidation = res
			f.ValidatedValue = value
			e.lock(f, actor)
			if err := e.save(ctx, doc, f, prev); err != nil {
				return nil, err
			}
		}
	}

	out.OK = out.FirstBlocker == nil
	e.logger.Info("Controlled run finished",
		"document", ref.ID(), "persist", persist, "ok", out.OK, "validated", len(out.Results))
	return out, nil
}

// LockedFields returns key to value for every locked field with a value.
func (e *Engine) LockedFields(ctx context.Context, ref DocumentRef) (map[string]string, error) {
	doc, err := e.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return doc.lockedExcept(""), nil
}

// Fields returns every declared field in declared order.
func (e *Engine) Fields(ctx context.Context, ref DocumentRef) ([]*Field, error) {
	doc, err := e.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return doc.ordered(), nil
}

// State summarises lock progress.
func (e *Engine) State(ctx context.Context, ref DocumentRef) (*DocumentState, error) {
	doc, err := e.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	st := &DocumentState{
		Document: ref.ID(),
		Counts:   make(map[Status]int, len(Statuses)),
		Total:    len(doc.spec.Fields),
	}
	for _, s := range Statuses {
		st.Counts[s] = 0
	}
	for _, f := range doc.ordered() {
		st.Counts[f.Status]++
		if st.NextUnlocked == "" && !f.IsLocked() {
			st.NextUnlocked = f.Key
		}
	}
	_, st.Missing = Snapshot(doc.spec, doc.ordered())
	st.AllRequiredLocked = len(st.Missing) == 0
	return st, nil
}

// Spec returns the spec the engine applies to ref's document type.
func (e *Engine) Spec(ref DocumentRef) (*DocumentSpec, error) {
	if s, ok := e.specs[ref.Type]; ok {
		return s, nil
	}
	return SpecFor(ref.Type)
}
