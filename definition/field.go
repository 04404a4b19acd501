package definition

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/c360studio/workbench/validator"
)

var (
	// ErrEmptyValue is returned when a blank value would be override-locked.
	ErrEmptyValue = errors.New("value is empty")
	// ErrPermissionDenied is returned when the actor lacks the authority.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotProposed is returned when approving a field that is not PROPOSED.
	ErrNotProposed = errors.New("field is not proposed")
	// ErrUnknownField is returned for keys the document does not declare.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownDocument is returned for unknown document types.
	ErrUnknownDocument = errors.New("unknown document type")
)

// EmptyValueIssue is the issue reported for a blank proposal.
const EmptyValueIssue = "empty value"

// Field is the persisted state of one definition field.
type Field struct {
	DocumentID string `json:"document_id"`
	Key        string `json:"key"`
	Tier       string `json:"tier,omitempty"`
	Value      string `json:"value"`
	Status     Status `json:"status"`

	LastValidation *validator.Result `json:"last_validation,omitempty"`
	// ValidatedValue is the value the last PASS verdict applied to. A PASS on
	// a different value is stale.
	ValidatedValue string `json:"validated_value,omitempty"`

	ProposedBy   string     `json:"proposed_by,omitempty"`
	ProposedAt   *time.Time `json:"proposed_at,omitempty"`
	LockedBy     string     `json:"locked_by,omitempty"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	LastEditedBy string     `json:"last_edited_by,omitempty"`
	LastEditedAt *time.Time `json:"last_edited_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsLocked reports whether the field is PASS_LOCKED.
func (f *Field) IsLocked() bool {
	return f.Status == StatusLocked
}

// hasFreshPass reports whether the last validation passed on the current value.
func (f *Field) hasFreshPass() bool {
	return f.LastValidation.Passed() && f.ValidatedValue == f.Value
}

func (f *Field) clone() *Field {
	c := *f
	return &c
}

// FieldStore persists definition fields. Fields are never deleted.
type FieldStore interface {
	// Fields returns every stored field of a document, in any order.
	Fields(ctx context.Context, documentID string) ([]*Field, error)
	// PutField creates or replaces one field.
	PutField(ctx context.Context, f *Field) error
}

// Snapshot returns the locked value of every field that is PASS_LOCKED with a
// non-blank value, and the required keys that are not, in declared order.
func Snapshot(spec *DocumentSpec, fields []*Field) (locked map[string]string, missing []string) {
	byKey := make(map[string]*Field, len(fields))
	for _, f := range fields {
		byKey[f.Key] = f
	}
	locked = make(map[string]string)
	for _, fs := range spec.Fields {
		f := byKey[fs.Key]
		if f != nil && f.IsLocked() && strings.TrimSpace(f.Value) != "" {
			locked[fs.Key] = strings.TrimSpace(f.Value)
			continue
		}
		if fs.Required {
			missing = append(missing, fs.Key)
		}
	}
	return locked, missing
}

// BlockedMessage renders the feedback line for a non-PASS verdict.
func BlockedMessage(key string, res *validator.Result) string {
	verdict := string(validator.VerdictWeak)
	if res != nil && res.Verdict != "" {
		verdict = string(res.Verdict)
	}
	msg := "Blocked at: " + key + " (" + verdict + ")"
	if issue := strings.TrimSpace(res.FirstIssue()); issue != "" {
		msg += " - " + issue
	}
	return msg
}
