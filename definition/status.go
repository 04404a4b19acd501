package definition

// Status is the lock state of one definition field.
type Status string

const (
	// StatusDraft is editable by any editor.
	StatusDraft Status = "DRAFT"
	// StatusProposed passed validation and waits for a committer.
	StatusProposed Status = "PROPOSED"
	// StatusLocked passed validation (or was override-locked) and is final
	// until reopened.
	StatusLocked Status = "PASS_LOCKED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusProposed, StatusLocked}

// IsValid returns true if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusProposed, StatusLocked:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo returns true if the status can move to target.
// Staying in the same status is not a transition.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusDraft:
		// Editors propose; committers lock directly.
		return target == StatusProposed || target == StatusLocked
	case StatusProposed:
		// Approved, reopened or blocked on re-validation.
		return target == StatusLocked || target == StatusDraft
	case StatusLocked:
		// Only back to draft: reopened, or edited by a committer.
		return target == StatusDraft
	}
	return false
}
