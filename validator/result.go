// Package validator asks a model whether one definition field is stable
// enough to lock and normalises the answer into a Result.
package validator

import (
	"strings"
)

// Verdict is the classification of one field value.
type Verdict string

const (
	// VerdictPass means the value is clear and stable enough to lock.
	VerdictPass Verdict = "PASS"
	// VerdictWeak means the value is vague or underspecified.
	VerdictWeak Verdict = "WEAK"
	// VerdictConflict means the value contradicts a locked field.
	VerdictConflict Verdict = "CONFLICT"
)

// IsValid returns true if the verdict is one of the known values.
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictPass, VerdictWeak, VerdictConflict:
		return true
	}
	return false
}

func (v Verdict) String() string {
	return string(v)
}

// ParseVerdict upper-cases s and maps anything unknown to WEAK.
func ParseVerdict(s string) Verdict {
	v := Verdict(strings.ToUpper(strings.TrimSpace(s)))
	if !v.IsValid() {
		return VerdictWeak
	}
	return v
}

// Confidence is the model's self-reported certainty.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// ParseConfidence upper-cases s and maps anything unknown to LOW.
func ParseConfidence(s string) Confidence {
	c := Confidence(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return c
	}
	return ConfidenceLow
}

// Result is a normalised validation outcome.
type Result struct {
	FieldKey          string     `json:"field_key"`
	Verdict           Verdict    `json:"verdict"`
	Issues            []string   `json:"issues"`
	SuggestedRevision string     `json:"suggested_revision"`
	Questions         []string   `json:"questions"`
	Confidence        Confidence `json:"confidence"`

	// Override is set when a committer locked the field without a model call.
	Override bool `json:"override,omitempty"`
	// Direct is set when a fixed rule decided the verdict.
	Direct bool `json:"direct,omitempty"`
	// Attempts counts generation calls, format retries included.
	Attempts int `json:"attempts,omitempty"`

	DebugSystemBlocks []string `json:"debug_system_blocks,omitempty"`
	DebugUserText     string   `json:"debug_user_text,omitempty"`
}

// Passed reports whether the verdict is PASS.
func (r *Result) Passed() bool {
	return r != nil && r.Verdict == VerdictPass
}

// FirstIssue returns the first issue, or "" when there are none.
func (r *Result) FirstIssue() string {
	if r == nil || len(r.Issues) == 0 {
		return ""
	}
	return r.Issues[0]
}

// Revision returns the suggested revision when present, otherwise fallback.
func (r *Result) Revision(fallback string) string {
	if r != nil && strings.TrimSpace(r.SuggestedRevision) != "" {
		return strings.TrimSpace(r.SuggestedRevision)
	}
	return fallback
}

// Pass builds a PASS result decided without a model.
func Pass(fieldKey, value string) *Result {
	return &Result{
		FieldKey:          fieldKey,
		Verdict:           VerdictPass,
		Issues:            []string{},
		SuggestedRevision: value,
		Questions:         []string{},
		Confidence:        ConfidenceHigh,
		Direct:            true,
	}
}

// Weak builds a WEAK result decided without a model.
func Weak(fieldKey, value string, issue string) *Result {
	return &Result{
		FieldKey:          fieldKey,
		Verdict:           VerdictWeak,
		Issues:            []string{issue},
		SuggestedRevision: value,
		Questions:         []string{},
		Confidence:        ConfidenceHigh,
		Direct:            true,
	}
}

// OverrideLock builds the result recorded when a committer bypasses validation.
func OverrideLock(fieldKey, value string) *Result {
	return &Result{
		FieldKey:          fieldKey,
		Verdict:           VerdictPass,
		Issues:            []string{},
		SuggestedRevision: value,
		Questions:         []string{},
		Confidence:        ConfidenceHigh,
		Override:          true,
	}
}
