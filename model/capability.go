// Package model provides capability-based model selection for LLM calls.
// Callers name what they need (validating a field, drafting from a seed) and
// the registry resolves that to configured endpoints with fallback chains.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityValidating is for judging one definition field against its
	// rubric and the locked context. Needs strict instruction following.
	CapabilityValidating Capability = "validating"

	// CapabilityDrafting is for turning a free-text seed into draft fields.
	CapabilityDrafting Capability = "drafting"

	// CapabilityFast serves requests that name no known capability.
	CapabilityFast Capability = "fast"
)

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityValidating, CapabilityDrafting, CapabilityFast:
		return true
	}
	return false
}

func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	cap := Capability(s)
	if cap.IsValid() {
		return cap
	}
	return ""
}
