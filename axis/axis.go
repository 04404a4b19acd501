// Package axis provides the catalog of instruction presets that shape every
// outbound LLM call. Each axis is an independent configuration dimension
// (tone, reasoning, approach, ...) with a small set of named presets, and each
// preset carries the literal instruction lines sent to the model.
package axis

import "strings"

// Axis identifies one configuration dimension.
type Axis string

const (
	// Tone controls how answers are phrased and paced.
	Tone Axis = "TONE"
	// Reasoning controls the epistemic stance (how claims are handled).
	Reasoning Axis = "REASONING"
	// Approach controls the cognitive style used to work a problem.
	Approach Axis = "APPROACH"
	// Control controls checkpointing and how much the system acts on its own.
	Control Axis = "CONTROL"
	// Language controls the response language and variant.
	Language Axis = "LANGUAGE"

	// Presentation is a legacy axis describing the target screen.
	Presentation Axis = "PRESENTATION"
	// Performance is a legacy axis describing chat length and drift tolerance.
	Performance Axis = "PERFORMANCE"
)

// Primary lists the primary axes in compile order.
var Primary = []Axis{Language, Reasoning, Approach, Tone, Control}

// Legacy lists axes kept for older profiles.
var Legacy = []Axis{Presentation, Performance}

// All lists every axis in the fixed order used by the instruction compiler.
var All = []Axis{Language, Reasoning, Approach, Tone, Presentation, Performance, Control}

// legacyAliases maps the category names used by older profiles onto the
// current axes.
var legacyAliases = map[string]Axis{
	"INTERACTION":   Tone,
	"EPISTEMIC":     Reasoning,
	"COGNITIVE":     Approach,
	"CHECKPOINTING": Control,
}

// IsValid reports whether a is a known axis.
func (a Axis) IsValid() bool {
	switch a {
	case Tone, Reasoning, Approach, Control, Language, Presentation, Performance:
		return true
	}
	return false
}

// IsLegacy reports whether a is only kept for older profiles.
func (a Axis) IsLegacy() bool {
	return a == Presentation || a == Performance
}

// String returns the axis name.
func (a Axis) String() string {
	return string(a)
}

// Label returns the lower-case display label ("tone").
func (a Axis) Label() string {
	return strings.ToLower(string(a))
}

// Parse normalises a raw axis key. It accepts axis names in any case, the
// legacy category names, and profile field names such as "cognitive_avatar".
// Returns false when the key names no axis.
func Parse(raw string) (Axis, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.TrimSuffix(key, "_AVATAR")
	if key == "" {
		return "", false
	}
	if a := Axis(key); a.IsValid() {
		return a, true
	}
	if a, ok := legacyAliases[key]; ok {
		return a, true
	}
	return "", false
}
