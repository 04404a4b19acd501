package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/workbench/llm"
)

// Draft failure reasons, reported verbatim to callers.
const (
	DraftInvalidJSON     = "Draft OUTPUT was not valid JSON."
	DraftMissingHyp      = "Draft JSON missing hypotheses."
	DraftMissingHypField = "Draft JSON missing hypotheses.fields."
	DraftEmptyPanes      = "Draft model returned empty panes."
)

// MaxSeedConstraints caps the user's free-text drafting constraints.
const MaxSeedConstraints = 400

// Style controls the wording of drafted fields.
type Style string

const (
	StyleConcise  Style = "concise"
	StyleBalanced Style = "balanced"
	StyleDetailed Style = "detailed"
)

// ParseStyle lower-cases s and falls back to balanced.
func ParseStyle(s string) Style {
	st := Style(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StyleConcise, StyleBalanced, StyleDetailed:
		return st
	}
	return StyleBalanced
}

// StyleBlock renders the writing-style system block.
func StyleBlock(style Style, constraints string) string {
	lines := []string{"Writing style controls:"}
	switch ParseStyle(string(style)) {
	case StyleConcise:
		lines = append(lines,
			"- Use short sentences.",
			"- One idea per sentence.",
			"- Avoid qualifiers and filler.",
			"- Avoid wording like high-level, robust, comprehensive, strategic.",
			"- Prefer concrete verbs and clear actions.",
		)
	case StyleDetailed:
		lines = append(lines,
			"- Use clear detail with practical depth.",
			"- Prefer concrete specifics over abstract terms.",
			"- Keep structure explicit and scannable.",
		)
	default:
		lines = append(lines,
			"- Use balanced clarity.",
			"- Avoid unnecessary qualifiers.",
			"- Keep language practical and direct.",
		)
	}
	if c := trimConstraints(constraints); c != "" {
		lines = append(lines, "- User constraints: "+c)
	}
	return strings.Join(lines, "\n")
}

func trimConstraints(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > MaxSeedConstraints {
		s = strings.TrimSpace(string(r[:MaxSeedConstraints]))
	}
	return s
}

// DraftBoilerplate renders the drafting contract for a field set.
func DraftBoilerplate(subject string, keys []string, rules ...string) string {
	var sb strings.Builder
	sb.WriteString("You turn free-form user intent into a draft " + subject + ".\n")
	sb.WriteString("Return JSON only, matching this schema:\n")
	sb.WriteString("{\n  \"hypotheses\": {\n    \"fields\": {\n")
	for i, k := range keys {
		sep := ","
		if i == len(keys)-1 {
			sep = ""
		}
		fmt.Fprintf(&sb, "      %q: \"string\"%s\n", k, sep)
	}
	sb.WriteString("    }\n  }\n}\n\nRules:\n")
	for _, r := range rules {
		sb.WriteString("- " + r + "\n")
	}
	sb.WriteString("- Do not invent facts; reflect uncertainty.\n")
	sb.WriteString("- If unknown, use an explicit placeholder like 'DEFERRED'.\n")
	return sb.String()
}

// DraftRequest is a seed to expand into field hypotheses.
type DraftRequest struct {
	Boilerplate string
	Seed        string
	Style       Style
	Constraints string
}

// Draft holds drafted field values keyed by field key.
type Draft struct {
	Fields map[string]string `json:"fields"`
	Raw    string            `json:"raw"`
}

// DraftError reports unusable drafting output. Reason is one of the Draft*
// constants.
type DraftError struct {
	Reason string
	Raw    string
}

func (e *DraftError) Error() string {
	return e.Reason
}

// Drafter turns seed text into field hypotheses.
type Drafter struct {
	gen  llm.Generator
	opts options
}

// NewDrafter creates a Drafter over gen.
func NewDrafter(gen llm.Generator, opts ...Option) *Drafter {
	return &Drafter{gen: gen, opts: newOptions(opts)}
}

// Draft asks the model for hypotheses. Unusable output is a *DraftError;
// generation failures are returned wrapped.
func (d *Drafter) Draft(ctx context.Context, req DraftRequest) (*Draft, error) {
	if d.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.timeout)
		defer cancel()
	}

	blocks := []string{req.Boilerplate, StyleBlock(req.Style, req.Constraints)}
	start := time.Now()
	panes, err := d.gen.Generate(ctx, "Seed intent:\n"+strings.TrimSpace(req.Seed), blocks)
	if err != nil {
		return nil, fmt.Errorf("draft: %w: %w", ErrGeneration, err)
	}
	d.opts.logger.Debug("Draft generated", "duration", time.Since(start))

	raw := ""
	var data map[string]any
	for _, pane := range panes.InOrder() {
		text := strings.TrimSpace(pane)
		if text == "" {
			continue
		}
		if raw == "" {
			raw = text
		}
		if obj := llm.ExtractJSON(text); obj != "" {
			if json.Unmarshal([]byte(obj), &data) == nil {
				raw = text
				break
			}
		}
	}

	if data == nil {
		if raw == "" {
			return nil, &DraftError{Reason: DraftEmptyPanes, Raw: paneDebug(panes)}
		}
		return nil, &DraftError{Reason: DraftInvalidJSON, Raw: raw}
	}
	hyp, ok := data["hypotheses"].(map[string]any)
	if !ok {
		return nil, &DraftError{Reason: DraftMissingHyp, Raw: raw}
	}
	fields, ok := hyp["fields"].(map[string]any)
	if !ok {
		return nil, &DraftError{Reason: DraftMissingHypField, Raw: raw}
	}

	out := make(map[string]string, len(fields))
	for k, v := range fields {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(draftValue(v))
	}
	return &Draft{Fields: out, Raw: raw}, nil
}

// draftValue flattens list values into a semicolon-separated line.
func draftValue(v any) string {
	if items, ok := v.([]any); ok {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if s := strings.TrimSpace(stringOf(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return stringOf(v)
}

func paneDebug(p llm.Panes) string {
	m := map[string]string{
		"output":    p.Output,
		"answer":    p.Answer,
		"reasoning": p.Reasoning,
		"key_info":  p.KeyInfo,
		"visuals":   p.Visuals,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "PANE_DEBUG: unavailable"
	}
	return "PANE_DEBUG:\n" + string(data)
}
