package artefact

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360studio/workbench/definition"
)

// Header is the identifying block printed at the top of a mirror.
type Header struct {
	ProjectID   string
	ProjectName string
	Owner       string
	DocumentID  string
	Version     int
	Date        string
}

const rule = "# ============================================================"

func block(title, body string) string {
	var b strings.Builder
	b.WriteString("# ------------------------------------------------------------\n")
	b.WriteString("# " + title + "\n")
	b.WriteString("# ------------------------------------------------------------\n")
	if strings.TrimSpace(body) == "" {
		b.WriteString("# (not set)\n")
		return b.String()
	}
	for _, line := range strings.Split(body, "\n") {
		b.WriteString(strings.TrimRight("# "+line, " \t") + "\n")
	}
	return b.String()
}

// RenderCKO renders the plain-text project definition.
func RenderCKO(h Header, locked map[string]string) string {
	g := func(k string) string { return strings.TrimSpace(locked[k]) }

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("# PROJECT CKO - CANONICAL DEFINITION\n")
	b.WriteString("# This file governs the creation, approval, dispute, and retirement of organisational anchor points.\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "# CKO ID: CKO-PROJECT-%s\n", h.ProjectID)
	fmt.Fprintf(&b, "# Version: %d\n", h.Version)
	b.WriteString("# Project Name: " + strings.TrimSpace(h.ProjectName) + "\n")
	b.WriteString("# Owner: " + strings.TrimSpace(h.Owner) + "\n")
	b.WriteString("# Date: " + h.Date + "\n")
	b.WriteString("# Status: DRAFT\n\n")

	b.WriteString(block("CANONICAL SUMMARY", g(definition.KeySummary)))
	b.WriteString(block("IDENTITY (WHAT)",
		"Project Type: "+g(definition.KeyProjectType)+"\nProject Status: "+g(definition.KeyStatus)))
	b.WriteString(block("INTENT (WHY)",
		"Primary Goal:\n"+g(definition.KeyPrimaryGoal)+
			"\n\nSuccess / Acceptance Criteria:\n"+g("intent.success_criteria")))
	b.WriteString(block("SCOPE (BOUNDARIES)",
		"In-Scope:\n"+g("scope.in_scope")+
			"\n\nOut-of-Scope:\n"+g("scope.out_of_scope")+
			"\n\nHard Constraints:\n"+g("scope.hard_constraints")))
	b.WriteString(block("AUTHORITY MODEL (TRUTH RESOLUTION)",
		"Primary Authorities:\n"+g("authority.primary")+
			"\n\nSecondary Authorities:\n"+g("authority.secondary")+
			"\n\nDeviation Rules:\n"+g("authority.deviation_rules")))
	b.WriteString(block("INTERPRETIVE / OPERATING POSTURE (HOW)",
		"Epistemic Constraints:\n"+g("posture.epistemic_constraints")+
			"\n\nNovelty Rules:\n"+g("posture.novelty_rules")))
	b.WriteString(block("STORAGE & DURABILITY (WHERE TRUTH LIVES)",
		"Artefact Root:\n"+g(definition.KeyArtefactRoot)))
	b.WriteString(block("CANONICAL CONTEXT (REFERENCE NARRATIVE)", g(definition.KeyNarrative)))
	b.WriteString(block("STABILITY DECLARATION",
		"This CKO is:\n- Internally consistent\n- Governed by the stated authority model\n"+
			"- Safe to use as canonical project truth\n\n"+
			"Any deviation must be deliberate, versioned, and documented."))
	b.WriteString(rule + "\n")
	b.WriteString("# END PROJECT CKO\n")
	b.WriteString(rule + "\n")
	return b.String()
}

// RenderSections renders any other kind as one block per declared field.
func RenderSections(kind Kind, h Header, spec *definition.DocumentSpec, locked map[string]string) string {
	var b strings.Builder
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "# %s - %s\n", kind, h.DocumentID)
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "# Version: %d\n", h.Version)
	b.WriteString("# Project Name: " + strings.TrimSpace(h.ProjectName) + "\n")
	b.WriteString("# Date: " + h.Date + "\n")
	b.WriteString("# Status: DRAFT\n\n")
	for _, fs := range spec.Fields {
		v, ok := locked[fs.Key]
		if !ok && !fs.Required {
			continue
		}
		label := fs.Label
		if label == "" {
			label = fs.Key
		}
		b.WriteString(block(strings.ToUpper(label), v))
	}
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "# END %s\n", kind)
	b.WriteString(rule + "\n")
	return b.String()
}

// Render picks the layout for kind.
func Render(kind Kind, h Header, spec *definition.DocumentSpec, locked map[string]string) string {
	if kind == KindCKO {
		return RenderCKO(h, locked)
	}
	return RenderSections(kind, h, spec, locked)
}

// ckoSections maps project definition keys onto CKO payload sections.
var ckoSections = []struct{ key, section string }{
	{definition.KeySummary, "canonical_summary"},
	{"scope.in_scope", "scope"},
	{"scope.out_of_scope", "scope"},
	{"scope.hard_constraints", "scope"},
	{definition.KeyPrimaryGoal, "statement"},
	{"intent.success_criteria", "supporting_basis"},
	{"authority.primary", "supporting_basis"},
	{"authority.secondary", "supporting_basis"},
	{"authority.deviation_rules", "supporting_basis"},
	{definition.KeyNarrative, "supporting_basis"},
	{"posture.epistemic_constraints", "assumptions"},
	{"posture.novelty_rules", "assumptions"},
}

// Sections groups locked CKO fields into the canonical payload sections.
func Sections(locked map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range ckoSections {
		v := strings.TrimSpace(locked[m.key])
		if v == "" {
			continue
		}
		if prev := out[m.section]; prev != "" {
			out[m.section] = prev + "\n" + v
		} else {
			out[m.section] = v
		}
	}
	return out
}

type snapshot struct {
	Kind       Kind              `json:"kind"`
	Version    int               `json:"version"`
	ProjectID  string            `json:"project_id"`
	DocumentID string            `json:"document_id"`
	Fields     map[string]string `json:"fields"`
	Sections   map[string]string `json:"sections,omitempty"`
}

// SnapshotJSON renders the structured snapshot.
func SnapshotJSON(kind Kind, h Header, locked map[string]string) (string, error) {
	s := snapshot{
		Kind:       kind,
		Version:    h.Version,
		ProjectID:  h.ProjectID,
		DocumentID: h.DocumentID,
		Fields:     locked,
	}
	if kind == KindCKO {
		s.Sections = Sections(locked)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}
