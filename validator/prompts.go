package validator

import (
	"fmt"
	"sort"
	"strings"
)

const verdictContract = "Return OUTPUT as valid JSON only, matching this schema:\n" +
	"{\n" +
	"  \"%s\": \"string\",\n" +
	"  \"verdict\": \"PASS | WEAK | CONFLICT\",\n" +
	"  \"issues\": [\"string\"],\n" +
	"  \"suggested_revision\": \"string\",\n" +
	"  \"questions\": [\"string\"],\n" +
	"  \"confidence\": \"LOW | MEDIUM | HIGH\"\n" +
	"}\n" +
	"\n" +
	"Rules:\n" +
	"- No prose outside JSON in OUTPUT.\n" +
	"- issues: empty if PASS.\n" +
	"- questions: max 3, only if needed.\n" +
	"- suggested_revision: provide a best improved rewrite even if WEAK/CONFLICT.\n"

// PDEBoilerplate opens every project-definition validation.
var PDEBoilerplate = "You are validating one project-definition field for clarity and stability.\n" +
	"\n" +
	"Classify the field value as exactly one:\n" +
	"- PASS: clear, unambiguous, stable enough to lock.\n" +
	"- WEAK: vague or underspecified; needs refinement.\n" +
	"- CONFLICT: contradicts another locked field provided in context.\n" +
	"\n" +
	fmt.Sprintf(verdictContract, "field_key")

// CDEBoilerplate opens every chat-definition validation.
var CDEBoilerplate = "You are validating one chat-definition field for clarity and stability.\n" +
	"\n" +
	"Classify the field value as exactly one:\n" +
	"- PASS: clear, unambiguous, stable enough to lock.\n" +
	"- WEAK: vague or underspecified; needs refinement.\n" +
	"- CONFLICT: contradicts another locked field provided in context.\n" +
	"\n" +
	fmt.Sprintf(verdictContract, "field_key")

// WorkingMethod is appended to planning prompts.
const WorkingMethod = "Working method\n" +
	"Treat the listed sources as authoritative in this order: CKO -> Planning Purpose -> current draft -> other artefacts.\n" +
	"Do not invent project facts not present in the sources; ask if missing.\n" +
	"Work iteratively:\n" +
	"- Identify gaps or ambiguities.\n" +
	"- Ask concise clarification questions if needed.\n" +
	"- Propose a revised draft.\n" +
	"- Confirm with the user before finalising output.\n" +
	"Keep all suggestions consistent with the project's stated goals, constraints, and acceptance criteria.\n" +
	"\n" +
	"Output discipline\n" +
	"When the user indicates readiness, return only the required JSON structure.\n" +
	"Do not include explanations, markdown, or extra text in the final output.\n"

// PPDEBoilerplate opens every planning-stage block review.
var PPDEBoilerplate = "You are reviewing one PPDE block for clarity and completeness.\n" +
	"\n" +
	"Classify the block as exactly one:\n" +
	"- PASS: clear, complete enough to lock.\n" +
	"- WEAK: vague or underspecified; needs refinement.\n" +
	"- CONFLICT: internally inconsistent or conflicts with the CKO seed context.\n" +
	"\n" +
	fmt.Sprintf(verdictContract, "block_key") +
	"\n" +
	WorkingMethod

// RubricBlock renders the optional per-field rubric. Blank rubrics yield "".
func RubricBlock(rubric string) string {
	r := strings.TrimSpace(rubric)
	if r == "" {
		return ""
	}
	return "Field rubric (apply lightly):\n" + r + "\n"
}

// LockedFieldsBlock lists locked values sorted by key, skipping blanks.
func LockedFieldsBlock(locked map[string]string) string {
	if len(locked) == 0 {
		return "Locked fields context: (none)\n"
	}
	keys := make([]string, 0, len(locked))
	for k := range locked {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := []string{"Locked fields context:"}
	for _, k := range keys {
		v := strings.TrimSpace(locked[k])
		if v == "" {
			continue
		}
		lines = append(lines, "- "+k+": "+v)
	}
	if len(lines) == 1 {
		lines = append(lines, "(none)")
	}
	return strings.Join(lines, "\n") + "\n"
}

// UserText is the user message for one field.
func UserText(fieldKey, value string) string {
	return "Field key: " + fieldKey + "\n" + "Field value:\n" + value
}

// formatCorrection asks the model to restate its answer as JSON.
func formatCorrection(err error, previous string) string {
	if len(previous) > 500 {
		previous = previous[:500]
	}
	return fmt.Sprintf(
		"Your previous OUTPUT could not be used. Error: %s\n"+
			"Previous OUTPUT:\n%s\n\n"+
			"Respond again with ONLY one valid JSON object using the keys "+
			"field_key, verdict, issues, suggested_revision, questions, confidence.",
		err.Error(), previous,
	)
}
