package definition

import (
	"github.com/c360studio/workbench/validator"
)

// Field keys that other packages read by name.
const (
	KeySummary      = "canonical.summary"
	KeyProjectType  = "identity.project_type"
	KeyStatus       = "identity.project_status"
	KeyPrimaryGoal  = "intent.primary_goal"
	KeyArtefactRoot = "storage.artefact_root_ref"
	KeyNarrative    = "context.narrative"

	KeyChatGoal       = "chat.goal"
	KeyChatSuccess    = "chat.success"
	KeyChatConstraint = "chat.constraints"
	KeyChatNonGoals   = "chat.non_goals"
)

var pdeFields = []FieldSpec{
	{
		Key: KeySummary, Label: "Canonical summary", Tier: "L1-MUST", Required: true,
		Summary: "One sentence naming what the project is.",
		Rubric:  "One plain sentence of 15 words or fewer.\n- Names the thing, not the process.\n",
	},
	{
		Key: KeyProjectType, Label: "Project type", Tier: "L1-MUST", Required: true,
		Summary: "META, KNOWLEDGE, DELIVERY, RESEARCH or OPERATIONS.",
		Direct:  EnumRule("Project type", primaryTypeNames()),
	},
	{
		Key: KeyStatus, Label: "Project status", Tier: "L1-MUST", Required: true,
		Summary: "ACTIVE, PAUSED or ARCHIVED.",
		Direct:  EnumRule("Project status", projectStatusNames()),
	},
	{
		Key: KeyPrimaryGoal, Label: "Primary goal", Tier: "L1-MUST", Required: true,
		Summary: "The single outcome the project exists to deliver.",
	},
	{
		Key: "intent.success_criteria", Label: "Success criteria", Tier: "L1-MUST", Required: true,
		Summary: "How we know the project definition is complete.",
		Rubric: "Write observable completion tests.\n" +
			"- Prefer deliverables or decisions.\n" +
			"- Avoid fuzzy outcomes.\n" +
			"- Keep it consistent with the primary goal.\n",
	},
	{
		Key: "scope.in_scope", Label: "In-scope", Tier: "L1-MUST", Required: true,
		Summary: "What this project will cover.",
		Rubric: "List what is included.\n" +
			"- Bullet lists are fine.\n" +
			"- Keep it at project level, not a task list.\n",
	},
	{
		Key: "scope.out_of_scope", Label: "Out-of-scope", Tier: "L1-MUST", Required: true,
		Summary: "What we explicitly will not do.",
		Rubric: "List exclusions to prevent scope creep.\n" +
			"- Keep it concrete.\n" +
			"- Do not contradict in-scope.\n",
	},
	{
		Key: "scope.hard_constraints", Label: "Hard constraints", Tier: "L1-GOOD", Required: true,
		Summary: "Non-negotiable boundaries.",
		Rubric: "Constraints that must be respected.\n" +
			"- Examples: safety, compliance, time, tools, formats.\n" +
			"- If unknown, write DEFERRED.\n",
	},
	{
		Key: "authority.primary", Label: "Primary authorities", Tier: "L1-MUST", Required: true,
		Summary: "What sources win if there is disagreement.",
		Rubric: "Name the top authority sources.\n" +
			"- Example: School policy manual; legal requirements; sponsor intent.\n" +
			"- Be explicit about precedence.\n",
	},
	{
		Key: "authority.secondary", Label: "Secondary authorities", Tier: "L1-GOOD", Required: true,
		Summary: "Helpful sources that do not override primary authorities.",
		Rubric: "Name secondary references.\n" +
			"- Standards, guidelines, stakeholder input.\n" +
			"- Use DEFERRED if not decided yet.\n",
	},
	{
		Key: "authority.deviation_rules", Label: "Conflict handling rules", Tier: "L1-GOOD", Required: true,
		Summary: "What to do when instructions conflict with authorities or constraints.",
		Rubric: "Define conflict behaviour.\n" +
			"- Must flag the conflict.\n" +
			"- Must explain why.\n" +
			"- Must propose a labelled compliant alternative.\n" +
			"- Prefer a consistent label scheme.\n",
	},
	{
		Key: "posture.epistemic_constraints", Label: "Assumptions and uncertainties", Tier: "L1-GOOD", Required: true,
		Summary: "Assumptions, unknowns, and what must be labelled as provisional.",
		Rubric: "List what is not known or is assumed.\n" +
			"- Example: duration unknown; device constraints unknown.\n" +
			"- Anything provisional should be labelled.\n",
	},
	{
		Key: "posture.novelty_rules", Label: "Innovation rules", Tier: "L1-NICE", Required: true,
		Summary: "Whether we may introduce new ideas and how experimental to be.",
		Rubric: "Define allowed innovation.\n" +
			"- Conservative vs exploratory.\n" +
			"- If proposing new methods, label as experimental.\n",
	},
	{
		Key: KeyArtefactRoot, Label: "Artefact root reference", Tier: "L1-MUST", Required: true,
		Summary: "Where project artefacts live (logical reference).",
		Direct:  ArtefactRootRule,
	},
	{
		Key: KeyNarrative, Label: "Context narrative", Tier: "L1-MUST", Required: true,
		Summary: "A short reference description: what, why, who, how, where, when.",
		Rubric: "Write a concise narrative so others can understand the project.\n" +
			"- What: what it is.\n" +
			"- Why: purpose.\n" +
			"- Who: stakeholders.\n" +
			"- How: approach/rails.\n" +
			"- Where: environment/storage.\n" +
			"- When: timing assumptions.\n",
	},
}

var cdeFields = []FieldSpec{
	{
		Key: KeyChatGoal, Label: "Chat goal", Required: true,
		Rubric: "Aim: one sentence describing the single primary outcome of this chat.\n" +
			"PASS if:\n" +
			"- States a concrete objective (not just a topic).\n" +
			"- Is narrow enough to complete in this chat.\n" +
			"WEAK if:\n" +
			"- Too broad (multiple goals) or only a general topic.\n" +
			"CONFLICT if:\n" +
			"- Contradicts another locked chat field (constraints/non-goals/success).\n",
	},
	{
		Key: KeyChatSuccess, Label: "Success criteria", Required: true,
		Rubric: "Aim: define how we will know the chat achieved the goal.\n" +
			"PASS if:\n" +
			"- Provides an observable completion test (deliverable or decision).\n" +
			"- Matches the chat.goal.\n" +
			"WEAK if:\n" +
			"- Uses fuzzy outcomes without a check.\n" +
			"CONFLICT if:\n" +
			"- Success implies work excluded by non-goals/constraints.\n",
	},
	{
		Key: KeyChatConstraint, Label: "Constraints", Required: true,
		Rubric: "Aim: hard boundaries that must be respected.\n" +
			"PASS if:\n" +
			"- Lists up to 3 hard constraints, or 'none'.\n" +
			"- Constraints are actionable (time, format, tools, tone, assumptions, sources).\n" +
			"WEAK if:\n" +
			"- Too many items, or items are preferences not constraints.\n" +
			"CONFLICT if:\n" +
			"- Conflicts with chat.goal or makes success impossible.\n",
	},
	{
		Key: KeyChatNonGoals, Label: "Out of scope (non-goals)", Required: true,
		Rubric: "Aim: explicit exclusions to prevent scope creep.\n" +
			"PASS if:\n" +
			"- Lists up to 3 exclusions, or 'none'.\n" +
			"- Does not contradict chat.goal.\n" +
			"WEAK if:\n" +
			"- Uses vague exclusions without clarity.\n" +
			"CONFLICT if:\n" +
			"- Excludes the main work required to satisfy chat.goal/success.\n",
	},
}

var ppdeFields = []FieldSpec{
	{Key: "stage.title", Label: "Title", Required: true, Rubric: "A short noun phrase naming the stage."},
	{Key: "stage.purpose", Label: "Purpose", Required: true, Rubric: "One or two sentences on why the stage exists."},
	{Key: "stage.inputs", Label: "Inputs", Required: true, Rubric: "Material known at the start of the stage."},
	{Key: "stage.stage_process", Label: "Process", Required: true, Rubric: "1-3 sentences describing how inputs become outputs."},
	{Key: "stage.outputs", Label: "Outputs", Required: true, Rubric: "Concrete deliverables the stage hands on."},
	{Key: "stage.assumptions", Label: "Assumptions", Required: true, Rubric: "What must hold for the stage to work."},
	{Key: "stage.duration_estimate", Label: "Duration estimate"},
	{Key: "stage.risks_notes", Label: "Risks and notes"},
}

var specs = map[DocumentType]*DocumentSpec{
	TypePDE: {
		Type:         TypePDE,
		ArtefactKind: "CKO",
		Fields:       pdeFields,
		Boilerplate:  validator.PDEBoilerplate,
		DraftBoilerplate: validator.DraftBoilerplate("Project CKO field set", keysOf(pdeFields),
			"Keep canonical.summary to <=10 words.",
			"Use enum values where possible:\n"+
				"  - identity.project_type: META|KNOWLEDGE|DELIVERY|RESEARCH|OPERATIONS\n"+
				"  - identity.project_status: ACTIVE|PAUSED|ARCHIVED",
			"scope fields may be bullet lists in a single string."),
	},
	TypeCDE: {
		Type:         TypeCDE,
		ArtefactKind: "WKO",
		Fields:       cdeFields,
		Boilerplate:  validator.CDEBoilerplate,
		DraftBoilerplate: validator.DraftBoilerplate("chat definition", keysOf(cdeFields),
			"Keep goal/success to one sentence each.",
			"constraints/non_goals max 3 each, separated by semicolons."),
	},
	TypePPDE: {
		Type:         TypePPDE,
		ArtefactKind: "PDO",
		Fields:       ppdeFields,
		Boilerplate:  validator.PPDEBoilerplate,
		DraftBoilerplate: validator.DraftBoilerplate("planning stage", keysOf(ppdeFields),
			"stage.stage_process is 1-3 sentences describing how inputs become outputs.",
			"inputs describe material known at the start."),
	},
}

func keysOf(fields []FieldSpec) []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	return keys
}
