// Package instructions compiles a resolved context into the system blocks
// placed ahead of every outbound LLM call.
package instructions

import (
	"fmt"
	"strings"

	"github.com/c360studio/workbench/axis"
	"github.com/c360studio/workbench/resolution"
)

// Block names that are not axis names.
const (
	BlockGovernance  = "LEVEL 2"
	BlockOverrides   = "OVERRIDES"
	BlockActiveState = "ACTIVE STATE"
	BlockChat        = "MANAGED CHAT"
)

// ActiveStatePreamble opens the closing block.
const ActiveStatePreamble = "Authoritative active state. Apply these settings over any earlier instruction."

var overridePolicy = []string{
	"OVERRIDES",
	"- Do not assume overrides.",
	"- Apply overrides only when explicitly instructed by the user.",
}

// Block is one system instruction block.
type Block struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Compiler turns effective contexts into instruction blocks.
type Compiler struct {
	registry *axis.Registry
}

// NewCompiler creates a compiler that falls back to the defaults of the
// registry's active catalog.
func NewCompiler(registry *axis.Registry) *Compiler {
	if registry == nil {
		registry = axis.NewRegistry(nil)
	}
	return &Compiler{registry: registry}
}

// Compile returns the blocks for ec in fixed order: governance (standard
// projects only), one block per axis, the override policy, then the active
// state summary. Output is byte-identical for identical input.
func (c *Compiler) Compile(ec *resolution.EffectiveContext) []Block {
	catalog := c.registry.Catalog()
	blocks := make([]Block, 0, len(axis.All)+3)

	if gov := strings.TrimSpace(ec.Governance); gov != "" {
		blocks = append(blocks, Block{Name: BlockGovernance, Text: BlockGovernance + "\n" + gov})
	}

	type applied struct {
		name  string
		level resolution.Level
	}
	state := make([]applied, 0, len(axis.All))

	for _, a := range axis.All {
		sel, ok := ec.Selection(a)
		p := sel.Preset
		level := sel.Level
		if !ok || !p.Known() {
			p = catalog.Default(a)
			level = resolution.LevelOrgDefault
		}
		blocks = append(blocks, Block{Name: a.String(), Text: p.Text()})
		state = append(state, applied{name: p.Name, level: level})
	}

	blocks = append(blocks, Block{Name: BlockOverrides, Text: strings.Join(overridePolicy, "\n")})

	var sb strings.Builder
	sb.WriteString(BlockActiveState)
	sb.WriteString("\n")
	sb.WriteString(ActiveStatePreamble)
	for i, a := range axis.All {
		fmt.Fprintf(&sb, "\n- %s: %s (%s)", a, state[i].name, state[i].level)
	}
	blocks = append(blocks, Block{Name: BlockActiveState, Text: sb.String()})

	return blocks
}

// SystemMessages returns the block texts in order.
func SystemMessages(blocks []Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Text
	}
	return out
}

// ChatDirectionBlock renders the managed-chat direction block from the locked
// fields of a chat definition. Constraints and non-goals may be separated by
// newlines or semicolons and are capped at the given counts.
func ChatDirectionBlock(locked map[string]string, maxConstraints, maxNonGoals int) string {
	goal := strings.TrimSpace(locked["chat.goal"])
	success := strings.TrimSpace(locked["chat.success"])
	constraints := splitItems(locked["chat.constraints"], maxConstraints)
	nonGoals := splitItems(locked["chat.non_goals"], maxNonGoals)

	var sb strings.Builder
	sb.WriteString("Managed Chat Direction:\n")
	if goal == "" {
		goal = "(not set)"
	}
	sb.WriteString("- Chat goal: " + goal + "\n")
	if success != "" {
		sb.WriteString("- Success: " + success + "\n")
	}
	if len(constraints) > 0 {
		sb.WriteString("- Constraints:\n")
		for _, item := range constraints {
			sb.WriteString("  - " + item + "\n")
		}
	}
	if len(nonGoals) > 0 {
		sb.WriteString("- Non-goals:\n")
		for _, item := range nonGoals {
			sb.WriteString("  - " + item + "\n")
		}
	}
	return sb.String()
}

func splitItems(s string, max int) []string {
	s = strings.ReplaceAll(strings.TrimSpace(s), ";", "\n")
	if s == "" || max <= 0 {
		return nil
	}
	var items []string
	for _, line := range strings.Split(s, "\n") {
		if t := strings.Trim(line, " \t-"); t != "" {
			items = append(items, t)
		}
		if len(items) == max {
			break
		}
	}
	return items
}
