package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare verdict",
			content: `{"verdict":"PASS","issues":[]}`,
			want:    `{"verdict":"PASS","issues":[]}`,
		},
		{
			name:    "json fence after prose",
			content: "Here is my review.\n```json\n{\"verdict\":\"WEAK\",\"issues\":[\"no date\"]}\n```\nHope that helps.",
			want:    `{"verdict":"WEAK","issues":["no date"]}`,
		},
		{
			name:    "unlabelled fence",
			content: "```\n{\"verdict\":\"CONFLICT\"}\n```",
			want:    `{"verdict":"CONFLICT"}`,
		},
		{
			name:    "fence without object falls back to prose",
			content: "```text\nthinking\n```\nVerdict follows: {\"verdict\":\"PASS\"}",
			want:    `{"verdict":"PASS"}`,
		},
		{
			name: "comments and trailing commas",
			content: `{
  "verdict": "WEAK", // not concrete
  "questions": ["Which quarter?",],
}`,
			want: "{\n  \"verdict\": \"WEAK\",\n  \"questions\": [\"Which quarter?\"]\n}",
		},
		{
			name:    "nested hypotheses",
			content: `Draft: {"hypotheses":{"fields":{"chat.goal":"Plan {the} launch"}}} done`,
			want:    `{"hypotheses":{"fields":{"chat.goal":"Plan {the} launch"}}}`,
		},
		{
			name:    "no object",
			content: "I cannot evaluate this field.",
			want:    "",
		},
		{
			name:    "array only",
			content: `["PASS"]`,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.content))
		})
	}
}

func TestExtractJSON_SkipsUnbalancedBrace(t *testing.T) {
	content := `Use {scope as context. {"verdict":"PASS","suggested_revision":"a } in text"}`
	got := ExtractJSON(content)
	require.NotEmpty(t, got)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &parsed))
	assert.Equal(t, "a } in text", parsed["suggested_revision"])
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, "plain", StripFences("  plain \n"))
}

func TestStripLineComment(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`"verdict": "PASS", // fine`, `"verdict": "PASS",`},
		{`"root": "https://docs.example/x"`, `"root": "https://docs.example/x"`},
		{`"path": "projects//p1" // doubled`, `"path": "projects//p1"`},
		{`"quote": "say \"//\" twice"`, `"quote": "say \"//\" twice"`},
		{`// whole line`, ``},
		{`"plain": 1`, `"plain": 1`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripLineComment(tt.line), tt.line)
	}
}

// TestExtractJSON_ProseWrapped checks that any verdict object survives being
// embedded in free text, fenced or not.
func TestExtractJSON_ProseWrapped(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		verdict := rapid.SampledFrom([]string{"PASS", "WEAK", "CONFLICT"}).Draw(t, "verdict")
		issues := rapid.SliceOfN(rapid.StringMatching(`[a-z{} "\\/]{0,12}`), 0, 3).Draw(t, "issues")
		prefix := rapid.StringMatching(`[A-Za-z .:]{0,20}`).Draw(t, "prefix")
		fenced := rapid.Bool().Draw(t, "fenced")

		raw, err := json.Marshal(map[string]any{"verdict": verdict, "issues": issues})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body := string(raw)
		if fenced {
			body = "```json\n" + body + "\n```"
		}
		content := prefix + "\n" + body + "\nThat is all."

		got := ExtractJSON(content)
		var parsed struct {
			Verdict string   `json:"verdict"`
			Issues  []string `json:"issues"`
		}
		if err := json.Unmarshal([]byte(got), &parsed); err != nil {
			t.Fatalf("extracted %q is not JSON: %v", got, err)
		}
		if parsed.Verdict != verdict {
			t.Fatalf("verdict %q, want %q", parsed.Verdict, verdict)
		}
		if strings.Join(parsed.Issues, "|") != strings.Join(issues, "|") {
			t.Fatalf("issues %q, want %q", parsed.Issues, issues)
		}
	})
}
