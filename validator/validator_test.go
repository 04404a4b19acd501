package validator_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/c360studio/workbench/llm"
	"github.com/c360studio/workbench/llm/testutil"
	"github.com/c360studio/workbench/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_SystemBlocksAndUserText(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Respond: testutil.PassAll()}
	v := validator.New(gen)

	res, err := v.Validate(context.Background(), validator.Input{
		FieldKey: "scope.in_scope",
		Value:    "  Build the ingest pipeline.  ",
		Locked: map[string]string{
			"intent.primary_goal": "Ship v1",
			"canonical.summary":   "A data tool.",
			"blank":               "  ",
		},
		Rubric: "Must name concrete deliverables.",
	})
	require.NoError(t, err)
	assert.Equal(t, validator.VerdictPass, res.Verdict)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Field key: scope.in_scope\nField value:\nBuild the ingest pipeline.", calls[0].UserText)
	require.Len(t, calls[0].SystemBlocks, 3)
	assert.True(t, strings.HasPrefix(calls[0].SystemBlocks[0],
		"You are validating one project-definition field for clarity and stability."))
	assert.Equal(t, "Field rubric (apply lightly):\nMust name concrete deliverables.\n", calls[0].SystemBlocks[1])
	assert.Equal(t,
		"Locked fields context:\n- canonical.summary: A data tool.\n- intent.primary_goal: Ship v1\n",
		calls[0].SystemBlocks[2])

	assert.Equal(t, calls[0].SystemBlocks, res.DebugSystemBlocks)
	assert.Equal(t, calls[0].UserText, res.DebugUserText)
}

func TestValidate_NoRubricNoLocked(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Respond: testutil.PassAll()}
	_, err := validator.New(gen).Validate(context.Background(), validator.Input{
		FieldKey:    "chat.goal",
		Value:       "Decide the venue.",
		Rubric:      "   ",
		Boilerplate: validator.CDEBoilerplate,
	})
	require.NoError(t, err)

	blocks := gen.Calls()[0].SystemBlocks
	require.Len(t, blocks, 2)
	assert.Equal(t, validator.CDEBoilerplate, blocks[0])
	assert.Equal(t, "Locked fields context: (none)\n", blocks[1])
}

func TestLockedFieldsBlock_AllBlank(t *testing.T) {
	assert.Equal(t, "Locked fields context:\n(none)\n",
		validator.LockedFieldsBlock(map[string]string{"a": "", "b": " "}))
}

func TestValidate_Normalisation(t *testing.T) {
	tests := []struct {
		name   string
		output string
		check  func(t *testing.T, r *validator.Result)
	}{
		{
			name:   "lower-case verdict",
			output: `{"verdict":"conflict","issues":["clashes with scope"],"confidence":"medium"}`,
			check: func(t *testing.T, r *validator.Result) {
				assert.Equal(t, validator.VerdictConflict, r.Verdict)
				assert.Equal(t, validator.ConfidenceMedium, r.Confidence)
				assert.Equal(t, []string{"clashes with scope"}, r.Issues)
				assert.Equal(t, "k", r.FieldKey)
			},
		},
		{
			name:   "unknown verdict and confidence",
			output: `{"verdict":"MAYBE","confidence":"sure"}`,
			check: func(t *testing.T, r *validator.Result) {
				assert.Equal(t, validator.VerdictWeak, r.Verdict)
				assert.Equal(t, validator.ConfidenceLow, r.Confidence)
				assert.Empty(t, r.Issues)
			},
		},
		{
			name:   "pass clears issues",
			output: `{"verdict":"PASS","issues":["leftover"],"suggested_revision":"Better."}`,
			check: func(t *testing.T, r *validator.Result) {
				assert.Equal(t, validator.VerdictPass, r.Verdict)
				assert.Empty(t, r.Issues)
				assert.Equal(t, "Better.", r.SuggestedRevision)
			},
		},
		{
			name:   "questions capped and blanks dropped",
			output: `{"verdict":"WEAK","issues":["", "vague", "  "],"questions":["a","","b","c","d"]}`,
			check: func(t *testing.T, r *validator.Result) {
				assert.Equal(t, []string{"vague"}, r.Issues)
				assert.Equal(t, []string{"a", "b", "c"}, r.Questions)
			},
		},
		{
			name:   "fenced with trailing comma",
			output: "Here you go:\n```json\n{\"field_key\":\"other\",\"verdict\":\"PASS\",}\n```",
			check: func(t *testing.T, r *validator.Result) {
				assert.Equal(t, validator.VerdictPass, r.Verdict)
				assert.Equal(t, "other", r.FieldKey)
			},
		},
		{
			name:   "block key accepted",
			output: `{"block_key":"stage.title","verdict":"PASS"}`,
			check: func(t *testing.T, r *validator.Result) {
				assert.Equal(t, "stage.title", r.FieldKey)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &testutil.ScriptedGenerator{Panes: []llm.Panes{{Output: tt.output}}}
			res, err := validator.New(gen).Validate(context.Background(), validator.Input{FieldKey: "k", Value: "v"})
			require.NoError(t, err)
			tt.check(t, res)
		})
	}
}

func TestValidate_LaterPaneWins(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Panes: []llm.Panes{{
		Output:    "I think it is fine.",
		Reasoning: `{"verdict":"PASS"}`,
		Answer:    "no json here either",
	}}}
	res, err := validator.New(gen).Validate(context.Background(), validator.Input{FieldKey: "k", Value: "v"})
	require.NoError(t, err)
	assert.Equal(t, validator.VerdictPass, res.Verdict)
}

func TestValidate_FormatRetry(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Panes: []llm.Panes{
		{Output: "sorry, no json"},
		{Output: `{"verdict":"PASS"}`},
	}}
	res, err := validator.New(gen, validator.WithFormatRetries(1)).
		Validate(context.Background(), validator.Input{FieldKey: "k", Value: "v"})
	require.NoError(t, err)
	assert.Equal(t, validator.VerdictPass, res.Verdict)
	assert.Equal(t, 2, res.Attempts)

	calls := gen.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].UserText, "Previous OUTPUT:\nsorry, no json")
	assert.True(t, strings.HasPrefix(calls[1].UserText, "Field key: k\n"))
	// The debug text is the original prompt, not the correction.
	assert.Equal(t, "Field key: k\nField value:\nv", res.DebugUserText)
}

func TestValidate_UnparseableAfterRetries(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Panes: []llm.Panes{{Output: "plain prose"}}}
	res, err := validator.New(gen, validator.WithFormatRetries(2)).
		Validate(context.Background(), validator.Input{FieldKey: "k", Value: "v"})
	require.NoError(t, err)

	assert.Len(t, gen.Calls(), 3)
	assert.Equal(t, validator.VerdictWeak, res.Verdict)
	assert.Equal(t, []string{validator.InvalidJSONIssue}, res.Issues)
	assert.Equal(t, "plain prose", res.SuggestedRevision)
	assert.Equal(t, []string{validator.RetryQuestion}, res.Questions)
	assert.Equal(t, validator.ConfidenceLow, res.Confidence)
}

func TestValidate_NonObjectJSON(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Panes: []llm.Panes{{Output: `["PASS"]`}}}
	res, err := validator.New(gen, validator.WithFormatRetries(0)).
		Validate(context.Background(), validator.Input{FieldKey: "k", Value: "v"})
	require.NoError(t, err)
	assert.Equal(t, validator.VerdictWeak, res.Verdict)
	assert.Equal(t, []string{validator.NotObjectIssue}, res.Issues)
	assert.Empty(t, res.SuggestedRevision)
}

func TestValidate_EmptyPanes(t *testing.T) {
	gen := &testutil.ScriptedGenerator{}
	res, err := validator.New(gen, validator.WithFormatRetries(0)).
		Validate(context.Background(), validator.Input{FieldKey: "k", Value: "v"})
	require.NoError(t, err)
	assert.Equal(t, []string{validator.InvalidJSONIssue}, res.Issues)
	assert.Empty(t, res.SuggestedRevision)
}

func TestValidate_TransportError(t *testing.T) {
	cause := errors.New("all endpoints failed")
	var observed error
	gen := &testutil.ScriptedGenerator{Err: cause}
	v := validator.New(gen, validator.WithObserver(func(_ string, _ validator.Verdict, _ time.Duration, err error) {
		observed = err
	}))

	res, err := v.Validate(context.Background(), validator.Input{FieldKey: "k", Value: "v"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, validator.ErrGeneration)
	assert.ErrorIs(t, observed, cause)
}

func TestValidate_Timeout(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Respond: func(string, []string) (llm.Panes, error) {
		time.Sleep(30 * time.Millisecond)
		return llm.Panes{}, context.DeadlineExceeded
	}}
	_, err := validator.New(gen, validator.WithTimeout(5*time.Millisecond)).
		Validate(context.Background(), validator.Input{FieldKey: "k", Value: "v"})
	require.Error(t, err)
	assert.True(t, llm.IsTimeout(err))
}

func TestValidate_CanonicalSummary(t *testing.T) {
	long := "This project builds a small and careful tool that turns messy notes into clean structured project records"

	t.Run("too long forces weak", func(t *testing.T) {
		gen := &testutil.ScriptedGenerator{Panes: []llm.Panes{{Output: `{"verdict":"PASS","suggested_revision":""}`}}}
		res, err := validator.New(gen).Validate(context.Background(), validator.Input{
			FieldKey: validator.CanonicalSummaryKey,
			Value:    long,
		})
		require.NoError(t, err)
		assert.Equal(t, validator.VerdictWeak, res.Verdict)
		assert.Equal(t, []string{validator.SummaryIssue}, res.Issues)
		assert.Equal(t, "This project builds a small and careful tool that turns messy notes into clean structured.",
			res.SuggestedRevision)
		assert.Len(t, strings.Fields(res.SuggestedRevision), validator.SummaryWordLimit)
	})

	t.Run("short keeps verdict and normalises revision", func(t *testing.T) {
		gen := &testutil.ScriptedGenerator{Panes: []llm.Panes{{
			Output: `{"verdict":"PASS","suggested_revision":"Turns notes\ninto records!"}`,
		}}}
		res, err := validator.New(gen).Validate(context.Background(), validator.Input{
			FieldKey: validator.CanonicalSummaryKey,
			Value:    "Turns notes into records",
		})
		require.NoError(t, err)
		assert.Equal(t, validator.VerdictPass, res.Verdict)
		assert.Equal(t, "Turns notes into records.", res.SuggestedRevision)
	})

	t.Run("issue not duplicated", func(t *testing.T) {
		gen := &testutil.ScriptedGenerator{Panes: []llm.Panes{{
			Output: `{"verdict":"WEAK","issues":["` + validator.SummaryIssue + `"]}`,
		}}}
		res, err := validator.New(gen).Validate(context.Background(), validator.Input{
			FieldKey: validator.CanonicalSummaryKey,
			Value:    long,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{validator.SummaryIssue}, res.Issues)
	})
}

func TestNormaliseSummary(t *testing.T) {
	assert.Equal(t, "", validator.NormaliseSummary("  \n "))
	assert.Equal(t, "It's done.", validator.NormaliseSummary("It's done!!!"))
	assert.Equal(t, "One two.", validator.NormaliseSummary("One,\r\ntwo"))
}

func TestParseVerdict(t *testing.T) {
	assert.Equal(t, validator.VerdictPass, validator.ParseVerdict(" pass "))
	assert.Equal(t, validator.VerdictWeak, validator.ParseVerdict(""))
	assert.Equal(t, validator.VerdictWeak, validator.ParseVerdict("ok"))
}

func TestResultHelpers(t *testing.T) {
	var nilRes *validator.Result
	assert.False(t, nilRes.Passed())
	assert.Equal(t, "", nilRes.FirstIssue())
	assert.Equal(t, "fallback", nilRes.Revision("fallback"))

	r := validator.Weak("k", "v", "too vague")
	assert.Equal(t, "too vague", r.FirstIssue())
	assert.True(t, r.Direct)
	assert.True(t, validator.OverrideLock("k", "v").Override)
	assert.True(t, validator.Pass("k", "v").Passed())
}
