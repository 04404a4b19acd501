package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/workbench/llm"
)

const (
	// CanonicalSummaryKey is held to the one-sentence rule.
	CanonicalSummaryKey = "canonical.summary"
	// SummaryWordLimit is the most words a canonical summary may carry.
	SummaryWordLimit = 15
	// SummaryIssue is added when a canonical summary is too long.
	SummaryIssue = "Canonical summary must be one sentence and 15 words or fewer."

	// InvalidJSONIssue is reported when no JSON object could be recovered.
	InvalidJSONIssue = "OUTPUT was not valid JSON."
	// NotObjectIssue is reported when the output was JSON but not an object.
	NotObjectIssue = "OUTPUT JSON was not an object."
	// RetryQuestion accompanies both unusable-output results.
	RetryQuestion = "Re-run verify; if persists, check prompt/contract."

	maxQuestions = 3
)

// ErrGeneration wraps every failure to get output from the model at all, as
// opposed to output that could not be used.
var ErrGeneration = errors.New("model generation failed")

var (
	errNoJSON    = errors.New("no JSON object found in output")
	errNotObject = errors.New("output JSON is not an object")

	wordPattern = regexp.MustCompile(`[A-Za-z0-9']+`)
)

// Input is one field to validate.
type Input struct {
	FieldKey    string
	Value       string
	Locked      map[string]string
	Rubric      string
	Boilerplate string
}

// Observer receives the outcome of every Validate call.
type Observer func(fieldKey string, verdict Verdict, d time.Duration, err error)

// Option configures a Validator or Drafter.
type Option func(*options)

type options struct {
	timeout       time.Duration
	formatRetries int
	logger        *slog.Logger
	observer      Observer
}

// WithTimeout bounds each Validate or Draft call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithFormatRetries sets how many correction prompts follow unusable output.
func WithFormatRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.formatRetries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver registers a callback for every Validate outcome.
func WithObserver(fn Observer) Option {
	return func(o *options) {
		o.observer = fn
	}
}

func newOptions(opts []Option) options {
	o := options{formatRetries: 1, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Validator classifies field values through a Generator.
type Validator struct {
	gen  llm.Generator
	opts options
}

// New creates a Validator over gen.
func New(gen llm.Generator, opts ...Option) *Validator {
	return &Validator{gen: gen, opts: newOptions(opts)}
}

// SystemBlocks returns the ordered system blocks for in.
func SystemBlocks(in Input) []string {
	boilerplate := in.Boilerplate
	if boilerplate == "" {
		boilerplate = PDEBoilerplate
	}
	blocks := []string{boilerplate}
	if rb := RubricBlock(in.Rubric); rb != "" {
		blocks = append(blocks, rb)
	}
	return append(blocks, LockedFieldsBlock(in.Locked))
}

// Validate asks the model for a verdict on in. Unusable model output becomes
// a WEAK result; an error is returned only when generation itself failed.
func (v *Validator) Validate(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	res, err := v.validate(ctx, in)
	if v.opts.observer != nil {
		var verdict Verdict
		if res != nil {
			verdict = res.Verdict
		}
		v.opts.observer(in.FieldKey, verdict, time.Since(start), err)
	}
	return res, err
}

func (v *Validator) validate(ctx context.Context, in Input) (*Result, error) {
	if v.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.opts.timeout)
		defer cancel()
	}

	value := strings.TrimSpace(in.Value)
	blocks := SystemBlocks(in)
	userText := UserText(in.FieldKey, value)

	prompt := userText
	var res Result
	for attempt := 0; attempt <= v.opts.formatRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("validate %s: %w", in.FieldKey, err)
		}
		panes, err := v.gen.Generate(ctx, prompt, blocks)
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w: %w", in.FieldKey, ErrGeneration, err)
		}

		var raw string
		var parseErr error
		res, raw, parseErr = ParsePanes(panes, in.FieldKey)
		res.Attempts = attempt + 1
		if parseErr == nil {
			break
		}
		if attempt == v.opts.formatRetries {
			v.opts.logger.Warn("Validator output unusable after retries",
				"field_key", in.FieldKey,
				"attempts", attempt+1,
				"error", parseErr)
			break
		}
		v.opts.logger.Warn("Validator format retry",
			"field_key", in.FieldKey,
			"attempt", attempt+1,
			"error", parseErr)
		prompt = userText + "\n\n" + formatCorrection(parseErr, raw)
	}

	if in.FieldKey == CanonicalSummaryKey {
		applySummaryRule(&res, value)
	}

	res.DebugSystemBlocks = blocks
	res.DebugUserText = userText

	v.opts.logger.Debug("Field validated",
		"field_key", in.FieldKey,
		"verdict", res.Verdict,
		"attempts", res.Attempts)
	return &res, nil
}

// ParsePanes scans panes in order and normalises the first JSON object found.
// It also returns the raw text the result was taken from, and a non-nil
// error when the result had to be synthesised.
func ParsePanes(panes llm.Panes, fieldKey string) (Result, string, error) {
	rawFirst := ""
	for _, pane := range panes.InOrder() {
		text := strings.TrimSpace(pane)
		if text == "" {
			continue
		}
		if rawFirst == "" {
			rawFirst = text
		}
		if obj := llm.ExtractJSON(text); obj != "" {
			var data map[string]any
			if err := json.Unmarshal([]byte(obj), &data); err == nil {
				return normalise(data, fieldKey), text, nil
			}
		}
	}
	res, err := parseOutput(rawFirst, fieldKey)
	return res, rawFirst, err
}

// parseOutput handles a single raw output string.
func parseOutput(raw, fieldKey string) (Result, error) {
	raw = strings.TrimSpace(raw)
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err == nil {
		if m, ok := data.(map[string]any); ok {
			return normalise(m, fieldKey), nil
		}
		return Result{
			FieldKey:          fieldKey,
			Verdict:           VerdictWeak,
			Issues:            []string{NotObjectIssue},
			SuggestedRevision: "",
			Questions:         []string{RetryQuestion},
			Confidence:        ConfidenceLow,
		}, errNotObject
	}
	if obj := llm.ExtractJSON(raw); obj != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(obj), &m); err == nil {
			return normalise(m, fieldKey), nil
		}
	}
	return Result{
		FieldKey:          fieldKey,
		Verdict:           VerdictWeak,
		Issues:            []string{InvalidJSONIssue},
		SuggestedRevision: raw,
		Questions:         []string{RetryQuestion},
		Confidence:        ConfidenceLow,
	}, errNoJSON
}

// normalise coerces a decoded object into a Result.
func normalise(data map[string]any, fieldKey string) Result {
	res := Result{
		FieldKey:          firstNonBlank(stringOf(data["field_key"]), stringOf(data["block_key"]), fieldKey),
		Verdict:           ParseVerdict(stringOf(data["verdict"])),
		Issues:            stringList(data["issues"]),
		SuggestedRevision: stringOf(data["suggested_revision"]),
		Questions:         stringList(data["questions"]),
		Confidence:        ParseConfidence(stringOf(data["confidence"])),
	}
	if len(res.Questions) > maxQuestions {
		res.Questions = res.Questions[:maxQuestions]
	}
	if res.Verdict == VerdictPass {
		res.Issues = []string{}
	}
	return res
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s := stringOf(item)
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// applySummaryRule holds canonical.summary to one short sentence.
func applySummaryRule(res *Result, value string) {
	if len(wordPattern.FindAllString(value, -1)) > SummaryWordLimit {
		res.Verdict = VerdictWeak
		issues := make([]string, 0, len(res.Issues)+1)
		seen := false
		for _, issue := range res.Issues {
			if strings.TrimSpace(issue) == "" {
				continue
			}
			if issue == SummaryIssue {
				seen = true
			}
			issues = append(issues, issue)
		}
		if !seen {
			issues = append(issues, SummaryIssue)
		}
		res.Issues = issues
	}
	suggested := NormaliseSummary(res.SuggestedRevision)
	if suggested == "" {
		suggested = NormaliseSummary(value)
	}
	res.SuggestedRevision = suggested
}

// NormaliseSummary reduces text to one plain sentence of at most 15 words.
func NormaliseSummary(text string) string {
	raw := strings.Join(strings.Fields(text), " ")
	if raw == "" {
		return ""
	}
	words := wordPattern.FindAllString(raw, -1)
	if len(words) > SummaryWordLimit {
		words = words[:SummaryWordLimit]
	}
	out := strings.TrimSpace(strings.Join(words, " "))
	if out == "" {
		return ""
	}
	return strings.TrimRight(out, ".!?") + "."
}
