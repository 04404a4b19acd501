// Package main implements a mock model server for offline workbench runs.
// It serves OpenAI-compatible /v1/chat/completions responses, so a model
// registry endpoint with provider "openai" or "ollama" can point at it.
//
// Usage:
//
//	mock-llm --addr :11434 [--fixtures /path/to/fixtures]
//
// Without a fixture for the requested model it answers from the prompt:
// field validations PASS unless the value contains "[weak]" or
// "[conflict]", and drafts fill every schema key from the seed text.
//
// Fixture files are JSON named by model (e.g. "qwen2.5:14b.json" answers
// model "qwen2.5:14b"). Numbered files ("model.1.json", "model.2.json")
// are returned in order, then the base file repeats. This scripts
// block-then-pass sequences.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

// Prompt prefixes written by the workbench validator and drafter.
const (
	fieldPrefix = "Field key:"
	seedPrefix  = "Seed intent:"
)

// Value markers that select a non-passing verdict.
const (
	markWeak     = "[weak]"
	markConflict = "[conflict]"
)

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    *float64      `json:"temperature,omitempty"`
	MaxTokens      *int          `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Server ---

// capturedRequest stores an incoming request for later inspection.
type capturedRequest struct {
	Model     string        `json:"model"`
	Kind      string        `json:"kind"`
	Messages  []chatMessage `json:"messages"`
	JSONMode  bool          `json:"json_mode"`
	CallIndex int           `json:"call_index"` // 1-indexed per-model call number
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	logger   *slog.Logger
	fixtures map[string][]string // model name → ordered fixture contents
	calls    atomic.Int64

	mu         sync.Mutex
	modelCalls map[string]int
	requests   map[string][]capturedRequest
}

func newServer(fixtures map[string][]string, logger *slog.Logger) *server {
	if fixtures == nil {
		fixtures = make(map[string][]string)
	}
	return &server{
		logger:     logger,
		fixtures:   fixtures,
		modelCalls: make(map[string]int),
		requests:   make(map[string][]capturedRequest),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /requests", s.handleRequests)
	return mux
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		fixtureDir string
		addr       string
	)
	cmd := &cobra.Command{
		Use:          "mock-llm",
		Short:        "Offline model server for the workbench validator and drafter",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			if fixtureDir == "" {
				fixtureDir = os.Getenv("MOCK_LLM_FIXTURES")
			}

			var fixtures map[string][]string
			if fixtureDir != "" {
				var err error
				if fixtures, err = loadFixtures(fixtureDir); err != nil {
					return fmt.Errorf("load fixtures from %s: %w", fixtureDir, err)
				}
				for model, seq := range fixtures {
					logger.Info("Loaded fixtures", "model", model, "count", len(seq))
				}
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           newServer(fixtures, logger).routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			logger.Info("Mock model server listening", "addr", addr)
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&fixtureDir, "fixtures", "", "Directory of fixture response files (optional)")
	cmd.Flags().StringVar(&addr, "addr", ":11434", "Listen address")
	return cmd
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	kind, user, system := classify(req.Messages)

	s.mu.Lock()
	s.modelCalls[req.Model]++
	callIndex := s.modelCalls[req.Model]
	s.requests[req.Model] = append(s.requests[req.Model], capturedRequest{
		Model:     req.Model,
		Kind:      kind,
		Messages:  req.Messages,
		JSONMode:  req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object",
		CallIndex: callIndex,
		Timestamp: time.Now().UnixMilli(),
	})
	s.mu.Unlock()

	var content string
	if seq, ok := s.fixtures[req.Model]; ok {
		content = seq[min(callIndex, len(seq))-1]
	} else {
		switch kind {
		case "validate":
			content = verdictReply(user)
		case "draft":
			content = draftReply(user, system)
		default:
			content = `{"output":"ok"}`
		}
	}
	s.logger.Debug("Completion", "call", callNum, "model", req.Model, "kind", kind, "call_index", callIndex)

	writeJSON(w, chatResponse{
		ID:      fmt.Sprintf("mock-%d", callNum),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     len(user) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(user) + len(content)) / 4,
		},
	})
}

// classify names the request by its last user message.
func classify(messages []chatMessage) (kind, user, system string) {
	var sb strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		case "user":
			user = m.Content
		}
	}
	switch {
	case strings.HasPrefix(user, fieldPrefix):
		kind = "validate"
	case strings.HasPrefix(user, seedPrefix):
		kind = "draft"
	default:
		kind = "other"
	}
	return kind, user, sb.String()
}

func verdictReply(user string) string {
	key, value := user, ""
	if head, rest, ok := strings.Cut(user, "\nField value:\n"); ok {
		key, value = head, rest
	}
	key = strings.TrimSpace(strings.TrimPrefix(key, fieldPrefix))
	lower := strings.ToLower(value)

	reply := map[string]any{"verdict": "PASS", "issues": []string{}, "confidence": "HIGH"}
	switch {
	case strings.Contains(lower, markConflict):
		reply = map[string]any{
			"verdict":    "CONFLICT",
			"issues":     []string{key + " contradicts a locked field"},
			"confidence": "MEDIUM",
		}
	case strings.Contains(lower, markWeak):
		reply = map[string]any{
			"verdict":            "WEAK",
			"issues":             []string{key + " is too vague"},
			"questions":          []string{"What exactly should " + key + " say?"},
			"suggested_revision": strings.TrimSpace(strings.ReplaceAll(value, markWeak, "")),
			"confidence":         "MEDIUM",
		}
	}
	data, _ := json.Marshal(reply)
	return string(data)
}

// schemaKeyRe matches the field keys listed in a draft schema.
var schemaKeyRe = regexp.MustCompile(`"([a-z0-9_]+\.[a-z0-9_]+)": "string"`)

func draftReply(user, system string) string {
	seed := strings.TrimSpace(strings.TrimPrefix(user, seedPrefix))
	if i := strings.IndexAny(seed, ".\n"); i > 0 {
		seed = seed[:i]
	}
	fields := make(map[string]string)
	for _, m := range schemaKeyRe.FindAllStringSubmatch(system, -1) {
		fields[m[1]] = seed
	}
	data, _ := json.Marshal(map[string]any{"hypotheses": map[string]any{"fields": fields}})
	return string(data)
}

// handleModels lists the fixture models.
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	names := make([]string, 0, len(s.fixtures))
	for name := range s.fixtures {
		names = append(names, name)
	}
	sort.Strings(names)
	models := make([]modelEntry, 0, len(names))
	for _, name := range names {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	writeJSON(w, map[string]any{"object": "list", "data": models})
}

// handleStats returns total and per-model call counts.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	byModel := make(map[string]int, len(s.modelCalls))
	for model, n := range s.modelCalls {
		byModel[model] = n
	}
	s.mu.Unlock()
	writeJSON(w, map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": byModel,
	})
}

// handleRequests returns captured requests, optionally filtered by the
// "model" and 1-indexed "call" query parameters.
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	callFilter, _ := strconv.Atoi(r.URL.Query().Get("call"))

	s.mu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.requests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		for _, req := range reqs {
			if callFilter == 0 || req.CallIndex == callFilter {
				result[model] = append(result[model], req)
			}
		}
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"requests_by_model": result})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// numberedFileRe matches files like "qwen.1.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads JSON files from dir into model → content sequences:
// numbered files in numeric order, then the base file as the repeating
// fallback.
func loadFixtures(dir string) (map[string][]string, error) {
	base := make(map[string]string)
	numbered := make(map[string]map[int]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", path)
		}

		if m := numberedFileRe.FindStringSubmatch(d.Name()); m != nil {
			index, _ := strconv.Atoi(m[2])
			if numbered[m[1]] == nil {
				numbered[m[1]] = make(map[int]string)
			}
			numbered[m[1]][index] = string(data)
			return nil
		}
		base[strings.TrimSuffix(d.Name(), ".json")] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	fixtures := make(map[string][]string)
	for model, byIndex := range numbered {
		indices := make([]int, 0, len(byIndex))
		for idx := range byIndex {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			fixtures[model] = append(fixtures[model], byIndex[idx])
		}
	}
	for model, content := range base {
		fixtures[model] = append(fixtures[model], content)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
