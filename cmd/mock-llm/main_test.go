package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/llm"
	_ "github.com/c360studio/workbench/llm/providers"
	"github.com/c360studio/workbench/model"
	"github.com/c360studio/workbench/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

// complete posts one chat completion and returns the assistant content.
func complete(t *testing.T, url, modelName string, messages ...chatMessage) string {
	t.Helper()
	body, _ := json.Marshal(chatRequest{Model: modelName, Messages: messages})
	resp, err := http.Post(url+"/v1/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(out.Choices))
	}
	return out.Choices[0].Message.Content
}

func user(text string) chatMessage { return chatMessage{Role: "user", Content: text} }

func TestLoadFixtures(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "qwen.1.json", `{"verdict":"WEAK","issues":["first"]}`)
	writeFixture(t, dir, "qwen.2.json", `{"verdict":"WEAK","issues":["second"]}`)
	writeFixture(t, dir, "qwen.json", `{"verdict":"PASS","issues":[]}`)
	writeFixture(t, dir, "haiku.json", `{"verdict":"PASS"}`)
	writeFixture(t, dir, "notes.txt", `ignored`)

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}
	if len(fixtures) != 2 {
		t.Fatalf("expected 2 models, got %d", len(fixtures))
	}

	seq := fixtures["qwen"]
	if len(seq) != 3 {
		t.Fatalf("qwen: expected 3 fixtures, got %d", len(seq))
	}
	for i, want := range []string{"first", "second", "PASS"} {
		if !strings.Contains(seq[i], want) {
			t.Errorf("fixture[%d] = %s, want it to contain %q", i, seq[i], want)
		}
	}
}

func TestLoadFixturesErrors(t *testing.T) {
	if _, err := loadFixtures(t.TempDir()); err == nil {
		t.Error("expected error for empty directory")
	}

	dir := t.TempDir()
	writeFixture(t, dir, "bad.json", `{not json`)
	if _, err := loadFixtures(dir); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFixtureSequence(t *testing.T) {
	s := newServer(map[string][]string{
		"qwen": {`{"verdict":"WEAK"}`, `{"verdict":"PASS"}`},
	}, testLogger())
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	msg := user("Field key: intent.primary_goal\nField value:\nShip it")
	for i, want := range []string{"WEAK", "PASS", "PASS"} {
		if got := complete(t, srv.URL, "qwen", msg); !strings.Contains(got, want) {
			t.Errorf("call %d: got %s, want %s", i+1, got, want)
		}
	}
}

func TestBuiltInVerdicts(t *testing.T) {
	srv := httptest.NewServer(newServer(nil, testLogger()).routes())
	defer srv.Close()

	tests := []struct {
		value string
		want  validator.Verdict
	}{
		{"Ship the beta by March", validator.VerdictPass},
		{"Something [weak]", validator.VerdictWeak},
		{"Contradiction [CONFLICT]", validator.VerdictConflict},
	}
	for _, tt := range tests {
		got := complete(t, srv.URL, "any", user("Field key: intent.primary_goal\nField value:\n"+tt.value))
		var reply struct {
			Verdict validator.Verdict `json:"verdict"`
			Issues  []string          `json:"issues"`
		}
		if err := json.Unmarshal([]byte(got), &reply); err != nil {
			t.Fatalf("%q: reply is not JSON: %v", tt.value, err)
		}
		if reply.Verdict != tt.want {
			t.Errorf("%q: verdict %s, want %s", tt.value, reply.Verdict, tt.want)
		}
		if tt.want != validator.VerdictPass && len(reply.Issues) == 0 {
			t.Errorf("%q: expected an issue", tt.value)
		}
	}
}

func TestBuiltInDraft(t *testing.T) {
	srv := httptest.NewServer(newServer(nil, testLogger()).routes())
	defer srv.Close()

	schema := validator.DraftBoilerplate("chat definition", []string{definition.KeyChatGoal, definition.KeyChatSuccess})
	got := complete(t, srv.URL, "any",
		chatMessage{Role: "system", Content: schema},
		user("Seed intent:\nPlan the launch. Then celebrate."))

	var reply struct {
		Hypotheses struct {
			Fields map[string]string `json:"fields"`
		} `json:"hypotheses"`
	}
	if err := json.Unmarshal([]byte(got), &reply); err != nil {
		t.Fatalf("reply is not JSON: %v", err)
	}
	if len(reply.Hypotheses.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %v", reply.Hypotheses.Fields)
	}
	if reply.Hypotheses.Fields[definition.KeyChatGoal] != "Plan the launch" {
		t.Errorf("goal = %q", reply.Hypotheses.Fields[definition.KeyChatGoal])
	}
}

func TestStatsAndRequests(t *testing.T) {
	srv := httptest.NewServer(newServer(nil, testLogger()).routes())
	defer srv.Close()

	complete(t, srv.URL, "a", user("Field key: k.x\nField value:\nv"))
	complete(t, srv.URL, "a", user("Seed intent:\nseed"))
	complete(t, srv.URL, "b", user("hello"))

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats struct {
		TotalCalls   int64          `json:"total_calls"`
		CallsByModel map[string]int `json:"calls_by_model"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&stats)
	resp.Body.Close()
	if stats.TotalCalls != 3 || stats.CallsByModel["a"] != 2 || stats.CallsByModel["b"] != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	resp, err = http.Get(srv.URL + "/requests?model=a&call=2")
	if err != nil {
		t.Fatalf("requests: %v", err)
	}
	var captured struct {
		RequestsByModel map[string][]capturedRequest `json:"requests_by_model"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&captured)
	resp.Body.Close()
	reqs := captured.RequestsByModel["a"]
	if len(reqs) != 1 || reqs[0].Kind != "draft" || reqs[0].CallIndex != 2 {
		t.Errorf("unexpected captured requests %+v", captured.RequestsByModel)
	}
	if _, ok := captured.RequestsByModel["b"]; ok {
		t.Error("model filter not applied")
	}
}

func TestRejectsBadRequests(t *testing.T) {
	srv := httptest.NewServer(newServer(nil, testLogger()).routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/chat/completions")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status %d, want 405", resp.StatusCode)
	}
}

// TestValidatorAgainstMock runs the real client, provider and validator
// against the mock server.
func TestValidatorAgainstMock(t *testing.T) {
	srv := httptest.NewServer(newServer(nil, testLogger()).routes())
	defer srv.Close()

	registry := model.NewRegistry(map[model.Capability]*model.CapabilityConfig{
		model.CapabilityValidating: {Preferred: []string{"mock"}},
	}, map[string]*model.EndpointConfig{
		"mock": {Provider: "ollama", URL: srv.URL + "/v1", Model: "mock-validator"},
	})
	gen := llm.NewClientGenerator(llm.NewClient(registry), model.CapabilityValidating, llm.WithJSONObject())
	v := validator.New(gen)

	res, err := v.Validate(context.Background(), validator.Input{
		FieldKey: definition.KeyPrimaryGoal,
		Value:    "Ship the beta by March",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Verdict != validator.VerdictPass {
		t.Errorf("verdict %s, want PASS", res.Verdict)
	}

	res, err = v.Validate(context.Background(), validator.Input{
		FieldKey: definition.KeyPrimaryGoal,
		Value:    "Do things [weak]",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Verdict != validator.VerdictWeak {
		t.Errorf("verdict %s, want WEAK", res.Verdict)
	}

	resp, err := http.Get(srv.URL + "/requests?model=mock-validator")
	if err != nil {
		t.Fatalf("requests: %v", err)
	}
	defer resp.Body.Close()
	var captured struct {
		RequestsByModel map[string][]capturedRequest `json:"requests_by_model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&captured); err != nil {
		t.Fatalf("decode: %v", err)
	}
	reqs := captured.RequestsByModel["mock-validator"]
	if len(reqs) != 2 {
		t.Fatalf("expected 2 captured requests, got %d", len(reqs))
	}
	for _, r := range reqs {
		if r.Kind != "validate" || !r.JSONMode {
			t.Errorf("captured %+v, want a JSON-mode validate request", r)
		}
	}
}
