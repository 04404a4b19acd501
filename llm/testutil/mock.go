// Package testutil provides test doubles for the llm package.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/workbench/llm"
)

// MockLLMClient is a thread-safe mock llm.Completer.
// It records every request and returns configured responses in sequence.
//
//	mock := &MockLLMClient{
//	    Responses: []*llm.Response{
//	        {Content: "not json", Model: "test-model"},
//	        {Content: `{"verdict": "PASS"}`, Model: "test-model"},
//	    },
//	}
type MockLLMClient struct {
	mu            sync.Mutex
	Responses     []*llm.Response // Responses to return in sequence
	Err           error           // Error to return (takes precedence over Responses)
	requests      []llm.Request
	responseIndex int
}

// Complete implements llm.Completer.
func (m *MockLLMClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}
	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}
	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// Requests returns the requests received so far.
func (m *MockLLMClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// GetCallCount returns the number of times Complete() was called.
func (m *MockLLMClient) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Reset clears recorded requests and rewinds the responses.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.responseIndex = 0
}

// GenerateCall is one recorded Generate call.
type GenerateCall struct {
	UserText     string
	SystemBlocks []string
}

// ScriptedGenerator is an llm.Generator that answers from a script. Respond,
// when set, decides each reply; otherwise Panes are returned in order and the
// last entry repeats.
type ScriptedGenerator struct {
	mu      sync.Mutex
	Panes   []llm.Panes
	Respond func(userText string, systemBlocks []string) (llm.Panes, error)
	Err     error
	calls   []GenerateCall
}

// Generate implements llm.Generator.
func (g *ScriptedGenerator) Generate(ctx context.Context, userText string, systemBlocks []string) (llm.Panes, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := len(g.calls)
	g.calls = append(g.calls, GenerateCall{
		UserText:     userText,
		SystemBlocks: append([]string(nil), systemBlocks...),
	})

	if err := ctx.Err(); err != nil {
		return llm.Panes{}, err
	}
	if g.Err != nil {
		return llm.Panes{}, g.Err
	}
	if g.Respond != nil {
		return g.Respond(userText, systemBlocks)
	}
	if len(g.Panes) == 0 {
		return llm.Panes{}, nil
	}
	if idx >= len(g.Panes) {
		idx = len(g.Panes) - 1
	}
	return g.Panes[idx], nil
}

// Calls returns the recorded calls.
func (g *ScriptedGenerator) Calls() []GenerateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]GenerateCall(nil), g.calls...)
}

// PassAll returns a Respond function that passes every field.
func PassAll() func(string, []string) (llm.Panes, error) {
	return func(string, []string) (llm.Panes, error) {
		return llm.Panes{Output: `{"verdict":"PASS","issues":[],"confidence":"HIGH"}`}, nil
	}
}
