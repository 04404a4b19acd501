package llm

import (
	"context"
	"fmt"

	"github.com/c360studio/workbench/model"
)

// Panes is the structured output of one generation. Models that produce a
// single completion fill only Output.
type Panes struct {
	Output    string `json:"output"`
	Answer    string `json:"answer,omitempty"`
	KeyInfo   string `json:"key_info,omitempty"`
	Visuals   string `json:"visuals,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// InOrder returns the panes in the order parsers should scan them:
// output, answer, reasoning, key_info, visuals.
func (p Panes) InOrder() []string {
	return []string{p.Output, p.Answer, p.Reasoning, p.KeyInfo, p.Visuals}
}

// IsEmpty reports whether every pane is blank.
func (p Panes) IsEmpty() bool {
	for _, s := range p.InOrder() {
		if s != "" {
			return false
		}
	}
	return true
}

// Generator is the boundary to the model: one user text under an ordered
// list of system blocks. Errors mean the call itself failed (transport,
// deadline, no endpoint); unusable content is returned as panes.
type Generator interface {
	Generate(ctx context.Context, userText string, systemBlocks []string) (Panes, error)
}

// ClientGenerator adapts a Completer to the Generator boundary. Each system
// block becomes its own system message, the completion fills Output and any
// separately reported thinking fills Reasoning.
type ClientGenerator struct {
	client      Completer
	capability  model.Capability
	temperature *float64
	maxTokens   int
	jsonObject  bool
}

// GeneratorOption configures a ClientGenerator.
type GeneratorOption func(*ClientGenerator)

// WithTemperature pins the sampling temperature.
func WithTemperature(t float64) GeneratorOption {
	return func(g *ClientGenerator) {
		g.temperature = &t
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *ClientGenerator) {
		g.maxTokens = n
	}
}

// WithJSONObject requests JSON-constrained output for callers that parse a
// single object from the reply.
func WithJSONObject() GeneratorOption {
	return func(g *ClientGenerator) {
		g.jsonObject = true
	}
}

// NewClientGenerator creates a generator that asks client for capability.
func NewClientGenerator(client Completer, capability model.Capability, opts ...GeneratorOption) *ClientGenerator {
	g := &ClientGenerator{client: client, capability: capability}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate implements Generator.
func (g *ClientGenerator) Generate(ctx context.Context, userText string, systemBlocks []string) (Panes, error) {
	messages := make([]Message, 0, len(systemBlocks)+1)
	for _, block := range systemBlocks {
		if block == "" {
			continue
		}
		messages = append(messages, Message{Role: "system", Content: block})
	}
	messages = append(messages, Message{Role: "user", Content: userText})

	resp, err := g.client.Complete(ctx, Request{
		Capability:  g.capability.String(),
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		JSONObject:  g.jsonObject,
	})
	if err != nil {
		return Panes{}, fmt.Errorf("generate (%s): %w", g.capability, err)
	}
	return Panes{Output: resp.Content, Reasoning: resp.Reasoning}, nil
}
