// Package providers implements LLM provider adapters. Importing it for side
// effects registers anthropic, ollama and openai with the llm package.
package providers

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/c360studio/workbench/llm"
)

// chatCompletionRequest is the OpenAI chat completions body. Ollama, vLLM
// and OpenRouter accept the same shape.
type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []llm.Message   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			// Ollama reports thinking as "reasoning", vLLM and DeepSeek
			// as "reasoning_content".
			Reasoning        string `json:"reasoning"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func chatCompletionsURL(baseURL, fallback string) string {
	if baseURL == "" {
		baseURL = fallback
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

func encodeChatCompletion(model string, req llm.Request) ([]byte, error) {
	body := chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature, // nil = server default, 0 = deterministic
	}
	if req.MaxTokens > 0 {
		n := req.MaxTokens
		body.MaxTokens = &n
	}
	if req.JSONObject {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return json.Marshal(body)
}

func decodeChatCompletion(body []byte) (*llm.Response, error) {
	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	reasoning := choice.Message.ReasoningContent
	if reasoning == "" {
		reasoning = choice.Message.Reasoning
	}
	content := choice.Message.Content
	if thought, rest, ok := splitThink(content); ok {
		content = rest
		if reasoning == "" {
			reasoning = thought
		}
	}

	return &llm.Response{
		Content:   content,
		Reasoning: reasoning,
		Model:     resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: choice.FinishReason,
	}, nil
}

// splitThink separates a leading <think>...</think> block from content.
// Reasoning models served through Ollama inline their thinking this way,
// and its braces would otherwise reach the JSON extractor first.
func splitThink(content string) (thought, rest string, ok bool) {
	const open, closing = "<think>", "</think>"
	trimmed := strings.TrimLeftFunc(content, unicode.IsSpace)
	if !strings.HasPrefix(trimmed, open) {
		return "", content, false
	}
	end := strings.Index(trimmed, closing)
	if end < 0 {
		return "", content, false
	}
	return strings.TrimSpace(trimmed[len(open):end]), strings.TrimSpace(trimmed[end+len(closing):]), true
}
