package providers

import (
	"net/http"
	"os"

	"github.com/c360studio/workbench/llm"
)

// OllamaProvider speaks the OpenAI-compatible dialect served by Ollama,
// vLLM and llama.cpp. It is the default for local validation models.
type OllamaProvider struct{}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

// Name returns the provider identifier.
func (o *OllamaProvider) Name() string {
	return "ollama"
}

// BuildURL returns the chat completions endpoint under baseURL.
func (o *OllamaProvider) BuildURL(baseURL string) string {
	return chatCompletionsURL(baseURL, "http://localhost:11434/v1")
}

// SetHeaders adds a bearer token when one is configured (vLLM, proxies).
func (o *OllamaProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// BuildRequestBody encodes req. JSONObject maps to response_format.
func (o *OllamaProvider) BuildRequestBody(model string, req llm.Request) ([]byte, error) {
	return encodeChatCompletion(model, req)
}

// ParseResponse decodes the first choice, moving any thinking into Reasoning.
func (o *OllamaProvider) ParseResponse(body []byte, _ string) (*llm.Response, error) {
	return decodeChatCompletion(body)
}
