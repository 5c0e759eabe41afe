package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIProvider speaks the chat completions protocol. Groq and Ollama expose
// the same surface, so they are built from this type with a different base URL.
type OpenAIProvider struct {
	name    string
	keyName string
	apiKey  string
	baseURL string
	keyless bool
	client  *http.Client
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	return &OpenAIProvider{
		name:    "openai",
		keyName: keyName,
		apiKey:  resolveKey("openai", keyName, "OPENAI_API_KEY"),
		baseURL: envBaseURL("openai", "https://api.openai.com/v1"),
		client:  defaultHTTPClient(),
	}
}

func NewGroqProvider(keyName string) *OpenAIProvider {
	return &OpenAIProvider{
		name:    "groq",
		keyName: keyName,
		apiKey:  resolveKey("groq", keyName, "GROQ_API_KEY"),
		baseURL: envBaseURL("groq", "https://api.groq.com/openai/v1"),
		client:  defaultHTTPClient(),
	}
}

// NewOllamaProvider targets a local server; no key is needed.
func NewOllamaProvider(keyName string) *OpenAIProvider {
	return &OpenAIProvider{
		name:    "ollama",
		keyName: keyName,
		baseURL: envBaseURL("ollama", "http://localhost:11434/v1"),
		keyless: true,
		client:  defaultHTTPClient(),
	}
}

func (o *OpenAIProvider) WithEndpoint(baseURL string, client *http.Client) *OpenAIProvider {
	cp := *o
	cp.baseURL = strings.TrimRight(baseURL, "/")
	if client != nil {
		cp.client = client
	}
	return &cp
}

func (o *OpenAIProvider) HasKey() bool { return o.keyless || o.apiKey != "" }

func (o *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: o.name, Model: req.Model, Key: o.keyName}
	if !o.HasKey() {
		return GenerateResponse{}, info, fmt.Errorf("%s alias %q: %w", o.name, o.keyName, ErrMissingKey)
	}
	payload := map[string]any{
		"model":       req.Model,
		"temperature": req.Temperature,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}
	body, err := postJSON(ctx, o.client, o.name, o.baseURL+"/chat/completions", headers, payload)
	if err != nil {
		return GenerateResponse{}, info, err
	}
	var parsed struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode %s response: %w", o.name, err)
	}
	if len(parsed.Choices) == 0 {
		return GenerateResponse{}, info, fmt.Errorf("%s returned empty choices", o.name)
	}
	if parsed.Model != "" {
		info.Model = parsed.Model
	}
	return GenerateResponse{
		Text:  parsed.Choices[0].Message.Content,
		Usage: Usage{InputTokens: parsed.Usage.PromptTokens, OutputTokens: parsed.Usage.CompletionTokens},
	}, info, nil
}
