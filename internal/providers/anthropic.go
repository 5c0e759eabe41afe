package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider talks to the Messages API.
type AnthropicProvider struct {
	keyName string
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewAnthropicProvider(keyName string) *AnthropicProvider {
	return &AnthropicProvider{
		keyName: keyName,
		apiKey:  resolveKey("anthropic", keyName, "ANTHROPIC_API_KEY"),
		baseURL: envBaseURL("anthropic", "https://api.anthropic.com"),
		client:  defaultHTTPClient(),
	}
}

// WithEndpoint overrides the base URL and HTTP client.
func (a *AnthropicProvider) WithEndpoint(baseURL string, client *http.Client) *AnthropicProvider {
	cp := *a
	cp.baseURL = strings.TrimRight(baseURL, "/")
	if client != nil {
		cp.client = client
	}
	return &cp
}

func (a *AnthropicProvider) HasKey() bool { return a.apiKey != "" }

func (a *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "anthropic", Model: req.Model, Key: a.keyName}
	if a.apiKey == "" {
		return GenerateResponse{}, info, fmt.Errorf("anthropic alias %q: %w", a.keyName, ErrMissingKey)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	payload := map[string]any{
		"model":       req.Model,
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
		"system":      req.System,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	body, err := postJSON(ctx, a.client, "anthropic", a.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}, payload)
	if err != nil {
		return GenerateResponse{}, info, err
	}
	var parsed struct {
		Model   string `json:"model"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode anthropic response: %w", err)
	}
	var text strings.Builder
	for _, c := range parsed.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if parsed.Model != "" {
		info.Model = parsed.Model
	}
	return GenerateResponse{
		Text:  text.String(),
		Usage: Usage{InputTokens: parsed.Usage.InputTokens, OutputTokens: parsed.Usage.OutputTokens},
	}, info, nil
}
