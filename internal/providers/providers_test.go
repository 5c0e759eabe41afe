package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medthread/internal/config"
	"medthread/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sys", body["system"])
		assert.Equal(t, "claude-x", body["model"])
		_, _ = w.Write([]byte(`{"model":"claude-x-2025","content":[{"type":"text","text":"{\"a\":"},{"type":"text","text":"1}"}],"usage":{"input_tokens":120,"output_tokens":30}}`))
	}))
	defer srv.Close()

	t.Setenv("ANNOTATE_ANTHROPIC_KEY_TEST", "sk-test")
	p := NewAnthropicProvider("test").WithEndpoint(srv.URL, srv.Client())
	resp, info, err := p.Generate(context.Background(), GenerateRequest{Model: "claude-x", System: "sys", Prompt: "hello"})
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, resp.Text)
	require.Equal(t, Usage{InputTokens: 120, OutputTokens: 30}, resp.Usage)
	require.Equal(t, "claude-x-2025", info.Model)
	require.Equal(t, "anthropic", info.Name)
}

func TestAnthropicRateLimitCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	t.Setenv("ANTHROPIC_API_KEY", "sk-env")
	_, _, err := NewAnthropicProvider("").WithEndpoint(srv.URL, nil).Generate(context.Background(), GenerateRequest{Model: "m"})
	require.Error(t, err)
	require.Equal(t, ErrorRate, ClassifyError(err))
	require.Equal(t, 7*time.Second, RetryAfter(err))
	require.Equal(t, 429, StatusCode(err))
}

func TestAnthropicMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, _, err := NewAnthropicProvider("nope").Generate(context.Background(), GenerateRequest{})
	require.ErrorIs(t, err, ErrMissingKey)
	require.Equal(t, ErrorAuth, ClassifyError(err))
}

func TestOpenAICompatibleGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"model":"llama","choices":[{"message":{"content":"ok"}}],"usage":{"prompt_tokens":10,"completion_tokens":2}}`))
	}))
	defer srv.Close()

	t.Setenv("GROQ_API_KEY", "gsk")
	resp, info, err := NewGroqProvider("").WithEndpoint(srv.URL, nil).Generate(context.Background(), GenerateRequest{Model: "llama", MaxTokens: 64})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, 10, resp.Usage.InputTokens)
	require.Equal(t, "groq", info.Name)
}

func TestOpenAICompatibleServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, _, err := NewOllamaProvider("").WithEndpoint(srv.URL, nil).Generate(context.Background(), GenerateRequest{Model: "m"})
	require.Error(t, err)
	require.Equal(t, ErrorTransient, ClassifyError(err))
}

func TestMockProviderCountsCalls(t *testing.T) {
	m := NewMockProvider()
	resp, _, err := m.Generate(context.Background(), GenerateRequest{Prompt: "12345678"})
	require.NoError(t, err)
	require.True(t, json.Valid([]byte(resp.Text)))
	require.EqualValues(t, 1, m.Calls())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = m.Generate(ctx, GenerateRequest{})
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 1, m.Calls())
}

func TestNewManagerRequiresCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewManager(config.Config{Provider: "anthropic"})
	require.Error(t, err)
	require.True(t, errors.Is(err, util.ErrConfiguration))

	_, err = NewManager(config.Config{Provider: "bard"})
	require.ErrorIs(t, err, util.ErrConfiguration)

	t.Setenv("ANTHROPIC_API_KEY", "sk")
	m, err := NewManager(config.Config{Provider: "mock|anthropic"})
	require.NoError(t, err)
	require.Equal(t, "anthropic", m.Ordered()[0].Ref.Name)
}

func TestManagerOrderedPutsMockLast(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk")
	t.Setenv("OPENAI_API_KEY", "sk")
	m, err := NewManager(config.Config{Provider: "mock,openai|anthropic"})
	require.NoError(t, err)
	var names []string
	for _, np := range m.Ordered() {
		names = append(names, np.Ref.Name)
	}
	require.Equal(t, []string{"openai", "anthropic", "mock"}, names)

	t.Setenv("OPENAI_API_KEY", "")
	_, err = NewManager(config.Config{Provider: "anthropic|openai"})
	require.ErrorIs(t, err, util.ErrConfiguration)
}
