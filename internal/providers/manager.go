package providers

import (
	"fmt"
	"strings"

	"medthread/internal/config"
	"medthread/internal/util"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

// Manager holds the configured providers in preference order.
type Manager struct {
	llmProviders []NamedLLMProvider
}

// NewManager builds every provider in cfg.Provider. Each one may serve as a
// fallback, so a provider without credentials is a configuration error,
// surfaced before any item is read.
func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{}
	for _, ref := range ParseProviderList(cfg.Provider) {
		p, err := buildProvider(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", util.ErrConfiguration, err)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: p})
	}
	return m, nil
}

// Ordered lists the providers in the order an item should try them: real
// providers as configured, then any mock. The first entry is the primary and
// the list is never empty.
func (m *Manager) Ordered() []NamedLLMProvider {
	out := make([]NamedLLMProvider, 0, len(m.llmProviders))
	var mocks []NamedLLMProvider
	for _, np := range m.llmProviders {
		if strings.ToLower(np.Ref.Name) == "mock" {
			mocks = append(mocks, np)
			continue
		}
		out = append(out, np)
	}
	out = append(out, mocks...)
	if len(out) == 0 {
		out = append(out, NamedLLMProvider{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider()})
	}
	return out
}

type keyed interface {
	HasKey() bool
}

func buildProvider(ref ProviderRef) (LLMProvider, error) {
	var p LLMProvider
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(), nil
	case "anthropic":
		p = NewAnthropicProvider(ref.KeyAlias)
	case "openai":
		p = NewOpenAIProvider(ref.KeyAlias)
	case "groq":
		p = NewGroqProvider(ref.KeyAlias)
	case "ollama":
		p = NewOllamaProvider(ref.KeyAlias)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
	if k, ok := p.(keyed); ok && !k.HasKey() {
		return nil, fmt.Errorf("provider %s: %w", ref.Raw, ErrMissingKey)
	}
	return p, nil
}
