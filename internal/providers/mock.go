package providers

import (
	"context"
	"strings"
	"sync/atomic"
)

const mockAnnotation = `{
  "summary": "I described my experience with the medication in this thread.",
  "drugs_mentioned": [],
  "drug_sentiments": {},
  "side_effects": [],
  "comorbidities": [],
  "previous_weight_loss_attempts": [],
  "food_intolerances": [],
  "labs_improvement": [],
  "medication_reduction": [],
  "nsv_mentioned": [],
  "confidence_score": 0.5
}`

// MockProvider answers every request with a fixed annotation. Usage is
// approximated from prompt length so cost accounting has something to sum.
type MockProvider struct {
	Response string
	calls    atomic.Int64
}

func NewMockProvider() *MockProvider {
	return &MockProvider{Response: mockAnnotation}
}

func (m *MockProvider) Calls() int64 { return m.calls.Load() }

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "mock", Model: req.Model, Key: "mock"}
	if err := ctx.Err(); err != nil {
		return GenerateResponse{}, info, err
	}
	m.calls.Add(1)
	text := m.Response
	if strings.TrimSpace(text) == "" {
		text = mockAnnotation
	}
	return GenerateResponse{
		Text: text,
		Usage: Usage{
			InputTokens:  (len(req.System) + len(req.Prompt)) / 4,
			OutputTokens: len(text) / 4,
		},
	}, info, nil
}
