package app

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"medthread/internal/config"
	"medthread/internal/metrics"
	"medthread/internal/models"
	"medthread/internal/providers"
	"medthread/internal/storage"
	"medthread/internal/util"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	mu      sync.Mutex
	items   []models.SourceItem
	batches []storage.PersistBatch
}

func (s *stubStore) ExportPending(context.Context, models.Filter, int) ([]models.SourceItem, error) {
	out := make([]models.SourceItem, 0, len(s.items))
	for _, it := range s.items {
		n, err := it.Normalize()
		if err != nil {
			return nil, err
		}
		n.Pending = true
		out = append(out, n)
	}
	return out, nil
}

func (s *stubStore) Persist(_ context.Context, b storage.PersistBatch) (storage.PersistOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	var n int64
	for _, r := range b.Results {
		if r.Status == models.StatusProcessed {
			n++
		}
	}
	return storage.PersistOutcome{Inserted: n, StatusesApplied: int64(len(b.Results))}, nil
}

func (s *stubStore) ResetFailed(context.Context, models.Filter) (int64, error) { return 0, nil }

func (s *stubStore) CountResults(_ context.Context, ids []string) (int64, error) {
	return int64(len(ids)), nil
}

func TestNewRejectsInvalidConfigBeforeConnecting(t *testing.T) {
	cfg := config.Load()
	cfg.Workers = 0
	cfg.PostgresURL = "postgres://unreachable.invalid:1/none"
	_, err := New(context.Background(), cfg, prometheus.NewRegistry())
	require.ErrorIs(t, err, util.ErrConfiguration)
}

func TestNewRejectsMissingCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := config.Load()
	cfg.Provider = "anthropic"
	cfg.PostgresURL = "postgres://unreachable.invalid:1/none"
	_, err := New(context.Background(), cfg, prometheus.NewRegistry())
	require.ErrorIs(t, err, util.ErrConfiguration)
}

func TestOptionsFollowConfig(t *testing.T) {
	cfg := config.Load()
	cfg.CheapModel, cfg.CapableModel = "small", "large"
	cfg.TierThresholdTokens = 10
	cfg.MaxRetries = 5
	cfg.RetryBaseDelay = 3 * time.Second
	cfg.Workers = 2
	cfg.TopReplies = 7

	tiers := Tiers(cfg)
	assert.Equal(t, "small", tiers.Select("short").Model)
	assert.Equal(t, "large", tiers.Select(string(make([]byte, 200))).Model)

	rc := Retry(cfg)
	assert.Equal(t, 5, rc.MaxRetries)
	assert.Equal(t, 3*time.Second, rc.BaseDelay)
	assert.Greater(t, rc.BackoffFactor, 1+rc.JitterFactor)

	po := PipelineOptions(cfg)
	assert.Equal(t, 2, po.Workers)
	assert.Equal(t, 7, po.Assembler.TopReplies)
	assert.Equal(t, cfg.MinContentChars, po.MinContentChars)
}

func TestBuildRunsOneBatch(t *testing.T) {
	cfg := config.Load()
	cfg.BackupDir = t.TempDir()
	cfg.RequestsPerSecond = 100
	store := &stubStore{items: []models.SourceItem{{
		ID: "p1", Kind: models.KindPost, Community: "Ozempic",
		Title: "Week 8 on Ozempic", Body: "Down 14 lbs, some nausea in the first two weeks.",
	}}}
	mock := providers.NewMockProvider()

	orch := Build(cfg, store, mock, metrics.New(prometheus.NewRegistry()))
	stats, err := orch.Run(context.Background(), models.Filter{Community: "Ozempic"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, int64(1), stats.Persisted)
	assert.Equal(t, int64(1), mock.Calls())

	_, statErr := os.Stat(stats.BackupPath)
	require.NoError(t, statErr)
	require.Len(t, store.batches, 1)
	assert.Equal(t, "run", store.batches[0].Run.Source)
}

type downProvider struct{}

func (downProvider) Generate(context.Context, providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	return providers.GenerateResponse{}, providers.ProviderInfo{Name: "anthropic"},
		&providers.StatusError{Provider: "anthropic", StatusCode: 400, Body: "model not found"}
}

func TestBuildFallsBackToSecondaryProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk")
	cfg := config.Load()
	cfg.BackupDir = t.TempDir()
	cfg.RequestsPerSecond = 100
	cfg.FallbackModel = "mock-1"
	cfg.Provider = "anthropic|mock"
	pm, err := providers.NewManager(cfg)
	require.NoError(t, err)
	ordered := pm.Ordered()
	require.Len(t, ordered, 2)

	fbs := Fallbacks(cfg, ordered[1:])
	require.Len(t, fbs, 1)
	assert.Equal(t, "mock", fbs[0].Name)
	assert.Equal(t, "mock-1", fbs[0].Model)

	store := &stubStore{items: []models.SourceItem{{
		ID: "p1", Kind: models.KindPost, Community: "Wegovy",
		Title: "Month 3", Body: "Down 20 lbs on Wegovy, constipation is the worst part.",
	}}}
	orch := Build(cfg, store, downProvider{}, nil, fbs...)
	stats, err := orch.Run(context.Background(), models.Filter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Zero(t, stats.Failed)
}
