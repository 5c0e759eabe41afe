// Package app builds the annotation pipeline from configuration. Both the CLI
// and the Temporal worker start here.
package app

import (
	"context"

	"medthread/internal/annotate"
	"medthread/internal/backup"
	"medthread/internal/config"
	"medthread/internal/logger"
	"medthread/internal/metrics"
	"medthread/internal/pipeline"
	"medthread/internal/providers"
	"medthread/internal/storage"
	"medthread/internal/thread"

	"github.com/prometheus/client_golang/prometheus"
)

type App struct {
	Config       config.Config
	DB           *storage.DB
	Store        *storage.Store
	Metrics      *metrics.Recorder
	Provider     providers.ProviderRef
	Orchestrator *pipeline.Orchestrator
}

// New validates cfg, resolves the provider credentials, connects to Postgres
// and prepares the schema. Credential problems are reported before any
// connection is opened.
func New(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	ordered := pm.Ordered()
	p, ref := ordered[0].Provider, ordered[0].Ref

	a, err := open(ctx, cfg, reg)
	if err != nil {
		return nil, err
	}
	a.Provider = ref
	a.Orchestrator = Build(cfg, a.Store, p, a.Metrics, Fallbacks(cfg, ordered[1:])...)

	log := logger.Named("app")
	log.Info().
		Str("provider", ref.Name).
		Int("fallbacks", len(ordered)-1).
		Str("cheap_model", cfg.CheapModel).
		Str("capable_model", cfg.CapableModel).
		Int("workers", cfg.Workers).
		Msg("pipeline ready")
	return a, nil
}

// NewMaintenance is New without an annotation provider. Its orchestrator can
// replay backups and reset failed items but must not Run.
func NewMaintenance(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := open(ctx, cfg, reg)
	if err != nil {
		return nil, err
	}
	a.Orchestrator = pipeline.NewOrchestrator(a.Store, nil, backup.NewWriter(cfg.BackupDir), PipelineOptions(cfg), a.Metrics)
	return a, nil
}

func open(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*App, error) {
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &App{Config: cfg, DB: db, Store: storage.NewStore(db), Metrics: metrics.New(reg)}, nil
}

// Build wires an orchestrator over an existing store and provider. One limiter
// is shared by every worker of the orchestrator and by every fallback.
func Build(cfg config.Config, store pipeline.Store, p providers.LLMProvider, rec *metrics.Recorder, fallbacks ...annotate.Fallback) *pipeline.Orchestrator {
	client := annotate.NewClient(p, annotate.Options{
		Tiers:       Tiers(cfg),
		Limiter:     annotate.NewLimiter(cfg.RequestsPerSecond, cfg.RequestBurst),
		Retry:       Retry(cfg),
		MaxTokens:   cfg.MaxOutputTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.RequestTimeout,
		Metrics:     rec,
		Fallbacks:   fallbacks,
	})
	return pipeline.NewOrchestrator(store, client, backup.NewWriter(cfg.BackupDir), PipelineOptions(cfg), rec)
}

func Fallbacks(cfg config.Config, rest []providers.NamedLLMProvider) []annotate.Fallback {
	out := make([]annotate.Fallback, 0, len(rest))
	for _, np := range rest {
		out = append(out, annotate.Fallback{Name: np.Ref.String(), Provider: np.Provider, Model: cfg.FallbackModel})
	}
	return out
}

func Tiers(cfg config.Config) annotate.TierSelector {
	return annotate.TierSelector{
		Cheap:           annotate.Tier{Name: "cheap", Model: cfg.CheapModel, PriceIn: cfg.CheapPriceIn, PriceOut: cfg.CheapPriceOut},
		Capable:         annotate.Tier{Name: "capable", Model: cfg.CapableModel, PriceIn: cfg.CapablePriceIn, PriceOut: cfg.CapablePriceOut},
		ThresholdTokens: cfg.TierThresholdTokens,
	}
}

func Retry(cfg config.Config) annotate.RetryConfig {
	rc := annotate.DefaultRetryConfig()
	rc.MaxRetries = cfg.MaxRetries
	rc.BaseDelay = cfg.RetryBaseDelay
	rc.MaxDelay = cfg.RetryMaxDelay
	return rc
}

func PipelineOptions(cfg config.Config) pipeline.Options {
	return pipeline.Options{
		MinContentChars: cfg.MinContentChars,
		MaxDepth:        cfg.MaxDepth,
		Assembler: thread.AssemblerOptions{
			TopReplies:      cfg.TopReplies,
			MaxContextChars: cfg.MaxContextChars,
		},
		Workers:        cfg.Workers,
		PersistTimeout: cfg.PersistTimeout,
	}
}

func (a *App) Close() {
	if a != nil && a.DB != nil {
		a.DB.Close()
	}
}
