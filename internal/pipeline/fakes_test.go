package pipeline

import (
	"context"
	"os"
	"sync"

	"medthread/internal/models"
	"medthread/internal/storage"
)

// memStore mimics the repositories: results insert-or-ignore, statuses never
// leave processed.
type memStore struct {
	mu           sync.Mutex
	items        []models.SourceItem
	results      map[string]models.ExtractionResult
	statuses     map[string]models.Status
	persistErrs  []error
	persistCalls int
	backupSeen   []bool
	resetCalls   int
}

func newMemStore(items ...models.SourceItem) *memStore {
	return &memStore{
		items:    items,
		results:  map[string]models.ExtractionResult{},
		statuses: map[string]models.Status{},
	}
}

func (m *memStore) ExportPending(_ context.Context, _ models.Filter, _ int) ([]models.SourceItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SourceItem, 0, len(m.items))
	for _, it := range m.items {
		norm, err := it.Normalize()
		if err != nil {
			continue
		}
		st, ok := m.statuses[norm.ID]
		norm.Pending = !ok || st == models.StatusPending
		out = append(out, norm)
	}
	return out, nil
}

func (m *memStore) Persist(_ context.Context, b storage.PersistBatch) (storage.PersistOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistCalls++
	_, statErr := os.Stat(b.Run.Stats.BackupPath)
	m.backupSeen = append(m.backupSeen, b.Run.Stats.BackupPath != "" && statErr == nil)
	if len(m.persistErrs) > 0 {
		err := m.persistErrs[0]
		m.persistErrs = m.persistErrs[1:]
		if err != nil {
			return storage.PersistOutcome{}, err
		}
	}
	var out storage.PersistOutcome
	for _, r := range b.Results {
		if r.Status != models.StatusProcessed || r.Features == nil {
			continue
		}
		if _, ok := m.results[r.SourceItemID]; ok {
			out.Conflicts++
			continue
		}
		m.results[r.SourceItemID] = r
		out.Inserted++
	}
	for _, r := range b.Results {
		if m.statuses[r.SourceItemID] == models.StatusProcessed {
			continue
		}
		m.statuses[r.SourceItemID] = r.Status
		out.StatusesApplied++
	}
	return out, nil
}

func (m *memStore) ResetFailed(_ context.Context, _ models.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCalls++
	var n int64
	for id, st := range m.statuses {
		if st == models.StatusFailed {
			m.statuses[id] = models.StatusPending
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountResults(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.results[id]; ok {
			n++
		}
	}
	return n, nil
}

func (m *memStore) resultCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

// funcAnnotator adapts a function and counts calls.
type funcAnnotator struct {
	mu    sync.Mutex
	calls int
	seen  []models.AnnotationContext
	fn    func(ctx context.Context, actx models.AnnotationContext) (models.ExtractionResult, error)
}

func (f *funcAnnotator) Annotate(ctx context.Context, actx models.AnnotationContext) (models.ExtractionResult, error) {
	f.mu.Lock()
	f.calls++
	f.seen = append(f.seen, actx)
	f.mu.Unlock()
	return f.fn(ctx, actx)
}

func processedResult(actx models.AnnotationContext) models.ExtractionResult {
	return models.ExtractionResult{
		SourceItemID: actx.Item.ID,
		SourceKind:   actx.Item.Kind,
		ThreadID:     actx.Item.ThreadID,
		Features:     models.NewFeatures(),
		FieldIssues:  []string{},
		ModelUsed:    "small",
		Status:       models.StatusProcessed,
		CostUSD:      0.001,
	}
}
