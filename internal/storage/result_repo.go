package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"medthread/internal/models"
)

// RunRecord is the ledger row written alongside a batch.
type RunRecord struct {
	Stats  models.RunStats
	Filter models.Filter
	Source string
}

type PersistBatch struct {
	Run     RunRecord
	Results []models.ExtractionResult
}

type PersistOutcome struct {
	// Inserted counts new result rows; replays of known items insert nothing.
	Inserted        int64 `json:"inserted"`
	Conflicts       int64 `json:"conflicts"`
	StatusesApplied int64 `json:"statuses_applied"`
}

type ResultRepo struct {
	db *DB
}

func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

const insertResultSQL = `
INSERT INTO extraction_results (
  source_item_id, source_kind, thread_id, run_id, features, drugs_mentioned, primary_drug, field_issues,
  model_used, tier, cost_usd, tokens_in, tokens_out, processing_ms, raw_response, prompt_hash,
  depth_flagged, processed_at)
VALUES ($1, $2, $3, NULLIF($4,''), $5::jsonb, $6::jsonb, NULLIF($7,''), $8::jsonb,
  $9, NULLIF($10,''), $11, $12, $13, $14, $15, NULLIF($16,''), $17, $18)
ON CONFLICT (source_item_id) DO NOTHING`

const upsertStatusSQL = `
INSERT INTO extraction_status (source_item_id, status, log_message, attempted_at, updated_at)
VALUES ($1, $2, NULLIF($3,''), $4, NOW())
ON CONFLICT (source_item_id)
DO UPDATE SET status = EXCLUDED.status, log_message = EXCLUDED.log_message,
  attempted_at = EXCLUDED.attempted_at, updated_at = NOW()
WHERE extraction_status.status <> 'processed'`

const upsertRunSQL = `
INSERT INTO annotation_runs (run_id, source, filter, backup_path, processed, skipped, failed, unattempted,
  persisted, total_cost_usd, tokens_in, tokens_out, cancelled, updated_at)
VALUES ($1, $2, $3::jsonb, NULLIF($4,''), $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
ON CONFLICT (run_id)
DO UPDATE SET persisted = annotation_runs.persisted + EXCLUDED.persisted,
  backup_path = COALESCE(EXCLUDED.backup_path, annotation_runs.backup_path), updated_at = NOW()`

// Persist writes one batch in a single transaction: successful results keyed by
// source item (existing rows untouched), a status row per attempted item that
// never downgrades processed, and the run ledger row.
func (r *ResultRepo) Persist(ctx context.Context, b PersistBatch) (PersistOutcome, error) {
	var out PersistOutcome
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return out, fmt.Errorf("begin persist tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var successes int64
	for _, res := range b.Results {
		if res.Status != models.StatusProcessed || res.Features == nil {
			continue
		}
		successes++
		args, err := resultArgs(b.Run.Stats.RunID, res)
		if err != nil {
			return PersistOutcome{}, err
		}
		tag, err := tx.Exec(ctx, insertResultSQL, args...)
		if err != nil {
			return PersistOutcome{}, fmt.Errorf("insert result %s: %w", res.SourceItemID, err)
		}
		out.Inserted += tag.RowsAffected()
	}
	out.Conflicts = successes - out.Inserted

	for _, res := range b.Results {
		st := res.StatusUpdate()
		if !st.Status.Valid() || st.Status == models.StatusPending {
			continue
		}
		tag, err := tx.Exec(ctx, upsertStatusSQL, st.SourceItemID, string(st.Status), st.LogMessage, st.AttemptedAt)
		if err != nil {
			return PersistOutcome{}, fmt.Errorf("upsert status %s: %w", st.SourceItemID, err)
		}
		out.StatusesApplied += tag.RowsAffected()
	}

	if b.Run.Stats.RunID != "" {
		filter, err := json.Marshal(b.Run.Filter)
		if err != nil {
			return PersistOutcome{}, fmt.Errorf("encode run filter: %w", err)
		}
		source := b.Run.Source
		if source == "" {
			source = "run"
		}
		s := b.Run.Stats
		if _, err := tx.Exec(ctx, upsertRunSQL, s.RunID, source, string(filter), s.BackupPath, s.Processed, s.Skipped,
			s.Failed, s.Unattempted, out.Inserted, s.TotalCostUSD, s.TokensIn, s.TokensOut, s.Cancelled); err != nil {
			return PersistOutcome{}, fmt.Errorf("upsert run %s: %w", s.RunID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return PersistOutcome{}, fmt.Errorf("commit persist tx: %w", err)
	}
	return out, nil
}

func resultArgs(runID string, res models.ExtractionResult) ([]any, error) {
	f := *res.Features
	f.EnsureLists()
	features, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode features %s: %w", res.SourceItemID, err)
	}
	drugs, err := json.Marshal(f.DrugsMentioned)
	if err != nil {
		return nil, fmt.Errorf("encode drugs %s: %w", res.SourceItemID, err)
	}
	issues := res.FieldIssues
	if issues == nil {
		issues = []string{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return nil, fmt.Errorf("encode field issues %s: %w", res.SourceItemID, err)
	}
	primary := ""
	if f.PrimaryDrug != nil {
		primary = *f.PrimaryDrug
	}
	return []any{
		res.SourceItemID, string(res.SourceKind), res.ThreadID, runID, string(features), string(drugs), primary,
		string(issuesJSON), res.ModelUsed, res.Tier, res.CostUSD, res.TokensIn, res.TokensOut, res.ProcessingMS,
		res.RawResponse, res.PromptHash, res.DepthFlagged, res.ProcessedAt,
	}, nil
}

// ResetFailed moves failed items matching f back to pending and returns how many moved.
func (r *ResultRepo) ResetFailed(ctx context.Context, f models.Filter) (int64, error) {
	threads := f.ThreadIDs
	if threads == nil {
		threads = []string{}
	}
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE extraction_status s
SET status = 'pending', log_message = 'reset from failed', updated_at = NOW()
FROM source_items i
WHERE i.id = s.source_item_id
  AND s.status = 'failed'
  AND ($1 = '' OR i.community = $1)
  AND (cardinality($2::text[]) = 0 OR i.thread_id = ANY($2::text[]))`, f.Community, threads)
	if err != nil {
		return 0, fmt.Errorf("reset failed items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountResults reports how many of ids have a stored result.
func (r *ResultRepo) CountResults(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM extraction_results WHERE source_item_id = ANY($1::text[])`, ids).Scan(&n); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}
