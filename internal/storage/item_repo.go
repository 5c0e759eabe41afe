package storage

import (
	"context"
	"fmt"
	"time"

	"medthread/internal/logger"
	"medthread/internal/models"
)

type ItemRepo struct {
	db  *DB
	log logger.Logger
}

func NewItemRepo(db *DB) *ItemRepo {
	return &ItemRepo{db: db, log: logger.Named("storage")}
}

const exportSQL = `
WITH pending AS (
  SELECT i.id, i.thread_id
  FROM source_items i
  LEFT JOIN extraction_status s ON s.source_item_id = i.id
  WHERE COALESCE(s.status, 'pending') = 'pending'
    AND ($1 = '' OR i.community = $1)
    AND (cardinality($2::text[]) = 0 OR i.thread_id = ANY($2::text[]))
    AND ($3::timestamptz IS NULL OR i.created_at >= $3::timestamptz)
    AND (NOT $4 OR i.kind = 'post')
  ORDER BY i.created_at, i.id
  LIMIT NULLIF($5::int, 0)
)
SELECT i.id, i.kind, COALESCE(i.parent_id,''), i.thread_id, COALESCE(i.author_tag,''),
       COALESCE(i.title,''), i.body, i.score, i.community, i.created_at,
       (p.id IS NOT NULL) AS pending
FROM source_items i
LEFT JOIN pending p ON p.id = i.id
WHERE i.thread_id IN (SELECT thread_id FROM pending)
   OR i.id IN (SELECT thread_id FROM pending)
ORDER BY i.thread_id, i.created_at, i.id`

// ExportPending returns, in one round trip, up to limit pending items matching
// f together with every other item of their threads as context. Items that
// fail normalization are logged and dropped.
func (r *ItemRepo) ExportPending(ctx context.Context, f models.Filter, limit int) ([]models.SourceItem, error) {
	threads := f.ThreadIDs
	if threads == nil {
		threads = []string{}
	}
	if limit < 0 {
		limit = 0
	}
	rows, err := r.db.Pool.Query(ctx, exportSQL, f.Community, threads, f.Since, f.PostsOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("export pending items: %w", err)
	}
	defer rows.Close()

	out := make([]models.SourceItem, 0)
	for rows.Next() {
		var it models.SourceItem
		var kind string
		if err := rows.Scan(&it.ID, &kind, &it.ParentID, &it.ThreadID, &it.AuthorTag, &it.Title, &it.Body,
			&it.Score, &it.Community, &it.CreatedAt, &it.Pending); err != nil {
			return nil, fmt.Errorf("scan source item: %w", err)
		}
		it.Kind = models.Kind(kind)
		norm, err := it.Normalize()
		if err != nil {
			r.log.Warn().Err(err).Str("item_id", it.ID).Msg("dropping malformed source item")
			continue
		}
		out = append(out, norm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source items: %w", err)
	}
	return out, nil
}

// UpsertItems loads an already-materialized batch from the content source.
func (r *ItemRepo) UpsertItems(ctx context.Context, items []models.SourceItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin items tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var n int64
	for _, it := range items {
		parent := it.ParentID
		if it.Kind == models.KindComment && it.ParentIsRoot && parent == "" {
			parent = it.ThreadID
		}
		created := it.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		tag, err := tx.Exec(ctx, `
INSERT INTO source_items (id, kind, parent_id, thread_id, author_tag, title, body, score, community, created_at)
VALUES ($1, $2, NULLIF($3,''), $4, NULLIF($5,''), NULLIF($6,''), $7, $8, $9, $10)
ON CONFLICT (id)
DO UPDATE SET
  body = EXCLUDED.body,
  score = EXCLUDED.score,
  author_tag = COALESCE(EXCLUDED.author_tag, source_items.author_tag),
  title = COALESCE(EXCLUDED.title, source_items.title)`,
			it.ID, string(it.Kind), parent, it.ThreadID, it.AuthorTag, it.Title, it.Body, it.Score, it.Community, created)
		if err != nil {
			return 0, fmt.Errorf("upsert source item %s: %w", it.ID, err)
		}
		n += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit items tx: %w", err)
	}
	return n, nil
}
