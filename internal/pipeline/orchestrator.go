// Package pipeline runs one annotation batch end to end: export, tree
// reconstruction, context assembly, annotation, backup, then persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"medthread/internal/annotate"
	"medthread/internal/backup"
	"medthread/internal/extraction"
	"medthread/internal/logger"
	"medthread/internal/metrics"
	"medthread/internal/models"
	"medthread/internal/storage"
	"medthread/internal/thread"
	"medthread/internal/util"

	"github.com/google/uuid"
)

type Store interface {
	ExportPending(ctx context.Context, f models.Filter, limit int) ([]models.SourceItem, error)
	Persist(ctx context.Context, b storage.PersistBatch) (storage.PersistOutcome, error)
	ResetFailed(ctx context.Context, f models.Filter) (int64, error)
	CountResults(ctx context.Context, ids []string) (int64, error)
}

type Annotator interface {
	Annotate(ctx context.Context, actx models.AnnotationContext) (models.ExtractionResult, error)
}

type BackupWriter interface {
	Write(f backup.File) (string, int64, error)
}

type Options struct {
	MinContentChars int
	MaxDepth        int
	Assembler       thread.AssemblerOptions
	// Workers share the annotator's limiter; 1 keeps the run single-stream.
	Workers        int
	PersistTimeout time.Duration
	DryRun         bool
}

// Progress is reported after every finished item. Callbacks are serialized.
type Progress struct {
	RunID     string  `json:"run_id"`
	Total     int     `json:"total"`
	Done      int     `json:"done"`
	Processed int     `json:"processed"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	CostUSD   float64 `json:"cost_usd"`
}

type ReplayStats struct {
	RunID           string `json:"run_id"`
	BackupPath      string `json:"backup_path"`
	Results         int    `json:"results"`
	Inserted        int64  `json:"inserted"`
	Conflicts       int64  `json:"conflicts"`
	StatusesApplied int64  `json:"statuses_applied"`
	Stored          int64  `json:"stored"`
}

type Orchestrator struct {
	store     Store
	annotator Annotator
	backup    BackupWriter
	opts      Options
	metrics   *metrics.Recorder
	log       logger.Logger
	progress  func(Progress)

	now      func() time.Time
	newRunID func() string
	sleep    func(context.Context, time.Duration) error
}

func NewOrchestrator(store Store, annotator Annotator, bw BackupWriter, opts Options, rec *metrics.Recorder) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Workers > 4 {
		opts.Workers = 4
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 2 * time.Minute
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = thread.DefaultMaxDepth
	}
	return &Orchestrator{
		store:     store,
		annotator: annotator,
		backup:    bw,
		opts:      opts,
		metrics:   rec,
		log:       logger.Named("pipeline"),
		now:       time.Now,
		newRunID:  uuid.NewString,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// WithProgress returns a copy that reports progress to fn.
func (o *Orchestrator) WithProgress(fn func(Progress)) *Orchestrator {
	cp := *o
	cp.progress = fn
	return &cp
}

// WithDryRun returns a copy that writes the backup but never the database.
func (o *Orchestrator) WithDryRun(dry bool) *Orchestrator {
	cp := *o
	cp.opts.DryRun = dry
	return &cp
}

// Run annotates up to limit pending items matching f. Cancelling ctx stops
// dispatch at the next item boundary; the in-flight call completes and
// everything accumulated is still backed up and persisted.
func (o *Orchestrator) Run(ctx context.Context, f models.Filter, limit int) (models.RunStats, error) {
	start := o.now()
	stats := models.RunStats{RunID: o.newRunID(), DryRun: o.opts.DryRun}
	if o.annotator == nil {
		return stats, fmt.Errorf("%w: no annotation provider configured", util.ErrConfiguration)
	}
	ctx = logger.WithRun(ctx, stats.RunID)
	log := logger.C(ctx, o.log)
	log.Info().Str("filter", f.String()).Int("limit", limit).Bool("dry_run", o.opts.DryRun).Msg("run started")

	items, err := o.store.ExportPending(ctx, f, limit)
	if err != nil {
		return stats, fmt.Errorf("export pending: %w", err)
	}
	stats.Exported = len(items)

	lookup := thread.NewLookup(items)
	stats.DepthFlagged = lookup.Resolve(thread.NewReconstructor(o.opts.MaxDepth, log))
	o.metrics.Flagged(stats.DepthFlagged)
	pending := lookup.Pending()
	stats.Pending = len(pending)
	log.Info().Int("exported", stats.Exported).Int("pending", stats.Pending).Int("threads", len(lookup.Threads())).
		Int("depth_flagged", stats.DepthFlagged).Msg("batch exported")

	results, fatal := o.annotateAll(ctx, stats.RunID, pending, lookup)
	for _, r := range results {
		stats.Add(r)
	}
	stats.Unattempted = len(pending) - len(results)
	stats.Cancelled = ctx.Err() != nil
	if stats.Cancelled {
		log.Warn().Int("unattempted", stats.Unattempted).Msg("run cancelled, saving partial batch")
	}
	if fatal != nil && len(results) == 0 {
		stats.Elapsed = o.now().Sub(start)
		return stats, fatal
	}

	path, size, err := o.backup.Write(backup.File{
		Metadata: backup.MetadataFromStats(stats, f, limit, extraction.PromptHash(), o.now()),
		Results:  results,
	})
	if err != nil {
		stats.Elapsed = o.now().Sub(start)
		log.Error().Err(err).Msg("backup failed, database left untouched")
		return stats, errors.Join(err, fatal)
	}
	stats.BackupPath = path
	o.metrics.Backup(size)
	log.Info().Str("path", path).Int("results", len(results)).Msg("backup written")

	if o.opts.DryRun {
		stats.Elapsed = o.now().Sub(start)
		o.logSummary(log, stats)
		return stats, fatal
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PersistTimeout)
	defer cancel()
	out, err := o.persistWithRetry(pctx, log, storage.PersistBatch{
		Run:     storage.RunRecord{Stats: stats, Filter: f, Source: "run"},
		Results: results,
	})
	stats.Elapsed = o.now().Sub(start)
	if err != nil {
		return stats, errors.Join(err, fatal)
	}
	stats.Persisted = out.Inserted
	o.logSummary(log, stats)
	return stats, fatal
}

func (o *Orchestrator) annotateAll(ctx context.Context, runID string, pending []models.SourceItem, lookup *thread.Lookup) ([]models.ExtractionResult, error) {
	asm := thread.NewAssembler(lookup, o.opts.Assembler)
	out := make([]models.ExtractionResult, len(pending))
	done := make([]bool, len(pending))

	var (
		mu       sync.Mutex
		fatal    error
		stopOnce sync.Once
		wg       sync.WaitGroup
	)
	stop := make(chan struct{})
	jobs := make(chan int)
	prog := Progress{RunID: runID, Total: len(pending)}
	log := logger.C(ctx, o.log)

	go func() {
		defer close(jobs)
		for i := range pending {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	for w := 0; w < o.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if stopped(stop) || ctx.Err() != nil {
					continue
				}
				res, err := o.annotateOne(ctx, pending[i], lookup, asm)
				var cerr *annotate.ConfigurationError
				if errors.As(err, &cerr) {
					stopOnce.Do(func() {
						mu.Lock()
						fatal = err
						mu.Unlock()
						close(stop)
						log.Error().Err(err).Msg("configuration error, stopping run")
					})
					continue
				}
				o.metrics.Item(string(res.Status))

				mu.Lock()
				out[i], done[i] = res, true
				prog.Done++
				switch res.Status {
				case models.StatusProcessed:
					prog.Processed++
				case models.StatusSkipped:
					prog.Skipped++
				case models.StatusFailed:
					prog.Failed++
				}
				prog.CostUSD += res.CostUSD
				if o.progress != nil {
					o.progress(prog)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	results := make([]models.ExtractionResult, 0, len(pending))
	for i := range pending {
		if done[i] {
			results = append(results, out[i])
		}
	}
	return results, fatal
}

func stopped(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// annotateOne skips content that cannot carry signal without calling the
// service. The annotation call itself is detached from cancellation so a paid
// request is never abandoned halfway.
func (o *Orchestrator) annotateOne(ctx context.Context, item models.SourceItem, lookup *thread.Lookup, asm *thread.Assembler) (models.ExtractionResult, error) {
	log := logger.C(ctx, o.log).With().Str("item_id", item.ID).Logger()
	content := strings.TrimSpace(item.Content())
	if n := util.RuneLen(content); n < o.opts.MinContentChars {
		log.Debug().Int("chars", n).Msg("skipping short item")
		return o.skipped(item, fmt.Sprintf("content below minimum length (%d < %d chars)", n, o.opts.MinContentChars)), nil
	}
	if !extraction.ShouldAnnotate(content, item.Community) {
		log.Debug().Str("community", item.Community).Msg("skipping item without medication keywords")
		return o.skipped(item, "no medication keywords in non-drug community"), nil
	}

	res, err := o.annotator.Annotate(context.WithoutCancel(ctx), asm.Build(item))
	if n, ok := lookup.Node(item.ID); ok && n.Flagged {
		res.DepthFlagged = true
	}
	return res, err
}

func (o *Orchestrator) skipped(item models.SourceItem, reason string) models.ExtractionResult {
	return models.ExtractionResult{
		SourceItemID: item.ID,
		SourceKind:   item.Kind,
		ThreadID:     item.ThreadID,
		Community:    item.Community,
		FieldIssues:  []string{},
		Status:       models.StatusSkipped,
		Error:        reason,
		ErrorKind:    "filtered",
		ProcessedAt:  o.now().UTC(),
	}
}

const persistAttempts = 2

func (o *Orchestrator) persistWithRetry(ctx context.Context, log logger.Logger, b storage.PersistBatch) (storage.PersistOutcome, error) {
	var lastErr error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		out, err := o.store.Persist(ctx, b)
		if err == nil {
			o.metrics.Persisted(out.Inserted)
			log.Info().Int64("inserted", out.Inserted).Int64("conflicts", out.Conflicts).
				Int64("statuses", out.StatusesApplied).Int("attempt", attempt).Msg("batch persisted")
			return out, nil
		}
		lastErr = err
		o.metrics.PersistFailed()
		log.Error().Err(err).Int("attempt", attempt).Msg("batch persist failed")
		if attempt < persistAttempts {
			if serr := o.sleep(ctx, time.Second); serr != nil {
				break
			}
		}
	}
	return storage.PersistOutcome{}, &PersistenceError{BackupPath: b.Run.Stats.BackupPath, Attempts: persistAttempts, Err: lastErr}
}

// Replay persists a backup file again. Rows already stored are left alone, so
// replaying the same file twice stores the same rows.
func (o *Orchestrator) Replay(ctx context.Context, path string) (ReplayStats, error) {
	f, err := backup.Read(path)
	if err != nil {
		return ReplayStats{}, err
	}
	md := f.Metadata
	ctx = logger.WithRun(ctx, md.RunID)
	log := logger.C(ctx, o.log)
	rs := ReplayStats{RunID: md.RunID, BackupPath: path, Results: len(f.Results)}

	stats := models.RunStats{
		RunID:        md.RunID,
		Processed:    md.Counts.Processed,
		Skipped:      md.Counts.Skipped,
		Failed:       md.Counts.Failed,
		Unattempted:  md.Counts.Unattempted,
		TotalCostUSD: md.TotalCostUSD,
		TokensIn:     md.TokensIn,
		TokensOut:    md.TokensOut,
		Cancelled:    md.Cancelled,
		BackupPath:   path,
	}
	out, err := o.persistWithRetry(ctx, log, storage.PersistBatch{
		Run:     storage.RunRecord{Stats: stats, Filter: md.Filter, Source: "replay"},
		Results: f.Results,
	})
	if err != nil {
		return rs, err
	}
	rs.Inserted, rs.Conflicts, rs.StatusesApplied = out.Inserted, out.Conflicts, out.StatusesApplied

	ids := make([]string, 0, len(f.Results))
	for _, r := range f.Results {
		if r.Status == models.StatusProcessed {
			ids = append(ids, r.SourceItemID)
		}
	}
	if rs.Stored, err = o.store.CountResults(ctx, ids); err != nil {
		return rs, err
	}
	log.Info().Str("path", path).Int64("inserted", rs.Inserted).Int64("stored", rs.Stored).Msg("backup replayed")
	return rs, nil
}

// ResetFailed returns failed items matching f to pending.
func (o *Orchestrator) ResetFailed(ctx context.Context, f models.Filter) (int64, error) {
	n, err := o.store.ResetFailed(ctx, f)
	if err != nil {
		return 0, err
	}
	o.log.Info().Str("filter", f.String()).Int64("reset", n).Msg("failed items reset to pending")
	return n, nil
}

func (o *Orchestrator) logSummary(log logger.Logger, s models.RunStats) {
	log.Info().
		Int("processed", s.Processed).
		Int("skipped", s.Skipped).
		Int("failed", s.Failed).
		Int("unattempted", s.Unattempted).
		Int64("persisted", s.Persisted).
		Float64("cost_usd", s.TotalCostUSD).
		Dur("elapsed", s.Elapsed).
		Str("backup", s.BackupPath).
		Bool("cancelled", s.Cancelled).
		Msg("run finished")
}
