// Package backup writes and reads the per-run result file that precedes every
// database write.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"medthread/internal/logger"
	"medthread/internal/models"
	"medthread/internal/util"
)

const timestampLayout = "20060102_150405"

type Counts struct {
	Exported     int `json:"exported"`
	Pending      int `json:"pending"`
	Processed    int `json:"processed"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
	Unattempted  int `json:"unattempted"`
	DepthFlagged int `json:"depth_flagged"`
}

type Metadata struct {
	RunID        string        `json:"run_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Filter       models.Filter `json:"filter"`
	Limit        int           `json:"limit"`
	PromptHash   string        `json:"prompt_hash"`
	Counts       Counts        `json:"counts"`
	TotalCostUSD float64       `json:"total_cost_usd"`
	TokensIn     int           `json:"tokens_in"`
	TokensOut    int           `json:"tokens_out"`
	Cancelled    bool          `json:"cancelled"`
}

// File is the on-disk layout.
type File struct {
	Metadata Metadata                  `json:"metadata"`
	Results  []models.ExtractionResult `json:"results"`
}

// MetadataFromStats fills counts and totals from a run summary.
func MetadataFromStats(s models.RunStats, f models.Filter, limit int, promptHash string, ts time.Time) Metadata {
	return Metadata{
		RunID:      s.RunID,
		Timestamp:  ts.UTC(),
		Filter:     f,
		Limit:      limit,
		PromptHash: promptHash,
		Counts: Counts{
			Exported:     s.Exported,
			Pending:      s.Pending,
			Processed:    s.Processed,
			Skipped:      s.Skipped,
			Failed:       s.Failed,
			Unattempted:  s.Unattempted,
			DepthFlagged: s.DepthFlagged,
		},
		TotalCostUSD: s.TotalCostUSD,
		TokensIn:     s.TokensIn,
		TokensOut:    s.TokensOut,
		Cancelled:    s.Cancelled,
	}
}

// FileName is annotation_backup[_<community>]_<YYYYMMDD_HHMMSS>.json.
func FileName(community string, ts time.Time) string {
	name := "annotation_backup"
	if tok := util.SafeFileToken(community); tok != "" {
		name += "_" + tok
	}
	return name + "_" + ts.UTC().Format(timestampLayout) + ".json"
}

type Writer struct {
	Dir string
	// Fallback is tried when Dir cannot be written. Empty means os.TempDir().
	Fallback string
	log      logger.Logger
}

func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, log: logger.Named("backup")}
}

// Write stores f and returns the final path and size. If neither directory is
// writable the error wraps util.ErrBackup and nothing may be persisted.
func (w *Writer) Write(f File) (string, int64, error) {
	if f.Results == nil {
		f.Results = []models.ExtractionResult{}
	}
	if f.Metadata.Timestamp.IsZero() {
		f.Metadata.Timestamp = time.Now().UTC()
	}
	name := FileName(f.Metadata.Filter.Community, f.Metadata.Timestamp)

	fallback := w.Fallback
	if fallback == "" {
		fallback = os.TempDir()
	}
	var errs []error
	for i, dir := range []string{w.Dir, fallback} {
		if dir == "" {
			continue
		}
		path := uniquePath(filepath.Join(dir, name), f.Metadata.RunID)
		if err := util.WriteJSONAtomic(path, f); err != nil {
			errs = append(errs, err)
			if i == 0 {
				w.log.Error().Err(err).Str("dir", dir).Str("fallback", fallback).Msg("backup dir not writable, trying fallback")
			}
			continue
		}
		var size int64
		if st, err := os.Stat(path); err == nil {
			size = st.Size()
		}
		return path, size, nil
	}
	return "", 0, fmt.Errorf("%w: %v", util.ErrBackup, errors.Join(errs...))
}

// uniquePath keeps two runs started in the same second from overwriting each other.
func uniquePath(path, runID string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	suffix := util.SafeFileToken(runID)
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	if suffix == "" {
		suffix = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return path[:len(path)-len(ext)] + "_" + suffix + ext
}

// Read loads a backup written by Write.
func Read(path string) (File, error) {
	var f File
	if err := util.ReadJSON(path, &f); err != nil {
		return File{}, err
	}
	if f.Results == nil {
		f.Results = []models.ExtractionResult{}
	}
	return f, nil
}
