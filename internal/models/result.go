package models

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusSkipped, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is allowed. Transitions are one-way out
// of pending, except that a failed item may be reset to pending manually.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessed || to == StatusSkipped || to == StatusFailed
	case StatusFailed:
		return to == StatusPending
	default:
		return false
	}
}

// ExtractionStatus is the per-item state row.
type ExtractionStatus struct {
	SourceItemID string    `json:"source_item_id"`
	Status       Status    `json:"status"`
	LogMessage   string    `json:"log_message,omitempty"`
	AttemptedAt  time.Time `json:"attempted_at"`
}

// ExtractionResult is produced once per attempted item, successful or not.
type ExtractionResult struct {
	SourceItemID string    `json:"source_item_id"`
	SourceKind   Kind      `json:"source_kind"`
	ThreadID     string    `json:"thread_id"`
	Community    string    `json:"community,omitempty"`
	Features     *Features `json:"features"`
	FieldIssues  []string  `json:"field_issues"`
	ModelUsed    string    `json:"model_used"`
	Tier         string    `json:"tier,omitempty"`
	CostUSD      float64   `json:"cost_usd"`
	TokensIn     int       `json:"tokens_in"`
	TokensOut    int       `json:"tokens_out"`
	ProcessingMS int64     `json:"processing_ms"`
	RawResponse  string    `json:"raw_response"`
	PromptHash   string    `json:"prompt_hash,omitempty"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	DepthFlagged bool      `json:"depth_flagged,omitempty"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// StatusUpdate derives the status row this result implies.
func (r ExtractionResult) StatusUpdate() ExtractionStatus {
	msg := r.Error
	if msg == "" && r.Status == StatusProcessed {
		msg = "annotated with " + r.ModelUsed
	}
	return ExtractionStatus{
		SourceItemID: r.SourceItemID,
		Status:       r.Status,
		LogMessage:   msg,
		AttemptedAt:  r.ProcessedAt,
	}
}

// MarshalJSON keeps collection fields total for downstream consumers. Failed
// and skipped results carry an empty feature record, never null.
func (r ExtractionResult) MarshalJSON() ([]byte, error) {
	type alias ExtractionResult
	if r.FieldIssues == nil {
		r.FieldIssues = []string{}
	}
	var f Features
	if r.Features != nil {
		f = *r.Features
	}
	f.EnsureLists()
	r.Features = &f
	return json.Marshal(alias(r))
}

// UnmarshalJSON restores the same guarantees when reading a backup.
func (r *ExtractionResult) UnmarshalJSON(b []byte) error {
	type alias ExtractionResult
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*r = ExtractionResult(a)
	if r.FieldIssues == nil {
		r.FieldIssues = []string{}
	}
	r.Features.EnsureLists()
	return nil
}

// RunStats summarises one orchestrator run.
type RunStats struct {
	RunID        string        `json:"run_id"`
	Exported     int           `json:"exported"`
	Pending      int           `json:"pending"`
	Processed    int           `json:"processed"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Unattempted  int           `json:"unattempted"`
	DepthFlagged int           `json:"depth_flagged"`
	Persisted    int64         `json:"persisted"`
	TotalCostUSD float64       `json:"total_cost_usd"`
	TokensIn     int           `json:"tokens_in"`
	TokensOut    int           `json:"tokens_out"`
	Elapsed      time.Duration `json:"elapsed"`
	BackupPath   string        `json:"backup_path,omitempty"`
	Cancelled    bool          `json:"cancelled"`
	DryRun       bool          `json:"dry_run"`
}

// Add folds one result into the counters.
func (s *RunStats) Add(r ExtractionResult) {
	switch r.Status {
	case StatusProcessed:
		s.Processed++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
	s.TotalCostUSD += r.CostUSD
	s.TokensIn += r.TokensIn
	s.TokensOut += r.TokensOut
}
