package workflows

import (
	"medthread/internal/activities"
	"medthread/internal/models"
)

type AnnotationRunInput struct {
	Filter models.Filter `json:"filter"`
	Limit  int           `json:"limit"`
	DryRun bool          `json:"dry_run"`
	// RunTimeoutMinutes bounds the annotation activity; 0 means six hours.
	RunTimeoutMinutes int `json:"run_timeout_minutes,omitempty"`
	// ReplayAttempts bounds the automatic replay after a failed persist; 0 means five.
	ReplayAttempts int32 `json:"replay_attempts,omitempty"`
}

const (
	StageAnnotating   = "annotating"
	StageReplaying    = "replaying"
	StageCompleted    = "completed"
	StageReplayFailed = "replay_failed"
	StageFailed       = "failed"
)

// RunProgress is the query answer and the workflow result.
type RunProgress struct {
	Stage        string                         `json:"stage"`
	Stats        models.RunStats                `json:"stats"`
	BackupPath   string                         `json:"backup_path,omitempty"`
	PersistError string                         `json:"persist_error,omitempty"`
	Replay       *activities.ReplayBackupOutput `json:"replay,omitempty"`
	Error        string                         `json:"error,omitempty"`
}
