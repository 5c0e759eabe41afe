package activities

import (
	"medthread/internal/models"
	"medthread/internal/pipeline"
)

type RunAnnotationBatchInput struct {
	Filter models.Filter `json:"filter"`
	Limit  int           `json:"limit"`
	DryRun bool          `json:"dry_run"`
}

// RunAnnotationBatchOutput carries a persistence failure as data so the
// workflow can schedule a replay of the backup instead of re-annotating.
// HostQueue names the task queue of the worker that holds the backup file.
type RunAnnotationBatchOutput struct {
	Stats        models.RunStats `json:"stats"`
	BackupPath   string          `json:"backup_path,omitempty"`
	PersistError string          `json:"persist_error,omitempty"`
	HostQueue    string          `json:"host_queue,omitempty"`
}

type ReplayBackupInput struct {
	BackupPath string `json:"backup_path"`
}

type ReplayBackupOutput struct {
	Stats pipeline.ReplayStats `json:"stats"`
}

type ResetFailedInput struct {
	Filter models.Filter `json:"filter"`
}

type ResetFailedOutput struct {
	Reset int64 `json:"reset"`
}
