package activities

import (
	"context"
	"errors"
	"io/fs"

	"medthread/internal/logger"
	"medthread/internal/pipeline"
	"medthread/internal/util"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// Non-retryable application error types. Retrying either one cannot change
// the outcome.
const (
	ErrTypeConfiguration = "ConfigurationError"
	ErrTypeBackupMissing = "BackupMissing"
)

type Activities struct {
	orch      *pipeline.Orchestrator
	log       logger.Logger
	hostQueue string
}

func New(orch *pipeline.Orchestrator) *Activities {
	return &Activities{orch: orch, log: logger.Named("activities")}
}

// WithHostQueue returns a copy that reports q as the queue for replaying its
// backups. Backups live on local disk, so replays must run on this host.
func (a *Activities) WithHostQueue(q string) *Activities {
	cp := *a
	cp.hostQueue = q
	return &cp
}

// HostTaskQueue derives the per-host queue a worker listens on next to base.
func HostTaskQueue(base, host string) string {
	if host == "" {
		return base
	}
	return base + "@" + host
}

// RunAnnotationBatchActivity runs one batch. Progress is sent as the heartbeat
// detail so cancellation reaches the orchestrator between items.
func (a *Activities) RunAnnotationBatchActivity(ctx context.Context, in RunAnnotationBatchInput) (RunAnnotationBatchOutput, error) {
	orch := a.orch.WithDryRun(in.DryRun).WithProgress(func(p pipeline.Progress) {
		activity.RecordHeartbeat(ctx, p)
	})
	stats, err := orch.Run(ctx, in.Filter, in.Limit)
	out := RunAnnotationBatchOutput{Stats: stats, BackupPath: stats.BackupPath, HostQueue: a.hostQueue}

	var perr *pipeline.PersistenceError
	switch {
	case err == nil:
		return out, nil
	case errors.As(err, &perr):
		a.log.Warn().Str("run_id", stats.RunID).Str("backup", perr.BackupPath).Msg("persist failed, handing backup to replay")
		out.BackupPath = perr.BackupPath
		out.PersistError = perr.Error()
		return out, nil
	case errors.Is(err, util.ErrConfiguration):
		return out, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeConfiguration, err)
	default:
		return out, err
	}
}

func (a *Activities) ReplayBackupActivity(ctx context.Context, in ReplayBackupInput) (ReplayBackupOutput, error) {
	rs, err := a.orch.Replay(ctx, in.BackupPath)
	if errors.Is(err, fs.ErrNotExist) {
		return ReplayBackupOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeBackupMissing, err)
	}
	if err != nil {
		return ReplayBackupOutput{Stats: rs}, err
	}
	return ReplayBackupOutput{Stats: rs}, nil
}

func (a *Activities) ResetFailedActivity(ctx context.Context, in ResetFailedInput) (ResetFailedOutput, error) {
	n, err := a.orch.ResetFailed(ctx, in.Filter)
	if err != nil {
		return ResetFailedOutput{}, err
	}
	return ResetFailedOutput{Reset: n}, nil
}
