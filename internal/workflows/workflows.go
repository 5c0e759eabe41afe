package workflows

import (
	"time"

	"medthread/internal/activities"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetRunProgress = "GetRunProgress"

const (
	defaultRunTimeout     = 6 * time.Hour
	defaultReplayAttempts = 5

	// how long a replay waits for the worker holding the backup to come back
	hostScheduleTimeout = time.Hour
)

// replayPolicy retries a replay patiently: the results are already paid for
// and sit in the backup file.
func replayPolicy(attempts int32) *temporal.RetryPolicy {
	if attempts <= 0 {
		attempts = defaultReplayAttempts
	}
	return &temporal.RetryPolicy{
		InitialInterval:        30 * time.Second,
		BackoffCoefficient:     2,
		MaximumInterval:        10 * time.Minute,
		MaximumAttempts:        attempts,
		NonRetryableErrorTypes: []string{activities.ErrTypeBackupMissing},
	}
}

// AnnotationRunWorkflow runs one batch. The batch activity is never retried
// because a retry would pay for every annotation again; a failed persist is
// recovered by replaying the backup the batch wrote.
func AnnotationRunWorkflow(ctx workflow.Context, input AnnotationRunInput) (RunProgress, error) {
	progress := RunProgress{Stage: StageAnnotating}
	if err := workflow.SetQueryHandler(ctx, QueryGetRunProgress, func() (RunProgress, error) {
		return progress, nil
	}); err != nil {
		return progress, err
	}

	timeout := defaultRunTimeout
	if input.RunTimeoutMinutes > 0 {
		timeout = time.Duration(input.RunTimeoutMinutes) * time.Minute
	}
	runCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    10 * time.Minute,
		WaitForCancellation: true,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var runOut activities.RunAnnotationBatchOutput
	err := workflow.ExecuteActivity(runCtx, "RunAnnotationBatchActivity", activities.RunAnnotationBatchInput{
		Filter: input.Filter,
		Limit:  input.Limit,
		DryRun: input.DryRun,
	}).Get(ctx, &runOut)
	progress.Stats = runOut.Stats
	progress.BackupPath = runOut.BackupPath
	if err != nil {
		progress.Stage = StageFailed
		progress.Error = err.Error()
		return progress, err
	}
	if runOut.PersistError == "" {
		progress.Stage = StageCompleted
		return progress, nil
	}

	progress.Stage = StageReplaying
	progress.PersistError = runOut.PersistError
	workflow.GetLogger(ctx).Warn("persist failed, replaying backup", "backup", runOut.BackupPath, "queue", runOut.HostQueue)
	replayOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy:         replayPolicy(input.ReplayAttempts),
	}
	if runOut.HostQueue != "" {
		replayOpts.TaskQueue = runOut.HostQueue
		replayOpts.ScheduleToStartTimeout = hostScheduleTimeout
	}
	replayCtx := workflow.WithActivityOptions(ctx, replayOpts)
	var replayOut activities.ReplayBackupOutput
	if err := workflow.ExecuteActivity(replayCtx, "ReplayBackupActivity", activities.ReplayBackupInput{
		BackupPath: runOut.BackupPath,
	}).Get(ctx, &replayOut); err != nil {
		progress.Stage = StageReplayFailed
		progress.Error = err.Error()
		return progress, err
	}
	progress.Replay = &replayOut
	progress.Stats.Persisted = replayOut.Stats.Inserted
	progress.Stage = StageCompleted
	return progress, nil
}

func ReplayBackupWorkflow(ctx workflow.Context, input activities.ReplayBackupInput) (activities.ReplayBackupOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy:         replayPolicy(0),
	})
	var out activities.ReplayBackupOutput
	if err := workflow.ExecuteActivity(ctx, "ReplayBackupActivity", input).Get(ctx, &out); err != nil {
		return out, err
	}
	return out, nil
}

func ResetFailedWorkflow(ctx workflow.Context, input activities.ResetFailedInput) (activities.ResetFailedOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	})
	var out activities.ResetFailedOutput
	if err := workflow.ExecuteActivity(ctx, "ResetFailedActivity", input).Get(ctx, &out); err != nil {
		return out, err
	}
	return out, nil
}
