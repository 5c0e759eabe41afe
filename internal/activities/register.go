package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.RunAnnotationBatchActivity)
	w.RegisterActivity(a.ReplayBackupActivity)
	w.RegisterActivity(a.ResetFailedActivity)
}

// RegisterReplay registers only the replay activity, for the per-host queue.
func RegisterReplay(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ReplayBackupActivity)
}
