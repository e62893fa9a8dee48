// Package jobqueue is the opaque job-dispatch collaborator the Run Engine
// talks to: one call starts a run's job on an external worker, and a
// separate query surface lets the heartbeat reaper ask which workers and
// tasks are still alive.
package jobqueue

import "context"

// JobHandle identifies a dispatched job for later correlation with
// status-update events.
type JobHandle struct {
	JobID       string
	WorkerQueue string
}

// JobRunner dispatches a recorded run's job to an external task queue.
type JobRunner interface {
	// Dispatch starts entrypoint for runID/projectID and returns a handle
	// to the job. entrypoint defaults to "run.sh" per §4.5.4.
	Dispatch(ctx context.Context, runID, projectID, entrypoint string) (*JobHandle, error)
}

// TaskQueue answers the heartbeat reaper's questions about which worker
// queues and tasks are currently alive (§4.5.6).
type TaskQueue interface {
	// ActiveWorkerQueues lists worker queues currently known to the
	// scheduler.
	ActiveWorkerQueues(ctx context.Context) ([]string, error)

	// ActiveTasks lists task ids currently active on workerQueue.
	ActiveTasks(ctx context.Context, workerQueue string) ([]string, error)

	// CheckOnRun asks the worker running taskID on workerQueue whether it
	// still considers the run live, bounded to a 60s probe per spec.
	CheckOnRun(ctx context.Context, workerQueue, taskID string) (running bool, err error)

	// CleanupRun issues a short-lived-credentialed cleanup task for
	// taskID on workerQueue.
	CleanupRun(ctx context.Context, workerQueue, taskID, credential string) error
}
