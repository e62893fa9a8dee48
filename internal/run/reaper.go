package run

import (
	"context"

	"github.com/jvs-project/taleforge/internal/hierarchy"
	"github.com/jvs-project/taleforge/pkg/idutil"
	"github.com/jvs-project/taleforge/pkg/model"
)

// Sweep runs §4.5.6's heartbeat reaper over every RUNNING or UNKNOWN run
// that records a worker queue and task id in its Meta, reconciling each
// one against the external task queue and cleaning up abandoned runs.
func (e *Engine) Sweep(ctx context.Context, projectID string) error {
	if e.taskQueue == nil {
		return nil
	}

	var candidates []*model.Run
	if err := e.store.Find(ctx, hierarchy.RunCollection, map[string]any{"trashed": false}, &candidates); err != nil {
		return err
	}

	activeQueues, err := e.taskQueue.ActiveWorkerQueues(ctx)
	if err != nil {
		return err
	}
	queueIsActive := make(map[string]bool, len(activeQueues))
	for _, q := range activeQueues {
		queueIsActive[q] = true
	}

	for _, r := range candidates {
		if r.Status != model.RunStatusRunning && r.Status != model.RunStatusUnknown {
			continue
		}

		workerQueue, _ := r.Meta["worker_queue"].(string)
		taskID, _ := r.Meta["task_id"].(string)
		if workerQueue == "" || taskID == "" {
			continue
		}

		if err := e.reapOne(ctx, projectID, r, workerQueue, taskID, queueIsActive[workerQueue]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) reapOne(ctx context.Context, projectID string, r *model.Run, workerQueue, taskID string, queueActive bool) error {
	// Step 2: worker queue vanished but the run still thinks it's running.
	if !queueActive {
		if r.Status == model.RunStatusRunning {
			return e.setStatus(ctx, projectID, r.ID, model.RunStatusUnknown, nil, map[string]any{"reason": "worker_queue_absent"})
		}
		return nil
	}

	// Step 3: the queue is alive, so check whether this run's task still is.
	activeTasks, err := e.taskQueue.ActiveTasks(ctx, workerQueue)
	if err != nil {
		return err
	}

	present := false
	for _, id := range activeTasks {
		if id == taskID {
			present = true
			break
		}
	}

	shouldDelete := false
	if !present {
		shouldDelete = true
	} else {
		running, checkErr := e.taskQueue.CheckOnRun(ctx, workerQueue, taskID)
		if checkErr != nil {
			return checkErr
		}
		if !running {
			shouldDelete = true
		}
	}

	// Step 4: issue cleanup with a short-lived credential.
	if shouldDelete {
		credential := idutil.NewV4()
		if cleanupErr := e.taskQueue.CleanupRun(ctx, workerQueue, taskID, credential); cleanupErr != nil {
			return cleanupErr
		}
	}
	return nil
}
