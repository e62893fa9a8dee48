// Package run implements the Run Engine (C5): creating, starting,
// deleting and tracking the lifecycle of run working copies under a
// project's Runs Root, plus the heartbeat reaper that reconciles run
// status against the external task queue.
package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jvs-project/taleforge/internal/audit"
	"github.com/jvs-project/taleforge/internal/docstore"
	"github.com/jvs-project/taleforge/internal/engine"
	"github.com/jvs-project/taleforge/internal/hierarchy"
	"github.com/jvs-project/taleforge/internal/jobqueue"
	"github.com/jvs-project/taleforge/internal/pathlayout"
	"github.com/jvs-project/taleforge/pkg/errclass"
	"github.com/jvs-project/taleforge/pkg/idutil"
	"github.com/jvs-project/taleforge/pkg/metrics"
	"github.com/jvs-project/taleforge/pkg/model"
	"github.com/jvs-project/taleforge/pkg/webhook"
)

// credentialTTL bounds the lifetime of a job's bearer credential once its
// run reaches a terminal state, per §4.5.5.
const credentialTTL = time.Hour

// Engine orchestrates run creation, start and lifecycle tracking for one
// project.
type Engine struct {
	store       docstore.Adapter
	auditLogger *audit.FileAppender
	engineType  model.EngineType
	storageRoot string
	jobRunner   jobqueue.JobRunner
	taskQueue   jobqueue.TaskQueue
	metrics     *metrics.Registry
	notifier    *webhook.Client
}

// NewEngine builds a Run Engine backed by store for metadata and
// storageRoot for sharded run working copies. jobRunner dispatches runs to
// an external task queue (§4.5.4); taskQueue answers the heartbeat
// reaper's liveness questions (§4.5.6). Either may be nil if the caller
// never invokes Start or Sweep.
func NewEngine(store docstore.Adapter, storageRoot string, engineType model.EngineType, auditLogPath string, jobRunner jobqueue.JobRunner, taskQueue jobqueue.TaskQueue) *Engine {
	return &Engine{
		store:       store,
		storageRoot: storageRoot,
		engineType:  engineType,
		auditLogger: audit.NewFileAppender(auditLogPath),
		jobRunner:   jobRunner,
		taskQueue:   taskQueue,
	}
}

// WithMetrics attaches a metrics.Registry that Create/Delete/Start report
// operation outcomes to, returning the same engine for chaining.
func (e *Engine) WithMetrics(reg *metrics.Registry) *Engine {
	e.metrics = reg
	return e
}

// WithNotifier attaches a webhook.Client that run lifecycle transitions are
// delivered to, returning the same engine for chaining.
func (e *Engine) WithNotifier(client *webhook.Client) *Engine {
	e.notifier = client
	return e
}

// Create runs §4.5.2's 8-step protocol: it clones versionID's workspace
// into a new run under rootID, symlinks back to the source version, and
// increments the version's reference count.
func (e *Engine) Create(ctx context.Context, rootID, projectID, versionID, name string, allowRename bool) (_ *model.Run, err error) {
	if e.metrics != nil {
		defer func() { e.metrics.ObserveRunOp("create", err) }()
	}

	versionsRoot, err := pathlayout.VersionsRootDir(e.storageRoot, projectID)
	if err != nil {
		return nil, err
	}
	runsRoot, err := pathlayout.RunsRootDir(e.storageRoot, projectID)
	if err != nil {
		return nil, err
	}

	// Step 1: the version must exist and resolve to its workspace.
	var v model.Version
	if loadErr := e.store.Load(ctx, hierarchy.VersionCollection, versionID, &v); loadErr != nil {
		return nil, loadErr
	}
	sourceDir := pathlayout.VersionDir(versionsRoot, versionID)
	if _, statErr := os.Stat(sourceDir); statErr != nil {
		return nil, errclass.ErrNotFound.WithMessagef("version %s payload missing: %v", versionID, statErr)
	}

	if name == "" {
		name = time.Now().UTC().Format("Mon Jan 2 15:04:05 2006")
	}

	// Step 2: name sanity against sibling runs.
	resolvedName, nameErr := hierarchy.ResolveNameIn(ctx, e.store, hierarchy.RunCollection, rootID, name, allowRename)
	if nameErr != nil {
		return nil, nameErr
	}

	// Step 3: create the run subdir.
	runID := idutil.NewObjectID()
	runDir := pathlayout.RunDir(runsRoot, runID)
	if mkErr := os.MkdirAll(runDir, 0755); mkErr != nil {
		return nil, errclass.ErrFilesystemError.WithMessagef("create run dir: %v", mkErr)
	}
	cleanup := func() { os.RemoveAll(runDir) }

	// Step 5: symlink back to the source version directory.
	if symErr := linkToVersion(runDir, sourceDir); symErr != nil {
		cleanup()
		return nil, symErr
	}

	// Step 6: snapshot walk (nil, version.workspace, run.workspace) — clone
	// only the version's workspace/ subtree into the run's working copy,
	// not its manifest/descriptor/.READY control-plane files.
	workspaceDir := filepath.Join(runDir, "workspace")
	if mkErr := os.MkdirAll(workspaceDir, 0755); mkErr != nil {
		cleanup()
		return nil, errclass.ErrFilesystemError.WithMessagef("create run workspace: %v", mkErr)
	}
	clone := engine.NewEngine(e.engineType)
	if _, cloneErr := clone.Clone(pathlayout.WorkspaceDir(sourceDir), workspaceDir); cloneErr != nil {
		cleanup()
		return nil, errclass.ErrFilesystemError.WithMessagef("clone run workspace: %v", cloneErr)
	}

	// Step 4 + 7: persist the metadata record and the .status sidecar.
	now := time.Now().UTC()
	r := &model.Run{
		ID:           runID,
		RootID:       rootID,
		Name:         resolvedName,
		FSPath:       runDir,
		RunVersionID: versionID,
		Status:       model.RunStatusUnknown,
		Created:      now,
		Updated:      now,
	}
	if saveErr := e.store.Save(ctx, hierarchy.RunCollection, runID, r); saveErr != nil {
		cleanup()
		return nil, saveErr
	}
	if writeErr := writeStatusFile(runDir, model.RunStatusUnknown); writeErr != nil {
		cleanup()
		e.store.Remove(ctx, hierarchy.RunCollection, runID)
		return nil, writeErr
	}

	// Step 8: bump the source version's reference count, inside its
	// parent Versions Root's critical section so a concurrent version
	// delete can never observe RefCount==0 and trash a version this run
	// now depends on.
	if adjErr := hierarchy.WithCriticalSection(ctx, e.store, v.RootID, func(ctx context.Context) error {
		return hierarchy.AdjustRefCount(ctx, e.store, versionID, 1)
	}); adjErr != nil {
		cleanup()
		e.store.Remove(ctx, hierarchy.RunCollection, runID)
		return nil, adjErr
	}

	_ = e.auditLogger.Append(model.EventRunCreate, projectID, versionID, runID, map[string]any{"name": resolvedName})
	if e.metrics != nil {
		var ver model.Version
		if loadErr := e.store.Load(ctx, hierarchy.VersionCollection, versionID, &ver); loadErr == nil {
			e.metrics.SetVersionRefCount(versionID, ver.RefCount)
		}
	}
	if e.notifier != nil {
		_ = e.notifier.SendRunCreated(projectID, versionID, runID, resolvedName)
	}

	return r, nil
}

// linkToVersion creates the "version" symlink inside runDir pointing at
// sourceDir, relative so the run tree stays portable if storageRoot moves.
func linkToVersion(runDir, sourceDir string) error {
	rel, err := filepath.Rel(runDir, sourceDir)
	if err != nil {
		return errclass.ErrFilesystemError.WithMessagef("relativize version link: %v", err)
	}
	if symErr := os.Symlink(rel, filepath.Join(runDir, "version")); symErr != nil {
		return errclass.ErrFilesystemError.WithMessagef("symlink version: %v", symErr)
	}
	return nil
}

// Delete moves a run's working copy to trash, removes its metadata record
// and releases its hold on the source version, per §4.5.3.
func (e *Engine) Delete(ctx context.Context, projectID, runID string) (err error) {
	if e.metrics != nil {
		defer func() { e.metrics.ObserveRunOp("delete", err) }()
	}

	r, getErr := e.Get(ctx, runID)
	if getErr != nil {
		return getErr
	}

	runsRoot, layoutErr := pathlayout.RunsRootDir(e.storageRoot, projectID)
	if layoutErr != nil {
		return layoutErr
	}
	if trashErr := pathlayout.MoveToTrash(runsRoot, runID, r.FSPath); trashErr != nil && !os.IsNotExist(trashErr) {
		return trashErr
	}

	if remErr := e.store.Remove(ctx, hierarchy.RunCollection, runID); remErr != nil {
		return remErr
	}

	if r.RunVersionID != "" {
		var ver model.Version
		if loadErr := e.store.Load(ctx, hierarchy.VersionCollection, r.RunVersionID, &ver); loadErr != nil {
			return loadErr
		}
		if adjErr := hierarchy.WithCriticalSection(ctx, e.store, ver.RootID, func(ctx context.Context) error {
			return hierarchy.AdjustRefCount(ctx, e.store, r.RunVersionID, -1)
		}); adjErr != nil {
			return adjErr
		}
		if e.metrics != nil {
			var updated model.Version
			if loadErr := e.store.Load(ctx, hierarchy.VersionCollection, r.RunVersionID, &updated); loadErr == nil {
				e.metrics.SetVersionRefCount(r.RunVersionID, updated.RefCount)
			}
		}
	}

	_ = e.auditLogger.Append(model.EventRunDelete, projectID, r.RunVersionID, runID, nil)
	if e.notifier != nil {
		_ = e.notifier.SendRunDeleted(projectID, r.RunVersionID, runID)
	}
	return nil
}

// Get loads a single run's metadata record.
func (e *Engine) Get(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	if err := e.store.Load(ctx, hierarchy.RunCollection, runID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns every non-trashed run registered under rootID.
func (e *Engine) List(ctx context.Context, rootID string) ([]*model.Run, error) {
	var runs []*model.Run
	if err := e.store.Find(ctx, hierarchy.RunCollection, map[string]any{"root_id": rootID, "trashed": false}, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Start dispatches runID's job to the external task queue, per §4.5.4.
// entrypoint defaults to "run.sh" when empty.
func (e *Engine) Start(ctx context.Context, projectID, runID, entrypoint string) (_ *jobqueue.JobHandle, err error) {
	if e.metrics != nil {
		defer func() { e.metrics.ObserveRunOp("start", err) }()
	}

	if e.jobRunner == nil {
		return nil, errclass.ErrConflict.WithMessage("no job runner configured")
	}

	handle, err := e.jobRunner.Dispatch(ctx, runID, projectID, entrypoint)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{"worker_queue": handle.WorkerQueue, "task_id": handle.JobID}
	if setErr := e.setStatus(ctx, projectID, runID, model.RunStatusStarting, meta, meta); setErr != nil {
		return nil, setErr
	}
	return handle, nil
}

// jobStatusToRunStatus maps an external job status string to a run state,
// per §4.5.5.
func jobStatusToRunStatus(jobStatus string) (model.RunStatus, bool) {
	switch jobStatus {
	case "success":
		return model.RunStatusCompleted, true
	case "error":
		return model.RunStatusFailed, true
	case "queued", "running":
		return model.RunStatusRunning, true
	default:
		return model.RunStatusUnknown, false
	}
}

// ApplyJobStatus correlates an external job-status event with runID, per
// §4.5.5: applies the mapped status only if it differs from the stored
// one, and expires the job's bearer credential on a terminal transition.
func (e *Engine) ApplyJobStatus(ctx context.Context, projectID, runID, jobStatus string) error {
	mapped, ok := jobStatusToRunStatus(jobStatus)
	if !ok {
		return nil
	}

	r, err := e.Get(ctx, runID)
	if err != nil {
		return err
	}
	if r.Status == mapped {
		return nil
	}
	// Terminal states are sinks (§4.5.1): once a run reaches COMPLETED,
	// FAILED or CANCELLED, no later job event may move it again.
	if r.Status.IsTerminal() {
		return nil
	}

	details := map[string]any{}
	if mapped == model.RunStatusCompleted || mapped == model.RunStatusFailed {
		details["credential_expires_at"] = time.Now().UTC().Add(credentialTTL)
	}

	return e.setStatus(ctx, projectID, runID, mapped, nil, details)
}

// setStatus updates both the metadata record and the on-disk .status
// sidecar, metadata first per §4.5.1's ordering rule. meta is merged into
// the run's Meta map when non-nil; auditDetails is attached to the audit
// record of the transition.
func (e *Engine) setStatus(ctx context.Context, projectID, runID string, status model.RunStatus, meta, auditDetails map[string]any) error {
	now := time.Now().UTC()
	_, err := e.store.CompareAndSet(ctx, hierarchy.RunCollection, runID, nil, func(cur map[string]any) (map[string]any, error) {
		cur["status"] = float64(status)
		cur["updated"] = now.Format(time.RFC3339Nano)
		if status == model.RunStatusRunning {
			cur["last_heartbeat"] = now.Format(time.RFC3339Nano)
		}
		if meta != nil {
			merged, _ := cur["meta"].(map[string]any)
			if merged == nil {
				merged = make(map[string]any)
			}
			for k, v := range meta {
				merged[k] = v
			}
			cur["meta"] = merged
		}
		return cur, nil
	})
	if err != nil {
		return err
	}

	r, getErr := e.Get(ctx, runID)
	if getErr != nil {
		return getErr
	}
	if writeErr := writeStatusFile(r.FSPath, status); writeErr != nil {
		return writeErr
	}

	_ = e.auditLogger.Append(model.EventRunStatus, projectID, r.RunVersionID, runID, auditDetails)
	if e.notifier != nil {
		_ = e.notifier.SendRunStatusChanged(projectID, r.RunVersionID, runID, status.String())
	}
	return nil
}

func writeStatusFile(runDir string, status model.RunStatus) error {
	line := fmt.Sprintf("%d %s\n", status, status.String())
	return os.WriteFile(filepath.Join(runDir, ".status"), []byte(line), 0644)
}
