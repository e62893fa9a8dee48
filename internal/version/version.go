// Package version implements the Version Engine (C4): creating, listing,
// loading, renaming, restoring and deleting versions under a project's
// Versions Root, following the atomic publish protocol of §4.4.1.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jvs-project/taleforge/internal/audit"
	"github.com/jvs-project/taleforge/internal/docstore"
	"github.com/jvs-project/taleforge/internal/engine"
	"github.com/jvs-project/taleforge/internal/hierarchy"
	"github.com/jvs-project/taleforge/internal/integrity"
	"github.com/jvs-project/taleforge/internal/manifest"
	"github.com/jvs-project/taleforge/internal/pathlayout"
	"github.com/jvs-project/taleforge/internal/project"
	"github.com/jvs-project/taleforge/pkg/errclass"
	"github.com/jvs-project/taleforge/pkg/fsutil"
	"github.com/jvs-project/taleforge/pkg/idutil"
	"github.com/jvs-project/taleforge/pkg/metrics"
	"github.com/jvs-project/taleforge/pkg/model"
	"github.com/jvs-project/taleforge/pkg/webhook"
)

// Engine orchestrates version creation and lifecycle for one project.
type Engine struct {
	store            docstore.Adapter
	auditLogger      *audit.FileAppender
	engineType       model.EngineType
	storageRoot      string
	manifestProducer manifest.Producer
	metrics          *metrics.Registry
	notifier         *webhook.Client
}

// NewEngine builds a Version Engine backed by store for metadata and
// storageRoot for sharded version payloads. engineType selects the clone
// strategy (hardlink by default); auditLogPath is the JSONL audit trail.
// Versions are created with a manifest.PassthroughProducer; use
// WithManifestProducer to supply a project-aware one.
func NewEngine(store docstore.Adapter, storageRoot string, engineType model.EngineType, auditLogPath string) *Engine {
	return &Engine{
		store:            store,
		storageRoot:      storageRoot,
		engineType:       engineType,
		auditLogger:      audit.NewFileAppender(auditLogPath),
		manifestProducer: manifest.NewPassthroughProducer(),
	}
}

// WithManifestProducer overrides the engine's manifest.Producer, returning
// the same engine for chaining.
func (e *Engine) WithManifestProducer(producer manifest.Producer) *Engine {
	e.manifestProducer = producer
	return e
}

// WithMetrics attaches a metrics.Registry that Create/Delete/Restore report
// operation outcomes and latency to, returning the same engine for chaining.
func (e *Engine) WithMetrics(reg *metrics.Registry) *Engine {
	e.metrics = reg
	return e
}

// WithNotifier attaches a webhook.Client that Create/Delete/Restore
// transitions are delivered to, returning the same engine for chaining.
func (e *Engine) WithNotifier(client *webhook.Client) *Engine {
	e.notifier = client
	return e
}

// CreateResult is returned by Create.
type CreateResult struct {
	Version    *model.Version
	Descriptor *model.Descriptor
}

// Create runs the 12-step atomic publish protocol of §4.4.1: it clones
// workspacePath into a new version under the project's Versions Root,
// short-circuiting with errclass.ErrNotModified (Extra=head version id)
// when the workspace is unchanged from the current head.
func (e *Engine) Create(ctx context.Context, rootID, projectID, workspacePath, name string, allowRename bool) (_ *CreateResult, err error) {
	if e.metrics != nil {
		start := time.Now()
		defer func() { e.metrics.ObserveVersionOp("create", time.Since(start), err) }()
	}

	versionsRoot, err := pathlayout.VersionsRootDir(e.storageRoot, projectID)
	if err != nil {
		return nil, err
	}

	var result *CreateResult
	err = hierarchy.WithCriticalSection(ctx, e.store, rootID, func(ctx context.Context) error {
		root, loadErr := e.loadRoot(ctx, rootID)
		if loadErr != nil {
			return loadErr
		}

		// Step 1: not-modified short-circuit. Check the version the project
		// was last restored from before the current head, the same order
		// the original hierarchy's create() checks (last_restore, last) in
		// — a restore followed by an immediate create must short-circuit
		// against the restored version, not the head it never touched.
		candidateHash, hashErr := integrity.ComputePayloadRootHash(workspacePath)
		if hashErr == nil {
			proj, projErr := project.Get(ctx, e.store, projectID)
			if projErr == nil && proj.RestoredFrom != "" {
				if restoredDesc, descErr := e.LoadDescriptor(versionsRoot, proj.RestoredFrom); descErr == nil {
					if candidateHash == restoredDesc.PayloadRootHash {
						return errclass.ErrNotModified.WithExtra(proj.RestoredFrom)
					}
				}
			}
			if root.HeadVersionID != "" {
				headDesc, headErr := e.LoadDescriptor(versionsRoot, root.HeadVersionID)
				if headErr == nil && candidateHash == headDesc.PayloadRootHash {
					return errclass.ErrNotModified.WithExtra(root.HeadVersionID)
				}
			}
		}

		// Step 2: resolve the version's name against its siblings.
		resolvedName, nameErr := hierarchy.ResolveSiblingName(ctx, e.store, rootID, name, allowRename)
		if nameErr != nil {
			return nameErr
		}

		// Step 3: allocate id and record intent for crash recovery.
		versionID := idutil.NewObjectID()
		intent := model.IntentRecord{
			VersionID: versionID,
			Name:      resolvedName,
			StartedAt: time.Now().UTC(),
			Engine:    e.engineType,
		}
		if saveErr := e.store.Save(ctx, "intents", rootID, intent); saveErr != nil {
			return saveErr
		}
		defer e.store.Remove(ctx, "intents", rootID)

		// Step 4: create the .tmp staging directory.
		versionDir := pathlayout.VersionDir(versionsRoot, versionID)
		tmpDir := versionDir + ".tmp"
		if mkErr := os.MkdirAll(tmpDir, 0755); mkErr != nil {
			return errclass.ErrFilesystemError.WithMessagef("create tmp dir: %v", mkErr)
		}
		cleanupTmp := func() { os.RemoveAll(tmpDir) }

		// Step 5: clone the workspace payload under a workspace/
		// subdirectory, sibling to the manifest/descriptor/.READY files
		// written below, per §6's on-disk layout.
		tmpWorkspaceDir := pathlayout.WorkspaceDir(tmpDir)
		clone := engine.NewEngine(e.engineType)
		if _, cloneErr := clone.Clone(workspacePath, tmpWorkspaceDir); cloneErr != nil {
			cleanupTmp()
			return errclass.ErrFilesystemError.WithMessagef("clone payload: %v", cloneErr)
		}

		// Step 5b: write the manifest/environment documents from the
		// external Manifest producer, per §4.4.1 step 7.
		meta, metaErr := e.manifestProducer.Produce(ctx, projectID, workspacePath)
		if metaErr != nil {
			cleanupTmp()
			return errclass.ErrStorageError.WithMessagef("produce manifest: %v", metaErr)
		}
		if writeErr := manifest.Write(tmpDir, resolvedName, meta); writeErr != nil {
			cleanupTmp()
			return errclass.ErrFilesystemError.WithMessagef("write manifest: %v", writeErr)
		}

		// Step 6: fsync the cloned tree for durability.
		if syncErr := fsutil.FsyncTree(tmpDir); syncErr != nil {
			cleanupTmp()
			return errclass.ErrFilesystemError.WithMessagef("fsync tree: %v", syncErr)
		}

		// Step 7: compute the payload root hash over the workspace/
		// subtree only, so it is directly comparable to a hash computed
		// over a live project workspace (no manifest/descriptor in the way).
		payloadHash, hashErr := integrity.ComputePayloadRootHash(tmpWorkspaceDir)
		if hashErr != nil {
			cleanupTmp()
			return errclass.ErrStorageError.WithMessagef("compute payload hash: %v", hashErr)
		}

		// Step 8: build the descriptor.
		desc := &model.Descriptor{
			VersionID:       versionID,
			Name:            resolvedName,
			CreatedAt:       time.Now().UTC(),
			Engine:          e.engineType,
			PayloadRootHash: payloadHash,
			IntegrityState:  model.IntegrityVerified,
		}

		// Step 9: compute the descriptor checksum.
		checksum, checksumErr := integrity.ComputeDescriptorChecksum(desc)
		if checksumErr != nil {
			cleanupTmp()
			return errclass.ErrStorageError.WithMessagef("compute checksum: %v", checksumErr)
		}
		desc.DescriptorChecksum = checksum

		if writeErr := writeDescriptor(pathlayout.DescriptorPath(tmpDir), desc); writeErr != nil {
			cleanupTmp()
			return writeErr
		}

		// Step 10: write the .READY marker proving the tree is complete.
		ready := &model.ReadyMarker{
			VersionID:   versionID,
			CompletedAt: time.Now().UTC(),
			PayloadHash: payloadHash,
		}
		if writeErr := writeReadyMarker(pathlayout.ReadyMarkerPath(tmpDir), ready); writeErr != nil {
			cleanupTmp()
			return writeErr
		}

		// Step 11: atomically publish the version directory.
		if renameErr := fsutil.RenameAndSync(tmpDir, versionDir); renameErr != nil {
			cleanupTmp()
			return errclass.ErrFilesystemError.WithMessagef("publish version: %v", renameErr)
		}

		// Step 12: register the version and advance the root's head.
		v := &model.Version{
			ID:       versionID,
			RootID:   rootID,
			Name:     resolvedName,
			FSPath:   versionDir,
			RefCount: 0,
			Created:  desc.CreatedAt,
			Updated:  desc.CreatedAt,
		}
		if saveErr := e.store.Save(ctx, hierarchy.VersionCollection, versionID, v); saveErr != nil {
			return saveErr
		}

		if _, setErr := e.store.CompareAndSet(ctx, hierarchy.VersionsRootCollection, rootID, nil, func(cur map[string]any) (map[string]any, error) {
			cur["head_version_id"] = versionID
			return cur, nil
		}); setErr != nil {
			return setErr
		}

		_ = e.auditLogger.Append(model.EventVersionCreate, projectID, versionID, "", map[string]any{"name": resolvedName})
		if e.notifier != nil {
			_ = e.notifier.SendVersionCreated(projectID, versionID, resolvedName)
		}

		result = &CreateResult{Version: v, Descriptor: desc}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// LoadDescriptor reads a version's on-disk descriptor.json.
func (e *Engine) LoadDescriptor(versionsRoot, versionID string) (*model.Descriptor, error) {
	return loadDescriptor(pathlayout.DescriptorPath(pathlayout.VersionDir(versionsRoot, versionID)))
}

// List returns every non-trashed version registered under rootID.
func (e *Engine) List(ctx context.Context, rootID string) ([]*model.Version, error) {
	var versions []*model.Version
	if err := e.store.Find(ctx, hierarchy.VersionCollection, map[string]any{"root_id": rootID, "trashed": false}, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// Get loads a single version's metadata record.
func (e *Engine) Get(ctx context.Context, versionID string) (*model.Version, error) {
	var v model.Version
	if err := e.store.Load(ctx, hierarchy.VersionCollection, versionID, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Rename changes a version's display name, resolving collisions against
// its current siblings the same way Create does.
func (e *Engine) Rename(ctx context.Context, rootID, versionID, newName string, allowRename bool) (string, error) {
	var resolved string
	err := hierarchy.WithCriticalSection(ctx, e.store, rootID, func(ctx context.Context) error {
		name, nameErr := hierarchy.ResolveSiblingName(ctx, e.store, rootID, newName, allowRename)
		if nameErr != nil {
			return nameErr
		}
		_, setErr := e.store.CompareAndSet(ctx, hierarchy.VersionCollection, versionID, nil, func(cur map[string]any) (map[string]any, error) {
			cur["name"] = name
			cur["updated"] = time.Now().UTC().Format(time.RFC3339Nano)
			return cur, nil
		})
		if setErr != nil {
			return setErr
		}

		v, getErr := e.Get(ctx, versionID)
		if getErr != nil {
			return getErr
		}
		existing, parseErr := manifest.NewFileParser().Parse(ctx, v.FSPath)
		if parseErr == nil {
			_ = manifest.Write(v.FSPath, name, existing)
		}

		resolved = name
		_ = e.auditLogger.Append(model.EventVersionRename, "", versionID, "", map[string]any{"name": name})
		return nil
	})
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// Delete soft-deletes a version: it must have zero references per §4.4.3,
// and its directory moves to the Versions Root's trash rather than being
// removed outright.
func (e *Engine) Delete(ctx context.Context, rootID, projectID, versionID string) (err error) {
	if e.metrics != nil {
		start := time.Now()
		defer func() { e.metrics.ObserveVersionOp("delete", time.Since(start), err) }()
	}

	return hierarchy.WithCriticalSection(ctx, e.store, rootID, func(ctx context.Context) error {
		v, getErr := e.Get(ctx, versionID)
		if getErr != nil {
			return getErr
		}
		if v.RefCount > 0 {
			return errclass.ErrVersionInUse.WithMessagef("version %s has %d references", versionID, v.RefCount)
		}

		versionsRoot, layoutErr := pathlayout.VersionsRootDir(e.storageRoot, projectID)
		if layoutErr != nil {
			return layoutErr
		}
		if trashErr := pathlayout.MoveToTrash(versionsRoot, versionID, v.FSPath); trashErr != nil && !os.IsNotExist(trashErr) {
			return trashErr
		}

		_, setErr := e.store.CompareAndSet(ctx, hierarchy.VersionCollection, versionID, nil, func(cur map[string]any) (map[string]any, error) {
			cur["trashed"] = true
			return cur, nil
		})
		if setErr != nil {
			return setErr
		}

		_ = e.auditLogger.Append(model.EventVersionDelete, projectID, versionID, "", nil)
		if e.notifier != nil {
			_ = e.notifier.SendVersionDeleted(projectID, versionID)
		}
		return nil
	})
}

// Touch refreshes a version's `updated` timestamp without otherwise
// changing it, used by the Ensure-Version hook (§4.4.4) to bubble a
// resolved version to the top of "most recently used".
func (e *Engine) Touch(ctx context.Context, versionID string) error {
	_, err := e.store.CompareAndSet(ctx, hierarchy.VersionCollection, versionID, nil, func(cur map[string]any) (map[string]any, error) {
		cur["updated"] = time.Now().UTC().Format(time.RFC3339Nano)
		return cur, nil
	})
	return err
}

// Exists reports whether versionID names a non-trashed version in the store.
func (e *Engine) Exists(ctx context.Context, versionID string) (bool, error) {
	v, err := e.Get(ctx, versionID)
	if err != nil {
		if ce, ok := err.(*errclass.ClassError); ok && ce.Is(errclass.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return !v.Trashed, nil
}

// Restore implements §4.4.3: it wipes the project's live workspace and
// hard-links a historical version's payload back into it, then records
// that the project was restored from that version. Unlike Create, Restore
// never appends a version of its own — it mutates the live workspace in
// place, the way the original hierarchy's restore() does.
func (e *Engine) Restore(ctx context.Context, rootID, projectID, sourceVersionID string) (err error) {
	if e.metrics != nil {
		start := time.Now()
		defer func() { e.metrics.ObserveVersionOp("restore", time.Since(start), err) }()
	}

	versionsRoot, err := pathlayout.VersionsRootDir(e.storageRoot, projectID)
	if err != nil {
		return err
	}

	sourceDir := pathlayout.VersionDir(versionsRoot, sourceVersionID)
	if _, statErr := os.Stat(sourceDir); statErr != nil {
		return errclass.ErrNotFound.WithMessagef("source version %s not found: %v", sourceVersionID, statErr)
	}
	sourceWorkspaceDir := pathlayout.WorkspaceDir(sourceDir)

	return hierarchy.WithCriticalSection(ctx, e.store, rootID, func(ctx context.Context) error {
		proj, getErr := project.Get(ctx, e.store, projectID)
		if getErr != nil {
			return getErr
		}

		// Step 2: wipe the live project workspace and recreate it empty.
		if rmErr := os.RemoveAll(proj.WorkspacePath); rmErr != nil {
			return errclass.ErrFilesystemError.WithMessagef("wipe workspace: %v", rmErr)
		}
		if mkErr := os.MkdirAll(proj.WorkspacePath, 0755); mkErr != nil {
			return errclass.ErrFilesystemError.WithMessagef("recreate workspace: %v", mkErr)
		}

		// Step 3: snapshot walk (nil, version.workspace, project.workspace)
		// — hard-link the version's payload back into the live workspace.
		clone := engine.NewEngine(e.engineType)
		if _, cloneErr := clone.Clone(sourceWorkspaceDir, proj.WorkspacePath); cloneErr != nil {
			return errclass.ErrFilesystemError.WithMessagef("restore workspace: %v", cloneErr)
		}

		// Step 4: restore project metadata from the version's manifest and
		// environment documents, and mark where the project was restored
		// from.
		if _, parseErr := manifest.NewFileParser().Parse(ctx, sourceDir); parseErr != nil {
			return errclass.ErrStorageError.WithMessagef("parse restored manifest: %v", parseErr)
		}
		if _, setErr := e.store.CompareAndSet(ctx, project.Collection, projectID, nil, func(cur map[string]any) (map[string]any, error) {
			cur["restored_from"] = sourceVersionID
			return cur, nil
		}); setErr != nil {
			return setErr
		}

		_ = e.auditLogger.Append(model.EventVersionRestore, projectID, sourceVersionID, "", nil)
		if e.notifier != nil {
			_ = e.notifier.SendVersionRestored(projectID, sourceVersionID)
		}
		return nil
	})
}

func (e *Engine) loadRoot(ctx context.Context, rootID string) (*model.VersionsRoot, error) {
	var root model.VersionsRoot
	if err := e.store.Load(ctx, hierarchy.VersionsRootCollection, rootID, &root); err != nil {
		return nil, err
	}
	return &root, nil
}

func writeDescriptor(path string, desc *model.Descriptor) error {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	return fsutil.AtomicWrite(path, data, 0644)
}

func writeReadyMarker(path string, ready *model.ReadyMarker) error {
	data, err := json.MarshalIndent(ready, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ready marker: %w", err)
	}
	return fsutil.AtomicWrite(path, data, 0644)
}

func loadDescriptor(path string) (*model.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("descriptor not found: %s", path)
		}
		return nil, errclass.ErrStorageError.WithMessagef("read descriptor: %v", err)
	}
	var desc model.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, errclass.ErrStorageError.WithMessagef("parse descriptor: %v", err)
	}
	return &desc, nil
}
