// Package fork implements the Fork Handler (C6, §4.6): deep-copying a
// project's Versions Root and Runs Root into a freshly allocated
// destination project, rewiring each copied run's version link to the
// corresponding copied version.
package fork

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jvs-project/taleforge/internal/audit"
	"github.com/jvs-project/taleforge/internal/docstore"
	"github.com/jvs-project/taleforge/internal/engine"
	"github.com/jvs-project/taleforge/internal/hierarchy"
	"github.com/jvs-project/taleforge/internal/manifest"
	"github.com/jvs-project/taleforge/internal/pathlayout"
	"github.com/jvs-project/taleforge/internal/version"
	"github.com/jvs-project/taleforge/pkg/errclass"
	"github.com/jvs-project/taleforge/pkg/idutil"
	"github.com/jvs-project/taleforge/pkg/model"
	"github.com/jvs-project/taleforge/pkg/webhook"
)

// Project identifies one side of a fork: a project id plus the ids of its
// two parent root documents.
type Project struct {
	ID             string
	VersionsRootID string
	RunsRootID     string
}

// Result reports what a Fork call produced.
type Result struct {
	// VersionIDMap maps each copied source version id to its new id
	// under the destination project.
	VersionIDMap map[string]string
	// RestoredVersionID is set when targetVersionID was supplied: the id
	// of the destination's copied version its live workspace was reset to.
	RestoredVersionID string
}

// Handler deep-copies a source project's version/run trees into a
// destination project, the mechanism behind "fork this tale".
type Handler struct {
	store       docstore.Adapter
	storageRoot string
	auditLogger *audit.FileAppender
	versions    *version.Engine
	notifier    *webhook.Client
}

// WithNotifier attaches a webhook.Client that a completed Fork call
// delivers a fork.complete event to, returning the same handler for
// chaining.
func (h *Handler) WithNotifier(client *webhook.Client) *Handler {
	h.notifier = client
	return h
}

// NewHandler builds a Fork Handler backed by store for metadata and
// storageRoot for sharded payloads. versions is used for the optional
// final Restore step against the destination project.
func NewHandler(store docstore.Adapter, storageRoot string, auditLogPath string, versions *version.Engine) *Handler {
	return &Handler{
		store:       store,
		storageRoot: storageRoot,
		auditLogger: audit.NewFileAppender(auditLogPath),
		versions:    versions,
	}
}

// Fork runs §4.6's protocol: copy src's Versions Root and Runs Root
// children into dst, rewire run→version links against the copied
// versions, regenerate manifests, and optionally Restore the mapped
// version on the destination.
func (h *Handler) Fork(ctx context.Context, src, dst Project, targetVersionID string, shallow bool) (*Result, error) {
	if shallow && targetVersionID == "" {
		return &Result{VersionIDMap: map[string]string{}}, nil
	}

	srcVersionsRoot, err := pathlayout.VersionsRootDir(h.storageRoot, src.ID)
	if err != nil {
		return nil, err
	}
	dstVersionsRoot, err := pathlayout.VersionsRootDir(h.storageRoot, dst.ID)
	if err != nil {
		return nil, err
	}
	srcRunsRoot, err := pathlayout.RunsRootDir(h.storageRoot, src.ID)
	if err != nil {
		return nil, err
	}
	dstRunsRoot, err := pathlayout.RunsRootDir(h.storageRoot, dst.ID)
	if err != nil {
		return nil, err
	}

	result := &Result{VersionIDMap: map[string]string{}}

	// Step 1, versions root.
	var srcVersions []*model.Version
	if findErr := h.store.Find(ctx, hierarchy.VersionCollection, map[string]any{"root_id": src.VersionsRootID, "trashed": false}, &srcVersions); findErr != nil {
		return nil, findErr
	}
	copyErr := hierarchy.WithCriticalSection(ctx, h.store, dst.VersionsRootID, func(ctx context.Context) error {
		for _, v := range srcVersions {
			if shallow && v.ID != targetVersionID {
				continue
			}
			newID, cloneErr := h.cloneVersion(ctx, v, dst, srcVersionsRoot, dstVersionsRoot)
			if cloneErr != nil {
				return cloneErr
			}
			result.VersionIDMap[v.ID] = newID
		}
		return nil
	})
	if copyErr != nil {
		return nil, copyErr
	}

	// Step 1, runs root. Per §4.6 the shallow-skip only gates the
	// versions root walk; every run is copied regardless.
	var srcRuns []*model.Run
	if findErr := h.store.Find(ctx, hierarchy.RunCollection, map[string]any{"root_id": src.RunsRootID, "trashed": false}, &srcRuns); findErr != nil {
		return nil, findErr
	}
	for _, r := range srcRuns {
		if cloneErr := h.cloneRun(ctx, r, dst, srcRunsRoot, dstRunsRoot, result.VersionIDMap); cloneErr != nil {
			return nil, cloneErr
		}
	}

	// Step 2: regenerate manifest.json for every cloned version from
	// the destination project's now-current state.
	for srcID, newID := range result.VersionIDMap {
		dstDir := pathlayout.VersionDir(dstVersionsRoot, newID)
		v, getErr := h.versions.Get(ctx, newID)
		if getErr != nil {
			return nil, getErr
		}
		existing, parseErr := manifest.NewFileParser().Parse(ctx, dstDir)
		if parseErr != nil {
			continue
		}
		_ = manifest.Write(dstDir, v.Name, existing)
		_ = h.auditLogger.Append(model.EventForkComplete, dst.ID, newID, "", map[string]any{"source_version_id": srcID})
	}

	// Step 3: restore the mapped version on the destination, if asked.
	if targetVersionID != "" {
		mapped, ok := result.VersionIDMap[targetVersionID]
		if !ok {
			return nil, errclass.ErrNotFound.WithMessagef("target version %s was not copied", targetVersionID)
		}
		if restoreErr := h.versions.Restore(ctx, dst.VersionsRootID, dst.ID, mapped); restoreErr != nil {
			return nil, restoreErr
		}
		result.RestoredVersionID = mapped
	}

	_ = h.auditLogger.Append(model.EventForkStart, dst.ID, "", "", map[string]any{"source_project_id": src.ID, "shallow": shallow})
	if h.notifier != nil {
		_ = h.notifier.SendForkComplete(src.ID, dst.ID, len(result.VersionIDMap))
	}
	return result, nil
}

// cloneVersion copies one source version's payload and metadata record
// into the destination project, preserving its name and timestamps.
func (h *Handler) cloneVersion(ctx context.Context, v *model.Version, dst Project, srcVersionsRoot, dstVersionsRoot string) (string, error) {
	newID := idutil.NewObjectID()
	srcDir := pathlayout.VersionDir(srcVersionsRoot, v.ID)
	dstDir := pathlayout.VersionDir(dstVersionsRoot, newID)

	if mkErr := os.MkdirAll(filepath.Dir(dstDir), 0755); mkErr != nil {
		return "", errclass.ErrFilesystemError.WithMessagef("create destination versions dir: %v", mkErr)
	}
	if _, cloneErr := engine.NewCopyEngine().Clone(srcDir, dstDir); cloneErr != nil {
		return "", errclass.ErrFilesystemError.WithMessagef("copy version %s: %v", v.ID, cloneErr)
	}

	absDir, absErr := filepath.Abs(dstDir)
	if absErr != nil {
		return "", errclass.ErrFilesystemError.WithMessagef("resolve absolute path: %v", absErr)
	}

	newV := &model.Version{
		ID:       newID,
		RootID:   dst.VersionsRootID,
		Name:     v.Name,
		FSPath:   absDir,
		RefCount: 0,
		Created:  v.Created,
		Updated:  v.Updated,
	}
	if saveErr := h.store.Save(ctx, hierarchy.VersionCollection, newID, newV); saveErr != nil {
		return "", saveErr
	}
	return newID, nil
}

// cloneRun copies one source run's working copy into the destination
// project and rewires its "version" symlink to the mapped destination
// version once the version pass above has populated versionIDMap.
func (h *Handler) cloneRun(ctx context.Context, r *model.Run, dst Project, srcRunsRoot, dstRunsRoot string, versionIDMap map[string]string) error {
	newID := idutil.NewObjectID()
	srcDir := pathlayout.RunDir(srcRunsRoot, r.ID)
	dstDir := pathlayout.RunDir(dstRunsRoot, newID)

	if mkErr := os.MkdirAll(filepath.Dir(dstDir), 0755); mkErr != nil {
		return errclass.ErrFilesystemError.WithMessagef("create destination runs dir: %v", mkErr)
	}
	if _, cloneErr := engine.NewCopyEngine().Clone(srcDir, dstDir); cloneErr != nil {
		return errclass.ErrFilesystemError.WithMessagef("copy run %s: %v", r.ID, cloneErr)
	}

	mapped := ""
	linkPath := filepath.Join(dstDir, "version")
	if target, readErr := os.Readlink(linkPath); readErr == nil {
		sourceVersionID := filepath.Base(target)
		if m, ok := versionIDMap[sourceVersionID]; ok {
			mapped = m
			os.Remove(linkPath)
			versionsRoot, vrErr := pathlayout.VersionsRootDir(h.storageRoot, dst.ID)
			if vrErr != nil {
				return vrErr
			}
			relLink, relLinkErr := filepath.Rel(dstDir, pathlayout.VersionDir(versionsRoot, mapped))
			if relLinkErr != nil {
				return errclass.ErrFilesystemError.WithMessagef("relativize version link: %v", relLinkErr)
			}
			if symErr := os.Symlink(relLink, linkPath); symErr != nil {
				return errclass.ErrFilesystemError.WithMessagef("symlink version: %v", symErr)
			}
		}
	}

	absDir, absErr := filepath.Abs(dstDir)
	if absErr != nil {
		return errclass.ErrFilesystemError.WithMessagef("resolve absolute path: %v", absErr)
	}

	newR := &model.Run{
		ID:           newID,
		RootID:       dst.RunsRootID,
		Name:         r.Name,
		FSPath:       absDir,
		RunVersionID: mapped,
		Status:       r.Status,
		Meta:         r.Meta,
		Created:      r.Created,
		Updated:      r.Updated,
	}
	if saveErr := h.store.Save(ctx, hierarchy.RunCollection, newID, newR); saveErr != nil {
		return saveErr
	}
	if mapped != "" {
		if adjErr := hierarchy.WithCriticalSection(ctx, h.store, dst.VersionsRootID, func(ctx context.Context) error {
			return hierarchy.AdjustRefCount(ctx, h.store, mapped, 1)
		}); adjErr != nil {
			return adjErr
		}
	}
	return nil
}
