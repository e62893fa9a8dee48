// Package project implements the project (tale) bootstrap and teardown
// steps the data model assumes happen around the opaque project document:
// on creation the core allocates the two root folder records and their
// on-disk directories; on removal it deletes them (§3's "On project
// creation the core appends the two root folder ids and the two on-disk
// root directories; on project removal the core removes them").
package project

import (
	"context"
	"os"

	"github.com/jvs-project/taleforge/internal/docstore"
	"github.com/jvs-project/taleforge/internal/hierarchy"
	"github.com/jvs-project/taleforge/internal/pathlayout"
	"github.com/jvs-project/taleforge/pkg/idutil"
	"github.com/jvs-project/taleforge/pkg/model"
)

// Collection is the metadata store collection holding project documents.
const Collection = "projects"

// Create allocates a new project: a 24-hex project id, a Versions Root and
// Runs Root record each, and their on-disk directory trees under
// storageRoot. workspacePath is the project's working directory, recorded
// verbatim (the core never creates or validates it).
func Create(ctx context.Context, store docstore.Adapter, storageRoot, workspacePath, creatorUserID string) (*model.Project, error) {
	projectID := idutil.NewObjectID()

	if _, _, err := pathlayout.EnsureRoots(storageRoot, projectID); err != nil {
		return nil, err
	}

	versionsRootID := idutil.NewObjectID()
	runsRootID := idutil.NewObjectID()

	if err := store.Save(ctx, hierarchy.VersionsRootCollection, versionsRootID, &model.VersionsRoot{
		ID:        versionsRootID,
		ProjectID: projectID,
	}); err != nil {
		return nil, err
	}
	if err := store.Save(ctx, hierarchy.RunsRootCollection, runsRootID, &model.RunsRoot{
		ID:        runsRootID,
		ProjectID: projectID,
	}); err != nil {
		return nil, err
	}

	p := &model.Project{
		ProjectID:      projectID,
		WorkspacePath:  workspacePath,
		CreatorUserID:  creatorUserID,
		VersionsRootID: versionsRootID,
		RunsRootID:     runsRootID,
	}
	if err := store.Save(ctx, Collection, projectID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get loads a project document by id.
func Get(ctx context.Context, store docstore.Adapter, projectID string) (*model.Project, error) {
	var p model.Project
	if err := store.Load(ctx, Collection, projectID, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Remove deletes a project's two root records and the on-disk directory
// tree that held its versions and runs. Idempotent: removing an
// already-absent directory is not an error.
func Remove(ctx context.Context, store docstore.Adapter, storageRoot string, projectID string) error {
	p, err := Get(ctx, store, projectID)
	if err != nil {
		return err
	}

	_ = store.Remove(ctx, hierarchy.VersionsRootCollection, p.VersionsRootID)
	_ = store.Remove(ctx, hierarchy.RunsRootCollection, p.RunsRootID)
	_ = store.Remove(ctx, Collection, projectID)

	dir, dirErr := pathlayout.ProjectDir(storageRoot, projectID)
	if dirErr != nil {
		return dirErr
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
