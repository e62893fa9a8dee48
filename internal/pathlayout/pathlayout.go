// Package pathlayout computes the on-disk sharded directory layout for a
// project's Versions Root and Runs Root (§4.1), including the per-root
// trash subdirectory used for soft-delete.
package pathlayout

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jvs-project/taleforge/pkg/errclass"
	"github.com/jvs-project/taleforge/pkg/fsutil"
)

const (
	versionsDirName = "versions"
	runsDirName     = "runs"
	trashDirName    = ".trash"
	descriptorFile  = "descriptor.json"
	readyFile       = ".READY"
	workspaceDirName = "workspace"
)

// ProjectDir returns the sharded directory for a project: <storageRoot>/<projectId[:2]>/<projectId>.
func ProjectDir(storageRoot, projectID string) (string, error) {
	if len(projectID) < 2 {
		return "", errclass.ErrInvalidName.WithMessagef("project id too short to shard: %s", projectID)
	}
	return filepath.Join(storageRoot, projectID[:2], projectID), nil
}

// VersionsRootDir returns a project's Versions Root directory.
func VersionsRootDir(storageRoot, projectID string) (string, error) {
	base, err := ProjectDir(storageRoot, projectID)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, versionsDirName), nil
}

// RunsRootDir returns a project's Runs Root directory.
func RunsRootDir(storageRoot, projectID string) (string, error) {
	base, err := ProjectDir(storageRoot, projectID)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, runsDirName), nil
}

// VersionDir returns the payload directory for a single version.
func VersionDir(versionsRoot, versionID string) string {
	return filepath.Join(versionsRoot, versionID)
}

// RunDir returns the working-copy directory for a single run.
func RunDir(runsRoot, runID string) string {
	return filepath.Join(runsRoot, runID)
}

// TrashDir returns the soft-delete directory under a root.
func TrashDir(root string) string {
	return filepath.Join(root, trashDirName)
}

// DescriptorPath returns the path to a version's descriptor.json.
func DescriptorPath(versionDir string) string {
	return filepath.Join(versionDir, descriptorFile)
}

// ReadyMarkerPath returns the path to a version's .READY marker.
func ReadyMarkerPath(versionDir string) string {
	return filepath.Join(versionDir, readyFile)
}

// WorkspaceDir returns the subdirectory holding a version's (or run's)
// actual snapshot content, sibling to its manifest/descriptor/.READY
// metadata files rather than flattened alongside them (§6).
func WorkspaceDir(entryDir string) string {
	return filepath.Join(entryDir, workspaceDirName)
}

// EnsureRoots creates the Versions Root, Runs Root and their trash
// subdirectories for a project, fsyncing parents for durability.
func EnsureRoots(storageRoot, projectID string) (versionsRoot, runsRoot string, err error) {
	versionsRoot, err = VersionsRootDir(storageRoot, projectID)
	if err != nil {
		return "", "", err
	}
	runsRoot, err = RunsRootDir(storageRoot, projectID)
	if err != nil {
		return "", "", err
	}

	for _, dir := range []string{versionsRoot, runsRoot, TrashDir(versionsRoot), TrashDir(runsRoot)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", "", errclass.ErrFilesystemError.WithMessagef("create %s: %v", dir, err)
		}
	}

	projectDir, err := ProjectDir(storageRoot, projectID)
	if err != nil {
		return "", "", err
	}
	if err := fsutil.FsyncDir(projectDir); err != nil {
		return "", "", errclass.ErrFilesystemError.WithMessagef("fsync project dir: %v", err)
	}

	return versionsRoot, runsRoot, nil
}

// MoveToTrash renames an entry into its root's trash directory, suffixing
// with the entry id so repeated soft-deletes never collide.
func MoveToTrash(root, entryID, entryDir string) error {
	trash := TrashDir(root)
	if err := os.MkdirAll(trash, 0755); err != nil {
		return errclass.ErrFilesystemError.WithMessagef("create trash dir: %v", err)
	}
	dest := filepath.Join(trash, entryID)
	if err := os.Rename(entryDir, dest); err != nil {
		return errclass.ErrFilesystemError.WithMessagef("move to trash: %v", err)
	}
	return nil
}

// ListEntries lists the non-trash entry directories under a root.
func ListEntries(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read root %s: %w", root, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == trashDirName {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
