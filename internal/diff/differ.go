// Package diff implements version differencing for taleforge.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jvs-project/taleforge/internal/pathlayout"
)

// ChangeType represents the type of filesystem change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeRemoved  ChangeType = "removed"
	ChangeModified ChangeType = "modified"
)

// Change represents a single file/directory change between versions.
type Change struct {
	Path      string      `json:"path"`
	Type      ChangeType  `json:"type"`
	Mode      os.FileMode `json:"mode,omitempty"`
	Size      int64       `json:"size,omitempty"`
	OldSize   int64       `json:"old_size,omitempty"`
	OldHash   string      `json:"old_hash,omitempty"`
	NewHash   string      `json:"new_hash,omitempty"`
	IsSymlink bool        `json:"is_symlink,omitempty"`
}

// DiffResult represents the result of comparing two versions.
type DiffResult struct {
	FromVersionID string    `json:"from_version_id"`
	ToVersionID   string    `json:"to_version_id"`
	FromTime      time.Time `json:"from_time"`
	ToTime        time.Time `json:"to_time"`
	Added         []*Change `json:"added"`
	Removed       []*Change `json:"removed"`
	Modified      []*Change `json:"modified"`
	TotalAdded    int       `json:"total_added"`
	TotalRemoved  int       `json:"total_removed"`
	TotalModified int       `json:"total_modified"`
}

// Differ computes differences between versions under one Versions Root.
type Differ struct {
	versionsRoot string
}

// NewDiffer creates a Differ scoped to a project's Versions Root directory.
func NewDiffer(versionsRoot string) *Differ {
	return &Differ{versionsRoot: versionsRoot}
}

// Diff compares two versions and returns the differences. If fromID is
// empty, compares against an empty version (shows all as added).
func (d *Differ) Diff(fromID, toID string) (*DiffResult, error) {
	fromPath := ""
	if fromID != "" {
		fromPath = pathlayout.WorkspaceDir(pathlayout.VersionDir(d.versionsRoot, fromID))
		if _, err := os.Stat(fromPath); err != nil {
			return nil, fmt.Errorf("from version not found: %w", err)
		}
	}

	toPath := pathlayout.WorkspaceDir(pathlayout.VersionDir(d.versionsRoot, toID))
	if _, err := os.Stat(toPath); err != nil {
		return nil, fmt.Errorf("to version not found: %w", err)
	}

	fromTree := make(map[string]*fileInfo)
	toTree := make(map[string]*fileInfo)

	if fromPath != "" {
		if err := d.buildTree(fromPath, "", fromTree); err != nil {
			return nil, fmt.Errorf("build from tree: %w", err)
		}
	}
	if err := d.buildTree(toPath, "", toTree); err != nil {
		return nil, fmt.Errorf("build to tree: %w", err)
	}

	result := &DiffResult{
		FromVersionID: fromID,
		ToVersionID:   toID,
	}

	for path, toInfo := range toTree {
		fromInfo, exists := fromTree[path]
		if !exists {
			result.Added = append(result.Added, &Change{
				Path:      path,
				Type:      ChangeAdded,
				Mode:      toInfo.Mode,
				Size:      toInfo.Size,
				NewHash:   toInfo.Hash,
				IsSymlink: toInfo.IsSymlink,
			})
		} else if !fromInfo.equals(toInfo) {
			result.Modified = append(result.Modified, &Change{
				Path:      path,
				Type:      ChangeModified,
				Mode:      toInfo.Mode,
				Size:      toInfo.Size,
				OldSize:   fromInfo.Size,
				OldHash:   fromInfo.Hash,
				NewHash:   toInfo.Hash,
				IsSymlink: toInfo.IsSymlink,
			})
		}
	}

	for path, fromInfo := range fromTree {
		if _, exists := toTree[path]; !exists {
			result.Removed = append(result.Removed, &Change{
				Path:      path,
				Type:      ChangeRemoved,
				Mode:      fromInfo.Mode,
				Size:      fromInfo.Size,
				OldHash:   fromInfo.Hash,
				IsSymlink: fromInfo.IsSymlink,
			})
		}
	}

	sortChanges(result.Added)
	sortChanges(result.Removed)
	sortChanges(result.Modified)

	result.TotalAdded = len(result.Added)
	result.TotalRemoved = len(result.Removed)
	result.TotalModified = len(result.Modified)

	return result, nil
}

// fileInfo represents metadata about a file in a version.
type fileInfo struct {
	Path      string
	Mode      os.FileMode
	Size      int64
	Hash      string
	IsSymlink bool
}

func (f *fileInfo) equals(other *fileInfo) bool {
	if f.IsSymlink != other.IsSymlink {
		return false
	}
	return f.Hash == other.Hash
}

// buildTree recursively builds a map of path -> fileInfo for a directory,
// skipping the descriptor and .READY marker so they never appear as diffs.
func (d *Differ) buildTree(root, relPath string, tree map[string]*fileInfo) error {
	fullPath := filepath.Join(root, relPath)
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if name == ".READY" || name == "descriptor.json" {
			continue
		}

		entryPath := filepath.Join(relPath, name)
		fullEntryPath := filepath.Join(root, entryPath)

		info, err := entry.Info()
		if err != nil {
			return err
		}

		isSymlink := entry.Type()&os.ModeSymlink != 0

		var hash string
		var size int64

		switch {
		case isSymlink:
			target, err := os.Readlink(fullEntryPath)
			if err != nil {
				return err
			}
			hash = hashString(target)
			size = info.Size()
		case info.IsDir():
			if err := d.buildTree(root, entryPath, tree); err != nil {
				return err
			}
			continue
		case info.Mode().IsRegular():
			hash, err = d.hashFile(fullEntryPath)
			if err != nil {
				return err
			}
			size = info.Size()
		default:
			continue
		}

		tree[entryPath] = &fileInfo{
			Path:      entryPath,
			Mode:      info.Mode(),
			Size:      size,
			Hash:      hash,
			IsSymlink: isSymlink,
		}
	}

	return nil
}

// hashFile computes SHA-256 hash of a file.
func (d *Differ) hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashString hashes a string (for symlink targets).
func hashString(s string) string {
	h := sha256.New()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

// sortChanges sorts changes by path.
func sortChanges(changes []*Change) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
}

// shortID returns the first 8 characters of an id, or the whole id if shorter.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// FormatHuman returns a human-readable string representation of the diff.
func (r *DiffResult) FormatHuman() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Diff %s -> %s\n", shortID(r.FromVersionID), shortID(r.ToVersionID)))
	if !r.FromTime.IsZero() {
		sb.WriteString(fmt.Sprintf("From: %s\n", r.FromTime.Format("2006-01-02 15:04:05")))
	}
	sb.WriteString(fmt.Sprintf("To:   %s\n", r.ToTime.Format("2006-01-02 15:04:05")))
	sb.WriteString("\n")

	if r.TotalAdded > 0 {
		sb.WriteString(fmt.Sprintf("Added (%d):\n", r.TotalAdded))
		for _, c := range r.Added {
			sb.WriteString(fmt.Sprintf("  + %s\n", c.Path))
		}
		sb.WriteString("\n")
	}

	if r.TotalRemoved > 0 {
		sb.WriteString(fmt.Sprintf("Removed (%d):\n", r.TotalRemoved))
		for _, c := range r.Removed {
			sb.WriteString(fmt.Sprintf("  - %s\n", c.Path))
		}
		sb.WriteString("\n")
	}

	if r.TotalModified > 0 {
		sb.WriteString(fmt.Sprintf("Modified (%d):\n", r.TotalModified))
		for _, c := range r.Modified {
			sb.WriteString(fmt.Sprintf("  ~ %s", c.Path))
			if c.OldSize != c.Size {
				sb.WriteString(fmt.Sprintf(" (%d -> %d bytes)", c.OldSize, c.Size))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if r.TotalAdded == 0 && r.TotalRemoved == 0 && r.TotalModified == 0 {
		sb.WriteString("No changes.\n")
	}

	return sb.String()
}

// SetTimes sets the timestamp fields from descriptors.
func (r *DiffResult) SetTimes(fromTime, toTime time.Time) {
	r.FromTime = fromTime
	r.ToTime = toTime
}
