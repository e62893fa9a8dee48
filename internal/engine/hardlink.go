package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jvs-project/taleforge/pkg/fsutil"
	"github.com/jvs-project/taleforge/pkg/model"
)

// HardlinkEngine walks src and reproduces it at dst by hard-linking every
// regular file instead of copying its content, per §4.3.3. Directories are
// created fresh and symlinks are recreated pointing at the same target, so
// only the combination of directory structure plus file content sharing is
// new for a version, not bytes on disk.
type HardlinkEngine struct{}

func NewHardlinkEngine() *HardlinkEngine {
	return &HardlinkEngine{}
}

func (e *HardlinkEngine) Name() model.EngineType {
	return model.EngineHardlink
}

// Clone walks src and reproduces its structure at dst, hard-linking every
// regular file. Falls back to a byte copy (and reports degradation) when
// the link fails, e.g. because src and dst sit on different devices.
func (e *HardlinkEngine) Clone(src, dst string) (*CloneResult, error) {
	result := &CloneResult{}

	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}
		dstPath := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(dstPath, info.Mode())

		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
			return os.Symlink(target, dstPath)

		default:
			if err := os.Link(path, dstPath); err != nil {
				result.Degraded = true
				result.Degradations = append(result.Degradations, "hardlink-fallback-copy: "+rel)
				return copyFileContent(path, dstPath, info)
			}
			return nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("hardlink clone: %w", err)
	}

	if err := fsutil.FsyncDir(dst); err != nil {
		return nil, fmt.Errorf("fsync dst: %w", err)
	}

	return result, nil
}

func copyFileContent(src, dst string, info os.FileInfo) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open src %s: %w", src, err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("create dst %s: %w", dst, err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return dstFile.Sync()
}
