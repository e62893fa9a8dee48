package engine_test

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/jvs-project/taleforge/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHardlinkEngine_Name(t *testing.T) {
	e := engine.NewHardlinkEngine()
	assert.Equal(t, "hardlink", string(e.Name()))
}

func TestHardlinkEngine_Clone_SharesInode(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")

	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("world"), 0644))

	e := engine.NewHardlinkEngine()
	result, err := e.Clone(src, dst)
	require.NoError(t, err)
	assert.False(t, result.Degraded)

	srcInfo, err := os.Stat(filepath.Join(src, "a.txt"))
	require.NoError(t, err)
	dstInfo, err := os.Stat(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)

	srcStat := srcInfo.Sys().(*syscall.Stat_t)
	dstStat := dstInfo.Sys().(*syscall.Stat_t)
	assert.Equal(t, srcStat.Ino, dstStat.Ino, "hardlinked files must share an inode")

	data, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))
}

func TestHardlinkEngine_Clone_PreservesSymlinks(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")

	require.NoError(t, os.WriteFile(filepath.Join(src, "real.txt"), []byte("x"), 0644))
	require.NoError(t, os.Symlink("real.txt", filepath.Join(src, "link.txt")))

	e := engine.NewHardlinkEngine()
	_, err := e.Clone(src, dst)
	require.NoError(t, err)

	target, err := os.Readlink(filepath.Join(dst, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "real.txt", target)
}
