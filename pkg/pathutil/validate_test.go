package pathutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jvs-project/taleforge/pkg/errclass"
	"github.com/jvs-project/taleforge/pkg/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName_Valid(t *testing.T) {
	valid := []string{"main", "feature-1", "v1.0", "my_branch", "A-Z.test", "First Version", "First Version (1)"}
	for _, name := range valid {
		assert.NoError(t, pathutil.ValidateName(name), "should accept: %s", name)
	}
}

func TestValidateName_Empty(t *testing.T) {
	err := pathutil.ValidateName("")
	require.ErrorIs(t, err, errclass.ErrInvalidName)
}

func TestValidateName_DotDot(t *testing.T) {
	for _, name := range []string{".", ".."} {
		err := pathutil.ValidateName(name)
		require.ErrorIs(t, err, errclass.ErrInvalidName, "should reject: %s", name)
	}
}

func TestValidateName_Separators(t *testing.T) {
	for _, name := range []string{"a/b", "a\\b"} {
		err := pathutil.ValidateName(name)
		require.ErrorIs(t, err, errclass.ErrInvalidName, "should reject: %s", name)
	}
}

func TestValidateName_ControlChars(t *testing.T) {
	err := pathutil.ValidateName("hello\x00world")
	require.ErrorIs(t, err, errclass.ErrInvalidName)
}

func TestValidateName_ReservedDeviceNames(t *testing.T) {
	for _, name := range []string{"CON", "con", "NUL.txt", "COM1", "LPT9"} {
		err := pathutil.ValidateName(name)
		require.ErrorIs(t, err, errclass.ErrInvalidName, "should reject: %s", name)
	}
}

func TestResolveCollision_NoConflict(t *testing.T) {
	got, err := pathutil.ResolveCollision("First Version", false, func(string) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.Equal(t, "First Version", got)
}

func TestResolveCollision_ConflictNoRename(t *testing.T) {
	_, err := pathutil.ResolveCollision("First Version", false, func(string) (bool, error) { return true, nil })
	require.ErrorIs(t, err, errclass.ErrNameConflict)
}

func TestResolveCollision_ConflictWithRename(t *testing.T) {
	taken := map[string]bool{"First Version": true}
	got, err := pathutil.ResolveCollision("First Version", true, func(c string) (bool, error) { return taken[c], nil })
	require.NoError(t, err)
	assert.Equal(t, "First Version (1)", got)
}

func TestResolveCollision_ExhaustsProbe(t *testing.T) {
	got, err := pathutil.ResolveCollision("dup", true, func(string) (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.Equal(t, "dup (100)", got)
}

func TestValidatePathSafety_UnderRoot(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "runs", "test")
	require.NoError(t, os.MkdirAll(target, 0755))
	assert.NoError(t, pathutil.ValidatePathSafety(root, target))
}

func TestValidatePathSafety_Escape(t *testing.T) {
	root := t.TempDir()
	err := pathutil.ValidatePathSafety(root, "/tmp/evil")
	require.ErrorIs(t, err, errclass.ErrFilesystemError)
}

func TestValidatePathSafety_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	link := filepath.Join(root, "escape")
	os.Symlink("/tmp", link)
	err := pathutil.ValidatePathSafety(root, link)
	require.ErrorIs(t, err, errclass.ErrFilesystemError)
}

func TestValidatePathSafety_NonExistentTarget(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "runs", "new-run")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "runs"), 0755))
	assert.NoError(t, pathutil.ValidatePathSafety(root, target))
}
