// Package pathutil provides name validation and collision-resolution
// utilities shared by the Hierarchy Core (C3).
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jvs-project/taleforge/pkg/errclass"
)

// reservedDeviceNames are Windows device names that are unsafe as a
// directory/file component on any platform this service might run on.
var reservedDeviceNames = regexp.MustCompile(`(?i)^(CON|PRN|AUX|NUL|COM[1-9]|LPT[1-9])(\.[^.]*)?$`)

// ValidateName checks a proposed version/run name for portable-filename
// safety, per §4.3.1: non-empty, no path separators, not "."/"..", no
// reserved device names, no control characters.
func ValidateName(name string) error {
	if name == "" {
		return errclass.ErrInvalidName.WithMessage("name must not be empty")
	}

	name = norm.NFC.String(name)

	if name == "." || name == ".." {
		return errclass.ErrInvalidName.WithMessagef("name must not be '.' or '..': %s", name)
	}

	if strings.ContainsAny(name, "/\\") {
		return errclass.ErrInvalidName.WithMessagef("name must not contain path separators: %s", name)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return errclass.ErrInvalidName.WithMessagef("name must not contain control characters: %q", name)
		}
	}

	if reservedDeviceNames.MatchString(name) {
		return errclass.ErrInvalidName.WithMessagef("name is a reserved device name: %s", name)
	}

	return nil
}

// ResolveCollision returns a name that does not collide with any sibling,
// per §4.3.1. exists reports whether a sibling with the given candidate
// name is already present. When allowRename is false, a collision on the
// proposed name itself is a hard NameConflict. When allowRename is true,
// "<name> (n)" is tried for n = 1..100; the first free candidate wins, and
// if none are free the 100th candidate is accepted regardless.
func ResolveCollision(name string, allowRename bool, exists func(candidate string) (bool, error)) (string, error) {
	taken, err := exists(name)
	if err != nil {
		return "", err
	}
	if !taken {
		return name, nil
	}
	if !allowRename {
		return "", errclass.ErrNameConflict.WithMessagef("name already in use: %s", name)
	}

	var candidate string
	for n := 1; n <= 100; n++ {
		candidate = fmt.Sprintf("%s (%d)", name, n)
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return candidate, nil
}

// ValidatePathSafety verifies target path does not escape root.
func ValidatePathSafety(root, targetPath string) error {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return errclass.ErrFilesystemError.WithMessagef("cannot resolve root: %v", err)
	}

	resolvedTarget, err := filepath.EvalSymlinks(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			resolvedTarget = resolveClosestAncestor(targetPath)
		} else {
			return errclass.ErrFilesystemError.WithMessagef("cannot resolve target: %v", err)
		}
	}

	if !strings.HasPrefix(resolvedTarget+"/", resolvedRoot+"/") && resolvedTarget != resolvedRoot {
		return errclass.ErrFilesystemError.WithMessagef("path escapes root: %s", targetPath)
	}

	return nil
}

// resolveClosestAncestor walks up from path to find the closest existing
// ancestor, resolves it, then appends the remaining components.
func resolveClosestAncestor(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = resolveClosestAncestor(dir)
		} else {
			return filepath.Clean(path)
		}
	}
	return filepath.Join(resolved, base)
}
