// Package hierarchy implements the Hierarchy Core (C3): the per-project
// critical section that serializes Versions Root mutations, reference
// counting on versions, and name-collision resolution among siblings.
package hierarchy

import (
	"context"
	"fmt"

	"github.com/jvs-project/taleforge/internal/docstore"
	"github.com/jvs-project/taleforge/pkg/errclass"
	"github.com/jvs-project/taleforge/pkg/pathutil"
)

const VersionsRootCollection = "versions_roots"
const VersionCollection = "versions"
const RunsRootCollection = "runs_roots"
const RunCollection = "runs"

// AcquireCriticalSection flips a Versions Root's critical_section flag
// from false to true. Returns errclass.ErrBusyTryLater if another caller
// already holds it, per §5.1.
func AcquireCriticalSection(ctx context.Context, store docstore.Adapter, rootID string) error {
	ok, err := store.CompareAndSet(ctx, VersionsRootCollection, rootID,
		map[string]any{"critical_section": false},
		func(cur map[string]any) (map[string]any, error) {
			cur["critical_section"] = true
			return cur, nil
		},
	)
	if err != nil {
		return err
	}
	if !ok {
		return errclass.ErrBusyTryLater.WithMessagef("versions root %s is busy", rootID)
	}
	return nil
}

// ReleaseCriticalSection flips the flag back and advances the root's
// sequence counter, marking that a mutation completed under the section.
func ReleaseCriticalSection(ctx context.Context, store docstore.Adapter, rootID string) error {
	ok, err := store.CompareAndSet(ctx, VersionsRootCollection, rootID,
		map[string]any{"critical_section": true},
		func(cur map[string]any) (map[string]any, error) {
			cur["critical_section"] = false
			if seq, ok := cur["seq"].(float64); ok {
				cur["seq"] = seq + 1
			} else {
				cur["seq"] = 1
			}
			return cur, nil
		},
	)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("release critical section %s: section was not held", rootID)
	}
	return nil
}

// WithCriticalSection acquires the Versions Root's critical section,
// runs fn, and releases it afterward regardless of fn's outcome.
func WithCriticalSection(ctx context.Context, store docstore.Adapter, rootID string, fn func(ctx context.Context) error) error {
	if err := AcquireCriticalSection(ctx, store, rootID); err != nil {
		return err
	}
	defer ReleaseCriticalSection(ctx, store, rootID)

	return fn(ctx)
}

// AdjustRefCount atomically adds delta to a version's reference count.
// Must be called from within the parent Versions Root's critical section.
func AdjustRefCount(ctx context.Context, store docstore.Adapter, versionID string, delta int64) error {
	_, err := store.CompareAndSet(ctx, VersionCollection, versionID, nil,
		func(cur map[string]any) (map[string]any, error) {
			count, _ := cur["ref_count"].(float64)
			cur["ref_count"] = count + float64(delta)
			return cur, nil
		},
	)
	return err
}

// ResolveSiblingName runs §4.3.1's collision resolution against the
// sibling version names currently registered under rootID.
func ResolveSiblingName(ctx context.Context, store docstore.Adapter, rootID, name string, allowRename bool) (string, error) {
	return ResolveNameIn(ctx, store, VersionCollection, rootID, name, allowRename)
}

// ResolveNameIn runs §4.3.1's collision resolution against the sibling
// names currently registered under rootID within collection, so the same
// logic serves both versions and runs.
func ResolveNameIn(ctx context.Context, store docstore.Adapter, collection, rootID, name string, allowRename bool) (string, error) {
	if err := pathutil.ValidateName(name); err != nil {
		return "", err
	}

	exists := func(candidate string) (bool, error) {
		var siblings []map[string]any
		if err := store.Find(ctx, collection, map[string]any{"root_id": rootID, "name": candidate, "trashed": false}, &siblings); err != nil {
			return false, err
		}
		return len(siblings) > 0, nil
	}

	return pathutil.ResolveCollision(name, allowRename, exists)
}
