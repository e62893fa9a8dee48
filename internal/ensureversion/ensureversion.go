// Package ensureversion implements the Ensure-Version Hook (C7, §4.4.4):
// export/publish callers that may or may not already know a concrete
// version id call through here so they always end up with one, without
// duplicating the Version Engine's not-modified logic.
package ensureversion

import (
	"context"

	"github.com/jvs-project/taleforge/internal/version"
	"github.com/jvs-project/taleforge/pkg/errclass"
	"github.com/jvs-project/taleforge/pkg/model"
)

// Ensure resolves versionID when non-empty, otherwise creates a new
// version (allowRename=true) and, on a not-modified short-circuit,
// resolves the existing head version instead. Either way the resolved
// version is touched to bubble it to the top of "most recently used".
func Ensure(ctx context.Context, eng *version.Engine, rootID, projectID, workspacePath, versionID string) (*model.Version, error) {
	if versionID != "" {
		v, err := eng.Get(ctx, versionID)
		if err != nil {
			return nil, err
		}
		if err := eng.Touch(ctx, v.ID); err != nil {
			return nil, err
		}
		return v, nil
	}

	result, err := eng.Create(ctx, rootID, projectID, workspacePath, "", true)
	if err == nil {
		return result.Version, nil
	}

	ce, ok := err.(*errclass.ClassError)
	if !ok || !ce.Is(errclass.ErrNotModified) {
		return nil, err
	}

	v, getErr := eng.Get(ctx, ce.Extra)
	if getErr != nil {
		return nil, getErr
	}
	if err := eng.Touch(ctx, v.ID); err != nil {
		return nil, err
	}
	return v, nil
}
