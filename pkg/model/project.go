package model

import "time"

// Project is a tale's filesystem allocation: one Versions Root and one
// Runs Root, sharded on disk by the first two characters of ProjectID.
type Project struct {
	ProjectID      string `json:"project_id"`
	TaleID         string `json:"tale_id"`
	WorkspacePath  string `json:"workspace_path"`
	CreatorUserID  string `json:"creator_user_id,omitempty"`
	RestoredFrom   string `json:"restored_from,omitempty"`
	VersionsRootID string `json:"versions_root_id"`
	RunsRootID     string `json:"runs_root_id"`
}

// VersionsRoot is the parent document whose CriticalSection flag and Seq
// counter serialize every mutation under it, per §5.1.
type VersionsRoot struct {
	ID              string `json:"_id"`
	ProjectID       string `json:"project_id"`
	Seq             int64  `json:"seq"`
	CriticalSection bool   `json:"critical_section"`
	HeadVersionID   string `json:"head_version_id,omitempty"`
}

// RunsRoot is the parent document for a project's runs. It has no
// critical-section flag: run creation does not require serialization
// against its siblings the way version creation does.
type RunsRoot struct {
	ID        string `json:"_id"`
	ProjectID string `json:"project_id"`
	Seq       int64  `json:"seq"`
}

// Version is a named, content-addressed, hard-linked snapshot living
// under a project's Versions Root.
type Version struct {
	ID        string    `json:"_id"`
	RootID    string    `json:"root_id"`
	Name      string    `json:"name"`
	FSPath    string    `json:"fs_path"`
	RefCount  int64     `json:"ref_count"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
	Trashed   bool      `json:"trashed"`
}

// RunStatus is the run lifecycle state, per §4.5.2.
type RunStatus int

const (
	RunStatusUnknown RunStatus = iota
	RunStatusStarting
	RunStatusRunning
	RunStatusCompleted
	RunStatusFailed
	RunStatusCancelled
)

// IsTerminal reports whether s is one of the sink states (§4.5.1):
// COMPLETED, FAILED or CANCELLED never transition to anything else.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

func (s RunStatus) String() string {
	switch s {
	case RunStatusStarting:
		return "STARTING"
	case RunStatusRunning:
		return "RUNNING"
	case RunStatusCompleted:
		return "COMPLETED"
	case RunStatusFailed:
		return "FAILED"
	case RunStatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Run is a live or finished execution working copy under a project's
// Runs Root, optionally anchored to the version it was started from.
type Run struct {
	ID            string         `json:"_id"`
	RootID        string         `json:"root_id"`
	Name          string         `json:"name"`
	FSPath        string         `json:"fs_path"`
	RunVersionID  string         `json:"run_version_id,omitempty"`
	Status        RunStatus      `json:"status"`
	Meta          map[string]any `json:"meta,omitempty"`
	LastHeartbeat time.Time      `json:"last_heartbeat,omitempty"`
	Created       time.Time      `json:"created"`
	Updated       time.Time      `json:"updated"`
	Trashed       bool           `json:"trashed"`
}
