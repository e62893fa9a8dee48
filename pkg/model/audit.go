package model

import "time"

// AuditEventType identifies the type of auditable event.
type AuditEventType string

const (
	EventVersionCreate  AuditEventType = "version_create"
	EventVersionDelete  AuditEventType = "version_delete"
	EventVersionRename  AuditEventType = "version_rename"
	EventVersionRestore AuditEventType = "version_restore"
	EventRunCreate      AuditEventType = "run_create"
	EventRunDelete      AuditEventType = "run_delete"
	EventRunStatus      AuditEventType = "run_status_changed"
	EventForkStart      AuditEventType = "fork_start"
	EventForkComplete   AuditEventType = "fork_complete"
)

// AuditRecord is a single line in the audit log (JSONL format), hash-chained
// so any record's integrity can be checked against its predecessor.
type AuditRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  AuditEventType `json:"event_type"`
	ProjectID  string         `json:"project_id,omitempty"`
	VersionID  string         `json:"version_id,omitempty"`
	RunID      string         `json:"run_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	PrevHash   HashValue      `json:"prev_hash"`
	RecordHash HashValue      `json:"record_hash"`
}
