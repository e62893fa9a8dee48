package model

import "time"

// Descriptor is the on-disk record of a version's identity, engine and
// integrity data (7 fields). Written as manifest.json's sibling
// descriptor.json during §4.4.1 publish.
type Descriptor struct {
	VersionID          string         `json:"version_id"`
	Name               string         `json:"name"`
	CreatedAt          time.Time      `json:"created_at"`
	Engine             EngineType     `json:"engine"`
	PayloadRootHash    HashValue      `json:"payload_root_hash"`
	DescriptorChecksum HashValue      `json:"descriptor_checksum"`
	IntegrityState     IntegrityState `json:"integrity_state"`
}

// ReadyMarker is the .READY file content written last during §4.4.1,
// proving the payload and descriptor were fully committed before the
// rename that makes the version visible.
type ReadyMarker struct {
	VersionID   string    `json:"version_id"`
	CompletedAt time.Time `json:"completed_at"`
	PayloadHash HashValue `json:"payload_root_hash"`
}

// IntentRecord tracks an in-progress version creation for crash recovery,
// saved in the store's "intents" collection under the Versions Root id
// before any filesystem work begins and removed when the creation's
// critical section returns, whether it succeeded or not.
type IntentRecord struct {
	VersionID string     `json:"version_id"`
	Name      string     `json:"name"`
	StartedAt time.Time  `json:"started_at"`
	Engine    EngineType `json:"engine"`
}
