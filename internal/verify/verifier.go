package verify

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jvs-project/taleforge/internal/integrity"
	"github.com/jvs-project/taleforge/internal/pathlayout"
	"github.com/jvs-project/taleforge/pkg/model"
)

// Result contains verification results for a single version.
type Result struct {
	VersionID        string `json:"version_id"`
	ChecksumValid    bool   `json:"checksum_valid"`
	PayloadHashValid bool   `json:"payload_hash_valid"`
	TamperDetected   bool   `json:"tamper_detected"`
	Severity         string `json:"severity,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Verifier performs integrity verification on versions under one project's
// Versions Root.
type Verifier struct {
	versionsRoot string
}

// NewVerifier creates a verifier scoped to a project's Versions Root directory.
func NewVerifier(versionsRoot string) *Verifier {
	return &Verifier{versionsRoot: versionsRoot}
}

// VerifyVersion verifies a single version's descriptor checksum and,
// optionally, its payload root hash.
func (v *Verifier) VerifyVersion(versionID string, verifyPayloadHash bool) (*Result, error) {
	result := &Result{
		VersionID: versionID,
	}

	versionDir := pathlayout.VersionDir(v.versionsRoot, versionID)
	desc, err := loadDescriptor(pathlayout.DescriptorPath(versionDir))
	if err != nil {
		result.Error = err.Error()
		result.TamperDetected = true
		result.Severity = "critical"
		return result, nil
	}

	computedChecksum, err := integrity.ComputeDescriptorChecksum(desc)
	if err != nil {
		result.Error = fmt.Sprintf("compute checksum: %v", err)
		result.Severity = "error"
		return result, nil
	}

	result.ChecksumValid = computedChecksum == desc.DescriptorChecksum
	if !result.ChecksumValid {
		result.TamperDetected = true
		result.Severity = "critical"
		result.Error = "descriptor checksum mismatch"
		return result, nil
	}

	if verifyPayloadHash {
		computedHash, err := integrity.ComputePayloadRootHash(pathlayout.WorkspaceDir(versionDir))
		if err != nil {
			result.Error = fmt.Sprintf("compute payload hash: %v", err)
			result.Severity = "error"
			return result, nil
		}

		result.PayloadHashValid = computedHash == desc.PayloadRootHash
		if !result.PayloadHashValid {
			result.TamperDetected = true
			result.Severity = "critical"
			result.Error = "payload hash mismatch"
		}
	}

	return result, nil
}

// VerifyAll verifies every version currently published under the Versions Root.
func (v *Verifier) VerifyAll(verifyPayloadHash bool) ([]*Result, error) {
	names, err := pathlayout.ListEntries(v.versionsRoot)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	var results []*Result
	for _, versionID := range names {
		result, err := v.VerifyVersion(versionID, verifyPayloadHash)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, nil
}

func loadDescriptor(path string) (*model.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	var desc model.Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("parse descriptor: %w", err)
	}
	return &desc, nil
}
