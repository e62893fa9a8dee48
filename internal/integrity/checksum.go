// Package integrity provides checksum and payload hash computation for versions.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jvs-project/taleforge/pkg/jsonutil"
	"github.com/jvs-project/taleforge/pkg/model"
)

// ComputeDescriptorChecksum computes SHA-256 checksum of the descriptor.
// Excludes descriptor_checksum and integrity_state, since both are derived
// from (and would otherwise self-reference) the checksum being computed.
func ComputeDescriptorChecksum(desc *model.Descriptor) (model.HashValue, error) {
	checksumDesc := &model.Descriptor{
		VersionID:       desc.VersionID,
		Name:            desc.Name,
		CreatedAt:       desc.CreatedAt,
		Engine:          desc.Engine,
		PayloadRootHash: desc.PayloadRootHash,
		// DescriptorChecksum: excluded
		// IntegrityState: excluded
	}

	data, err := jsonutil.CanonicalMarshal(checksumDesc)
	if err != nil {
		return "", fmt.Errorf("canonical marshal descriptor: %w", err)
	}

	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}
