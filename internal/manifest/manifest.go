// Package manifest is the opaque Manifest producer collaborator (§4.4.1
// step 7): it hands the Version Engine the dataset and environment
// metadata to embed in a version, and parses that metadata back out of
// an existing version's files on restore. Producers are free to call out
// to whatever system tracks dataset lineage and runtime environments;
// taleforge only needs the opaque strings, not their internal shape.
package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jvs-project/taleforge/pkg/fsutil"
)

const (
	manifestFile    = "manifest.json"
	environmentFile = "environment.json"
)

// Metadata is the pair of opaque documents a Producer yields for a
// project at version-creation time.
type Metadata struct {
	Manifest    string
	Environment string
}

// Producer yields the current dataset/environment metadata for a
// project's live workspace.
type Producer interface {
	Produce(ctx context.Context, projectID, workspacePath string) (*Metadata, error)
}

// Parser reads the manifest/environment metadata already embedded in a
// version directory.
type Parser interface {
	Parse(ctx context.Context, versionDir string) (*Metadata, error)
}

// PassthroughProducer is the default Producer: it has no external
// dataset/environment tracker to call, so it emits a fixed empty
// document pair. Real deployments supply their own Producer.
type PassthroughProducer struct{}

// NewPassthroughProducer builds a Producer that yields empty metadata.
func NewPassthroughProducer() *PassthroughProducer {
	return &PassthroughProducer{}
}

func (p *PassthroughProducer) Produce(ctx context.Context, projectID, workspacePath string) (*Metadata, error) {
	return &Metadata{Manifest: "{}", Environment: "{}"}, nil
}

// FileParser reads manifest.json/environment.json directly out of a
// version directory, the inverse of Write's layout.
type FileParser struct{}

// NewFileParser builds a Parser reading manifest/environment files from disk.
func NewFileParser() *FileParser {
	return &FileParser{}
}

func (p *FileParser) Parse(ctx context.Context, versionDir string) (*Metadata, error) {
	manifestBytes, err := os.ReadFile(filepath.Join(versionDir, manifestFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	envBytes, err := os.ReadFile(filepath.Join(versionDir, environmentFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return &Metadata{Manifest: string(manifestBytes), Environment: string(envBytes)}, nil
}

// Write persists a version's manifest.json/environment.json under
// versionDir, embedding name into the manifest document per §4.4.2 (rename
// rewrites the same file to keep the embedded name current). Both files
// are written atomically (temp file + rename) rather than truncated in
// place, since versionDir may contain files hard-linked from an earlier
// version (e.g. when Restore clones a published version's directory) and
// an in-place truncate would corrupt that shared inode.
func Write(versionDir, name string, meta *Metadata) error {
	doc := map[string]any{"name": name}
	if meta.Manifest != "" {
		var raw json.RawMessage = json.RawMessage(meta.Manifest)
		doc["manifest"] = raw
	}
	manifestBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.AtomicWrite(filepath.Join(versionDir, manifestFile), manifestBytes, 0644); err != nil {
		return err
	}
	return fsutil.AtomicWrite(filepath.Join(versionDir, environmentFile), []byte(meta.Environment), 0644)
}
