package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SidecarName is the metadata file written into every artifact folder.
const SidecarName = "metadata.json"

// WriteSidecar persists the metadata sidecar into the artifact directory.
// It is written before the ledger row so a lost database can be rebuilt by
// rescanning artifact folders.
func WriteSidecar(dir string, meta Metadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure artifact directory: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata sidecar: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SidecarName), data, 0o644); err != nil {
		return fmt.Errorf("write metadata sidecar: %w", err)
	}
	return nil
}

// ReadSidecar loads the metadata sidecar from an artifact directory.
func ReadSidecar(dir string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, SidecarName))
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata sidecar: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata sidecar: %w", err)
	}
	return meta, nil
}
