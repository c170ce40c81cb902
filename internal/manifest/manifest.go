// Package manifest loads the Obsidian plugin manifest and resolves the
// directory inside a vault the plugin deploys to.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileName is the manifest file name expected at the plugin project root.
const FileName = "manifest.json"

// Sentinel errors returned by Load. All of them are fatal for the pipeline.
var (
	ErrMissing   = errors.New("manifest file not found")
	ErrMalformed = errors.New("manifest is not valid JSON")
	ErrNoID      = errors.New(`manifest is missing the required "id" field`)
)

// Descriptor identifies the plugin being built and where it deploys to.
// Immutable once loaded.
type Descriptor struct {
	// ID is the unique plugin identifier from the manifest.
	ID string

	// Name is the display name, falling back to ID when absent.
	Name string

	// DestDir is the vault directory artifacts are copied into:
	// <vaultRoot>/.obsidian/plugins/<ID>.
	DestDir string
}

// Load reads the manifest at manifestPath and resolves the destination
// directory under vaultRoot. Load may be called repeatedly; nothing is
// cached between calls.
func Load(manifestPath, vaultRoot string) (*Descriptor, error) {
	data, err := os.ReadFile(manifestPath) //nolint:gosec // User-specified manifest path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, manifestPath)
		}

		return nil, fmt.Errorf("reading %s: %w", manifestPath, err)
	}

	var raw struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, manifestPath, err)
	}

	if raw.ID == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoID, manifestPath)
	}

	name := raw.Name
	if name == "" {
		name = raw.ID
	}

	return &Descriptor{
		ID:      raw.ID,
		Name:    name,
		DestDir: DestDir(vaultRoot, raw.ID),
	}, nil
}

// DestDir returns the plugin installation directory for id under vaultRoot.
func DestDir(vaultRoot, id string) string {
	return filepath.Join(vaultRoot, ".obsidian", "plugins", id)
}
