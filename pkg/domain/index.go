package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// IndexFileName is the manifest expected at the root of a modpack archive.
const IndexFileName = "modrinth.index.json"

// Index is the modpack manifest: declared dependencies (minecraft
// version + exactly one loader key) and the mod file list.
type Index struct {
	Dependencies map[string]string `json:"dependencies"`
	Files        []IndexFile       `json:"files"`
}

// IndexFile describes one downloadable mod entry.
//
// Hashes are carried but not verified.
type IndexFile struct {
	Path      string            `json:"path"`
	Hashes    map[string]string `json:"hashes,omitempty"`
	Downloads []string          `json:"downloads"`
}

// MinecraftVersion returns the declared minecraft version, or "".
func (x *Index) MinecraftVersion() string {
	return x.Dependencies["minecraft"]
}

// ReadIndex loads and parses the manifest from an extracted modpack
// directory.
func ReadIndex(extractDir string) (*Index, error) {
	content, err := os.ReadFile(filepath.Join(extractDir, IndexFileName))
	if err != nil {
		return nil, fmt.Errorf("modpack index not found: %w", err)
	}
	index := new(Index)
	if err := json.Unmarshal(content, index); err != nil {
		return nil, fmt.Errorf("malformed modpack index: %w", err)
	}
	return index, nil
}
