package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facereel/internal/types"
)

// MetadataFile is the name of the per-run metadata file inside the output directory.
const MetadataFile = "metadata.json"

// WriteMetadata writes meta to path. Segments is always an array.
func WriteMetadata(path string, meta types.RunMetadata) error {
	if meta.Segments == nil {
		meta.Segments = []types.SegmentMetadata{}
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return &types.IOError{Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &types.IOError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &types.IOError{Path: path, Err: err}
	}
	return nil
}

// ReadMetadata loads a file written by WriteMetadata.
func ReadMetadata(path string) (*types.RunMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: path, Err: err}
	}
	var meta types.RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", path, err)
	}
	if meta.Segments == nil {
		meta.Segments = []types.SegmentMetadata{}
	}
	return &meta, nil
}
