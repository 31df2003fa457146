package track

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facereel/internal/types"
	"github.com/vmihailenco/msgpack/v5"
)

func isMsgpack(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		return true
	}
	return false
}

// Save writes records to path. The format follows the extension: .msgpack
// and .mpk use MessagePack, anything else JSON.
func Save(path string, records []types.FrameDetectionRecord) error {
	if records == nil {
		records = []types.FrameDetectionRecord{}
	}

	var (
		data []byte
		err  error
	)
	if isMsgpack(path) {
		data, err = msgpack.Marshal(records)
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return &types.IOError{Path: path, Err: err}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &types.IOError{Path: path, Err: err}
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &types.IOError{Path: path, Err: err}
	}
	return nil
}

// Load reads a track written by Save. Records must be in increasing frame order.
func Load(path string) ([]types.FrameDetectionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: path, Err: err}
	}

	var records []types.FrameDetectionRecord
	if isMsgpack(path) {
		err = msgpack.Unmarshal(data, &records)
	} else {
		err = json.Unmarshal(data, &records)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse track %s: %w", path, err)
	}

	prev := -1
	for i := range records {
		if records[i].Frame <= prev {
			return nil, fmt.Errorf("track %s: frame %d follows %d", path, records[i].Frame, prev)
		}
		prev = records[i].Frame
		if records[i].Faces == nil {
			records[i].Faces = []types.FaceBox{}
		}
	}
	if records == nil {
		records = []types.FrameDetectionRecord{}
	}
	return records, nil
}
