package collector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the last-capture summary shown by the status command. It is the
// only thing the collector persists locally.
type State struct {
	LastCaptureAt    time.Time `json:"lastCaptureAt"`
	LastCaptureCount int       `json:"lastCaptureCount"`
}

// StateFile persists State as a small JSON file.
type StateFile struct {
	path string
}

// NewStateFile creates a state file handle at path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Load reads the stored state. A missing file yields the zero state.
func (s *StateFile) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &state, nil
}

// Record overwrites the stored state with the given capture summary.
func (s *StateFile) Record(at time.Time, count int) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(State{LastCaptureAt: at, LastCaptureCount: count}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}
