// internal/adapter/storage/roamstate_store.go

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"geochat/internal/service/roam"
)

// RoamStateStore persists a user's simulator snapshot as a JSON file so an
// active roaming item survives a restart. One file per user.
type RoamStateStore struct {
	dir    string
	userID string
}

// NewRoamStateStore creates a file-backed state store rooted at dir.
func NewRoamStateStore(dir, userID string) (*RoamStateStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating state directory: %w", err)
	}
	return &RoamStateStore{dir: dir, userID: userID}, nil
}

// Load reads the persisted snapshot, or nil when none exists.
func (s *RoamStateStore) Load() (*roam.State, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading state file: %w", err)
	}

	var state roam.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("error unmarshaling state: %w", err)
	}
	return &state, nil
}

// Save writes the snapshot through a temp file and a rename so a crash
// mid-write never leaves a truncated state behind.
func (s *RoamStateStore) Save(state *roam.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("error marshaling state: %w", err)
	}

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing state file: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("error replacing state file: %w", err)
	}
	return nil
}

func (s *RoamStateStore) path() string {
	return filepath.Join(s.dir, s.userID+".json")
}
