package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is a persisted copy of ledger balances.
type Snapshot struct {
	Custody   string    `json:"custody"`
	Balances  []Balance `json:"balances"`
	UpdatedAt string    `json:"updated_at"`
}

// SnapshotStore persists ledger snapshots to disk.
type SnapshotStore struct {
	path    string
	enabled bool
}

func NewSnapshotStore(path string, enabled bool) *SnapshotStore {
	return &SnapshotStore{path: path, enabled: enabled && path != ""}
}

// Load reads the snapshot. The boolean is false when none exists yet.
func (s *SnapshotStore) Load() (Snapshot, bool, error) {
	if !s.enabled {
		return Snapshot{}, false, nil
	}

	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return Snapshot{}, false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

// Save writes the ledger's balances atomically.
func (s *SnapshotStore) Save(l *MemoryLedger) error {
	if !s.enabled {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	snap := Snapshot{
		Custody:   l.Custody().Hex(),
		Balances:  l.Balances(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
