package scrape

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// checkpointVersion is bumped whenever the on-disk layout changes. A
// mismatch discards the old file and restarts from scratch rather than
// attempting migration.
const checkpointVersion = 1

// Checkpoint is the resumable state of an incremental crawl: every mapping
// gathered so far, keyed by university ID then home module code, plus the
// set of universities already fully processed.
type Checkpoint struct {
	Version      int                             `json:"version"`
	MappingData  map[string]map[string][]Mapping `json:"mapping_data"`
	CompletedIDs []string                        `json:"completed_universities"`
	Timestamp    time.Time                       `json:"timestamp"`
}

// Completed reports whether the university ID was already processed.
func (c *Checkpoint) Completed(id string) bool {
	for _, done := range c.CompletedIDs {
		if done == id {
			return true
		}
	}
	return false
}

// CheckpointFile persists crawl state as a JSON file. Writes go through a
// temp file and rename so a crash mid-write never leaves a torn checkpoint.
type CheckpointFile struct {
	path string
}

// NewCheckpointFile creates a checkpoint store at path.
func NewCheckpointFile(path string) *CheckpointFile {
	return &CheckpointFile{path: path}
}

// Load reads the checkpoint. A missing file, an unreadable file, or a
// version mismatch all yield a fresh empty checkpoint; resuming from nothing
// is always safe, resuming from garbage is not.
func (f *CheckpointFile) Load() (*Checkpoint, error) {
	fresh := &Checkpoint{
		Version:     checkpointVersion,
		MappingData: make(map[string]map[string][]Mapping),
	}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scrape: read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fresh, nil
	}
	if cp.Version != checkpointVersion {
		return fresh, nil
	}
	if cp.MappingData == nil {
		cp.MappingData = make(map[string]map[string][]Mapping)
	}
	return &cp, nil
}

// Save writes the checkpoint atomically.
func (f *CheckpointFile) Save(cp *Checkpoint) error {
	cp.Version = checkpointVersion
	cp.Timestamp = time.Now()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("scrape: encode checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("scrape: checkpoint dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("scrape: write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("scrape: replace checkpoint: %w", err)
	}
	return nil
}

// Reset deletes the checkpoint file. Missing is not an error.
func (f *CheckpointFile) Reset() error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("scrape: reset checkpoint: %w", err)
	}
	return nil
}
