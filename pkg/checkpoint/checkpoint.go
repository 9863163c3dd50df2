// Package checkpoint persists the in-flight hourly state so the agent can
// resume mid-hour after a power loss. Checkpoints are YAML: field names
// travel with the data, so a schema change degrades gracefully instead of
// corrupting the restore.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pitstone-retail/ecr-sync/pkg/aggregate"
	"github.com/pitstone-retail/ecr-sync/pkg/pathutil"
)

// State is everything needed to resume parsing exactly where the stream
// was interrupted: the row, its pre-transaction shadow, and the event
// machine's context.
type State struct {
	Hour    int    `yaml:"hour"`
	SavedAt string `yaml:"saved_at"`

	Row    aggregate.Row  `yaml:"row"`
	Shadow *aggregate.Row `yaml:"shadow,omitempty"`

	Machine     string  `yaml:"machine"`
	EventTime   string  `yaml:"event_time"`
	EventValid  bool    `yaml:"event_valid"`
	AwaitChange bool    `yaml:"await_change"`
	CurrentPLU  int     `yaml:"current_plu"`
	CardAmount  float64 `yaml:"card_amount"`
}

// Store reads and writes per-hour checkpoint files.
type Store struct {
	paths *pathutil.PathResolver
}

// NewStore creates a checkpoint store rooted at the resolver's data dir.
func NewStore(paths *pathutil.PathResolver) *Store {
	return &Store{paths: paths}
}

// Save writes the state for its hour atomically: the YAML goes to a temp
// file first and replaces the previous checkpoint by rename.
func (s *Store) Save(st *State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	path := s.paths.GetCheckpointPath(st.Hour)
	if err := s.paths.EnsureParentDir(path); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint for a clock hour. Returns (nil, nil) when no
// checkpoint exists for that hour.
func (s *Store) Load(hour int) (*State, error) {
	path := s.paths.GetCheckpointPath(hour)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", path, err)
	}
	return &st, nil
}

// Delete removes the checkpoint for a clock hour, if present.
func (s *Store) Delete(hour int) error {
	err := os.Remove(s.paths.GetCheckpointPath(hour))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Sweep deletes every checkpoint file except the one for keepHour.
// Pass -1 to delete them all.
func (s *Store) Sweep(keepHour int) error {
	matches, err := filepath.Glob(s.paths.GetCheckpointGlob())
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	keep := ""
	if keepHour >= 0 {
		keep = s.paths.GetCheckpointPath(keepHour)
	}

	for _, m := range matches {
		if m == keep {
			continue
		}
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete stale checkpoint %s: %w", m, err)
		}
	}
	return nil
}
