package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"rehearse/pkg/schema"
)

const (
	snapshotInterval = 25 // Snapshot every 25 events
	snapshotDir      = "snapshots"
)

// snapshot is a materialized state covering the first Events changelog events.
type snapshot struct {
	Events int           `yaml:"events"`
	State  *schema.State `yaml:"state"`
}

// SnapshotManager finds and loads the snapshots of one session.
type SnapshotManager struct {
	dir string
}

// NewSnapshotManager creates a snapshot manager for a session directory.
func NewSnapshotManager(dir string) *SnapshotManager {
	return &SnapshotManager{dir: dir}
}

// ShouldCreateSnapshot reports whether enough events accumulated since the
// last snapshot.
func (sm *SnapshotManager) ShouldCreateSnapshot(eventsSinceSnapshot int) bool {
	return eventsSinceSnapshot >= snapshotInterval
}

// snapshotName names a snapshot by the number of events it covers, so names
// sort in event order.
func snapshotName(events int) string {
	return filepath.Join(snapshotDir, fmt.Sprintf("%08d.yaml", events))
}

// marshalSnapshot encodes state as a snapshot covering events.
func marshalSnapshot(state *schema.State, events int) ([]byte, error) {
	data, err := yaml.Marshal(snapshot{Events: events, State: state})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// LoadLatest returns the most recent readable snapshot and the number of
// events it covers. It returns a nil state when there is none; a corrupted
// snapshot is skipped in favour of an older one.
func (sm *SnapshotManager) LoadLatest() (*schema.State, int, error) {
	entries, err := os.ReadDir(filepath.Join(sm.dir, snapshotDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read snapshots: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSuffix(name, ".yaml")); err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(sm.dir, snapshotDir, name))
		if err != nil {
			return nil, 0, fmt.Errorf("read snapshot: %w", err)
		}

		var snap snapshot
		if err := yaml.Unmarshal(data, &snap); err != nil || snap.State == nil {
			continue
		}
		return snap.State, snap.Events, nil
	}

	return nil, 0, nil
}
