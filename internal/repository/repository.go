package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rehearse/pkg/schema"
)

var (
	// ErrSessionNotFound is returned when no session has the requested ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session whose ID is taken.
	ErrSessionExists = errors.New("session already exists")
)

const (
	sessionsDir   = "sessions"
	locksDir      = "locks"
	stateFile     = "state.yaml"
	changelogFile = "changelog.yaml"
)

// Summary is the listing entry of a stored session.
type Summary struct {
	ID        string        `yaml:"id"`
	Status    schema.Status `yaml:"status"`
	Title     string        `yaml:"title,omitempty"`
	Guest     string        `yaml:"guest,omitempty"`
	TurnCount int           `yaml:"turn_count"`
	UpdatedAt time.Time     `yaml:"updated_at"`
}

// Repository stores sessions under <baseDir>/sessions/<id>/: the current
// state as state.yaml, every change as an event in changelog.yaml, and a
// snapshot every 25 events. Loading starts from the latest snapshot and
// replays the events after it.
type Repository struct {
	baseDir string
	now     func() time.Time
}

// NewRepository creates a repository rooted at baseDir.
func NewRepository(baseDir string) *Repository {
	return &Repository{
		baseDir: baseDir,
		now:     time.Now,
	}
}

func (r *Repository) sessionDir(id string) string {
	return filepath.Join(r.baseDir, sessionsDir, id)
}

// Lock returns the cross-process lock for a session. The lock file lives
// outside the session directory so transactions never move it.
func (r *Repository) Lock(id, iface string) (*FileLock, error) {
	dir := filepath.Join(r.baseDir, locksDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create locks directory: %w", err)
	}
	return NewFileLock(filepath.Join(dir, id+".lock"), id, iface), nil
}

// Create stores a new session with state as its initial state.
func (r *Repository) Create(state *schema.State) error {
	if err := checkID(state.ID); err != nil {
		return err
	}

	dir := r.sessionDir(state.ID)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w: %s", ErrSessionExists, state.ID)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return fmt.Errorf("create sessions directory: %w", err)
	}

	eventID, err := schema.NewEventID()
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	event := &schema.SessionCreated{
		EventID_:   eventID,
		State:      *state.Clone(),
		Timestamp_: r.now().UTC(),
	}

	return r.commit(state.ID, state, []schema.ChangelogEvent{event})
}

// Load returns the current state of a session.
func (r *Repository) Load(id string) (*schema.State, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	dir := r.sessionDir(id)
	log, err := readChangelog(filepath.Join(dir, changelogFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, err
	}

	state, covered, err := NewSnapshotManager(dir).LoadLatest()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if covered > len(log.Events) {
		// Snapshot ahead of the changelog: ignore it and replay everything.
		state, covered = nil, 0
	}

	state, err = replayRecords(state, log.Events[covered:])
	if err != nil {
		return nil, fmt.Errorf("replay session %s: %w", id, err)
	}
	return state, nil
}

// Apply folds delta into the stored session and records it as one event
// tagged with trigger. It returns the new state.
func (r *Repository) Apply(id string, delta schema.Delta, trigger string) (*schema.State, error) {
	state, err := r.Load(id)
	if err != nil {
		return nil, err
	}
	if delta.IsEmpty() {
		return state, nil
	}

	eventID, err := schema.NewEventID()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	next := schema.Apply(state, delta)
	event := &schema.DeltaApplied{
		EventID_:   eventID,
		Delta:      delta,
		Trigger:    trigger,
		Timestamp_: r.now().UTC(),
	}

	if err := r.commit(id, next, []schema.ChangelogEvent{event}); err != nil {
		return nil, err
	}
	return next, nil
}

// commit writes state.yaml and appends events in one transaction, adding a
// snapshot when one is due.
func (r *Repository) commit(id string, state *schema.State, events []schema.ChangelogEvent) error {
	tx := NewCopyOnWriteTx(r.sessionDir(id))
	if err := tx.Begin(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := r.writeTx(tx, id, state, events); err != nil {
		tx.rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		tx.rollback()
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) writeTx(tx *CopyOnWriteTx, id string, state *schema.State, events []schema.ChangelogEvent) error {
	stateData, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := tx.WriteFile(stateFile, stateData); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	log := changelog{SessionID: id}
	data, err := tx.ReadFile(changelogFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read changelog: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &log); err != nil {
			return fmt.Errorf("parse changelog: %w", err)
		}
	}

	for _, event := range events {
		rec, err := toRecord(event)
		if err != nil {
			return err
		}
		log.Events = append(log.Events, rec)
		log.EventsSinceSnapshot++
	}

	if NewSnapshotManager(tx.TempDir()).ShouldCreateSnapshot(log.EventsSinceSnapshot) {
		snap, err := marshalSnapshot(state, len(log.Events))
		if err != nil {
			return err
		}
		if err := tx.WriteFile(snapshotName(len(log.Events)), snap); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		log.LastSnapshot = len(log.Events)
		log.EventsSinceSnapshot = 0
	}

	data, err = yaml.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshal changelog: %w", err)
	}
	if err := tx.WriteFile(changelogFile, data); err != nil {
		return fmt.Errorf("write changelog: %w", err)
	}
	return nil
}

// List returns a summary of every stored session, most recently updated first.
func (r *Repository) List() ([]Summary, error) {
	entries, err := os.ReadDir(filepath.Join(r.baseDir, sessionsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []Summary{}, nil
		}
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		// Skip transaction working copies and backups.
		if !entry.IsDir() || strings.Contains(entry.Name(), ".") {
			continue
		}

		path := filepath.Join(r.baseDir, sessionsDir, entry.Name(), stateFile)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var state schema.State
		if err := yaml.Unmarshal(data, &state); err != nil {
			continue
		}

		s := Summary{ID: state.ID, Status: state.Status, TurnCount: state.TurnCount}
		if state.Scenario != nil {
			s.Title = state.Scenario.Title
		}
		if state.Persona != nil {
			s.Guest = state.Persona.Name
		}
		if info, err := os.Stat(path); err == nil {
			s.UpdatedAt = info.ModTime()
		}
		summaries = append(summaries, s)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func readChangelog(path string) (*changelog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read changelog: %w", err)
	}

	var log changelog
	if err := yaml.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("parse changelog: %w", err)
	}
	return &log, nil
}

// checkID rejects IDs that would escape the sessions directory.
func checkID(id string) error {
	if id == "" || id != filepath.Base(id) || strings.ContainsAny(id, `/\.`) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}
