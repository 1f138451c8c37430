package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Fixture represents a recorded generation for testing.
type Fixture struct {
	Name      string          `json:"name"`
	Contract  string          `json:"contract"`
	Prompt    string          `json:"prompt,omitempty"`
	Output    json.RawMessage `json:"output"`
	Model     string          `json:"model"`
	Timestamp time.Time       `json:"timestamp"`
}

// UnmarshalOutput unmarshals the fixture output into the specified type.
func (f *Fixture) UnmarshalOutput(v any) error {
	return json.Unmarshal(f.Output, v)
}

// LoadFixture loads a fixture from dir.
func LoadFixture(dir, name string) (*Fixture, error) {
	fixturePath := filepath.Join(dir, name+".json")

	data, err := os.ReadFile(fixturePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("fixture not found: %s\n\nFixtures not recorded. Run:\n  rehearse start --record-fixtures %s", name, dir)
		}
		return nil, fmt.Errorf("read fixture %s: %w", name, err)
	}

	var fixture Fixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("parse fixture %s (invalid JSON): %w", name, err)
	}

	if err := fixture.check(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", name, err)
	}

	return &fixture, nil
}

// SaveFixture saves a fixture to dir.
func SaveFixture(dir, name string, fixture *Fixture) error {
	if err := fixture.check(); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create fixtures directory: %w", err)
	}

	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	// Write to temp, then rename
	fixturePath := filepath.Join(dir, name+".json")
	tempPath := fixturePath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp fixture %s: %w", name, err)
	}

	if err := os.Rename(tempPath, fixturePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename fixture %s: %w", name, err)
	}

	return nil
}

func (f *Fixture) check() error {
	if f.Name == "" {
		return fmt.Errorf("missing 'name' field")
	}
	if f.Contract == "" {
		return fmt.Errorf("missing 'contract' field")
	}
	if f.Model == "" {
		return fmt.Errorf("missing 'model' field")
	}
	if len(f.Output) == 0 {
		return fmt.Errorf("missing 'output' field")
	}
	return nil
}

// Recorder wraps a Generator and saves every successful generation as a
// fixture named <contract>-<n>.
type Recorder struct {
	next  Generator
	dir   string
	model string

	mu     sync.Mutex
	counts map[string]int
}

// NewRecorder creates a recording Generator writing fixtures into dir.
func NewRecorder(next Generator, dir, model string) *Recorder {
	return &Recorder{
		next:   next,
		dir:    dir,
		model:  model,
		counts: make(map[string]int),
	}
}

// Generate implements Generator.
func (r *Recorder) Generate(ctx context.Context, prompt string, contract *Contract) (json.RawMessage, error) {
	raw, err := r.next.Generate(ctx, prompt, contract)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.counts[contract.Name]++
	name := fmt.Sprintf("%s-%d", contract.Name, r.counts[contract.Name])
	r.mu.Unlock()

	fixture := &Fixture{
		Name:      name,
		Contract:  contract.Name,
		Prompt:    prompt,
		Output:    raw,
		Model:     r.model,
		Timestamp: time.Now().UTC(),
	}
	if err := SaveFixture(r.dir, name, fixture); err != nil {
		return nil, fmt.Errorf("record fixture: %w", err)
	}
	return raw, nil
}
