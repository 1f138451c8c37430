package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rehearse/internal/llm"
)

// FixtureDir is where recorded stage outputs live, relative to this package.
const FixtureDir = "testdata/fixtures"

// NewFixtureGenerator creates a mock generator scripted with every fixture in
// dir. Fixtures for the same contract are queued in file-name order.
func NewFixtureGenerator(dir string) (*llm.MockGenerator, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixture dir: %w", err)
	}

	mock := llm.NewMockGenerator()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		fixture, err := llm.LoadFixture(dir, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		mock.OnFixture(fixture)
	}
	return mock, nil
}
