package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockGenerator is a scripted Generator for testing. Responses are queued per
// contract name; the last queued response repeats once the queue drains.
// It is safe for concurrent use.
type MockGenerator struct {
	mu        sync.Mutex
	responses map[string][]mockReply
	calls     map[string]int
	prompts   map[string][]string
}

type mockReply struct {
	raw json.RawMessage
	err error
}

// NewMockGenerator creates an empty mock. Calls for contracts without a
// script fail with an API error.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		responses: make(map[string][]mockReply),
		calls:     make(map[string]int),
		prompts:   make(map[string][]string),
	}
}

// On queues responses for a contract. A string is returned verbatim, so it can
// carry malformed JSON; anything else is JSON-encoded.
func (m *MockGenerator) On(contract string, responses ...any) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range responses {
		var raw json.RawMessage
		switch v := r.(type) {
		case string:
			raw = json.RawMessage(v)
		case json.RawMessage:
			raw = v
		default:
			data, err := json.Marshal(v)
			if err != nil {
				panic(fmt.Sprintf("mock response for %s: %v", contract, err))
			}
			raw = data
		}
		m.responses[contract] = append(m.responses[contract], mockReply{raw: raw})
	}
	return m
}

// Fail queues an error for a contract.
func (m *MockGenerator) Fail(contract string, err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[contract] = append(m.responses[contract], mockReply{err: err})
	return m
}

// OnFixture queues a recorded fixture's output for its contract.
func (m *MockGenerator) OnFixture(f *Fixture) *MockGenerator {
	return m.On(f.Contract, f.Output)
}

// Calls returns how many times a contract was requested.
func (m *MockGenerator) Calls(contract string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[contract]
}

// TotalCalls returns the number of Generate calls across all contracts.
func (m *MockGenerator) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// Prompts returns the prompts sent for a contract, in call order.
func (m *MockGenerator) Prompts(contract string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts[contract]...)
}

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, prompt string, contract *Contract) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewTimeoutError("mock", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[contract.Name]++
	m.prompts[contract.Name] = append(m.prompts[contract.Name], prompt)

	queue := m.responses[contract.Name]
	if len(queue) == 0 {
		return nil, NewAPIError("mock", 0, fmt.Sprintf("no scripted response for contract %s", contract.Name))
	}

	reply := queue[0]
	if len(queue) > 1 {
		m.responses[contract.Name] = queue[1:]
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return append(json.RawMessage(nil), reply.raw...), nil
}

// FailingGenerator fails every call with Err (a network error when nil).
type FailingGenerator struct {
	Err error

	mu    sync.Mutex
	calls int
}

// Generate implements Generator.
func (f *FailingGenerator) Generate(ctx context.Context, prompt string, contract *Contract) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	return nil, NewNetworkError("failing", fmt.Errorf("backend unavailable"))
}

// Calls returns how many times Generate was called.
func (f *FailingGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
