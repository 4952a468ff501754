package temporal

import (
	"context"
	"fmt"
	"sync"
)

// MockStarter is a mock implementation of SwapStarter for testing.
type MockStarter struct {
	mu       sync.Mutex
	started  map[string]SwapWorkflowInput // map[workflowID]input
	startErr error
}

// NewMockStarter creates a new MockStarter.
func NewMockStarter() *MockStarter {
	return &MockStarter{
		started: make(map[string]SwapWorkflowInput),
	}
}

// StartSwap records that a workflow was started.
func (m *MockStarter) StartSwap(ctx context.Context, input SwapWorkflowInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return "", m.startErr
	}

	id := SwapWorkflowID(input.SwapID)
	if _, exists := m.started[id]; exists {
		return "", fmt.Errorf("workflow %q already started", id)
	}
	m.started[id] = input
	return "run-" + input.SwapID, nil
}

// SetStartError makes StartSwap return an error.
func (m *MockStarter) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// Started returns the input a swap was started with.
func (m *MockStarter) Started(swapID string) (SwapWorkflowInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	input, ok := m.started[SwapWorkflowID(swapID)]
	return input, ok
}

// StartCount returns the number of started workflows.
func (m *MockStarter) StartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}
