package facecheck

import (
	"context"
	"sync"

	"github.com/johnrirwin/skinlens/internal/models"
)

// MockChecker is a simple mock implementation for tests.
type MockChecker struct {
	mu    sync.Mutex
	Err   error
	calls int
}

// Check returns the configured error and counts the call.
func (m *MockChecker) Check(ctx context.Context, img models.SelectedImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.Err
}

// Calls returns how many times Check ran.
func (m *MockChecker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
