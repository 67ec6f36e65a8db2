package executor

import (
	"context"
	"sync"
	"time"

	"github.com/riftworks/taskqueue/internal/models"
)

// MockExecutor is a configurable TaskExecutor for tests.
type MockExecutor struct {
	mu sync.Mutex

	// ExecuteFunc, when set, overrides the default canned behavior.
	ExecuteFunc func(ctx context.Context, task *models.Task) (*Outcome, error)

	// HealthErr is returned by IsHealthy.
	HealthErr error

	// Calls records every task passed to Execute, in order.
	Calls []*models.Task
}

// NewMockExecutor creates a MockExecutor that reports success for
// every task.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

func (m *MockExecutor) Execute(ctx context.Context, task *models.Task) (*Outcome, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, task)
	fn := m.ExecuteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, task)
	}

	now := time.Now()
	result, _ := models.NewRawJSON(map[string]interface{}{"ok": true})
	return &Outcome{
		OK:          true,
		Result:      result,
		StartedAt:   now,
		CompletedAt: now,
	}, nil
}

func (m *MockExecutor) IsHealthy(ctx context.Context) error {
	return m.HealthErr
}

// CallCount returns how many attempts have been dispatched.
func (m *MockExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
