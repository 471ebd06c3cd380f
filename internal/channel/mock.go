package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockAdapter is the stand-in sender used by the seeder and local runs.
// Unlike a random mock it is deterministic: it succeeds unless FailNext
// has been armed, so scheduler behavior is reproducible.
type MockAdapter struct {
	mu       sync.Mutex
	counter  atomic.Int64
	failNext int
	Sent     []string
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

// FailNext makes the next n sends fail.
func (m *MockAdapter) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

func (m *MockAdapter) Send(ctx context.Context, recipientHandle, subject, body string) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return &SendResult{Success: false, Err: fmt.Errorf("mock send failure")}, nil
	}
	m.Sent = append(m.Sent, recipientHandle)
	id := m.counter.Add(1)
	return &SendResult{Success: true, ExternalMessageID: fmt.Sprintf("mock-%d", id)}, nil
}

func (m *MockAdapter) GetProfile(ctx context.Context, handle string) (*Profile, error) {
	return &Profile{Handle: handle}, nil
}

var _ Adapter = (*MockAdapter)(nil)
