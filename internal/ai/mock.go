package ai

import (
	"context"
	"sync"
)

// MockProvider returns scripted replies in order, then echoes the user text. It records
// every request and is safe for concurrent use.
type MockProvider struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []Request
}

// NewMockProvider creates a mock that answers with replies in order.
func NewMockProvider(replies ...string) *MockProvider {
	return &MockProvider{replies: replies}
}

// Name returns the provider name.
func (m *MockProvider) Name() string { return "mock" }

// SetError makes every following Generate call fail with err (nil clears it).
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Generate records req and returns the next scripted reply.
func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) > 0 {
		text := m.replies[0]
		m.replies = m.replies[1:]
		return &Response{Text: text}, nil
	}
	if req.Text == "" {
		return &Response{Text: "Nice picture!"}, nil
	}
	return &Response{Text: "You said: " + req.Text}, nil
}

// Requests returns a copy of the recorded requests.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
