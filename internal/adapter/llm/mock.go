package llm

import (
	"context"
	"sync"

	"docqa/internal/port"
)

// MockGenerator returns canned answers and records every call.
type MockGenerator struct {
	// Reply builds the answer; when nil the answer is "mock answer".
	Reply func(systemPrompt, userPrompt string) (port.Generation, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded Generate call.
type MockCall struct {
	SystemPrompt string
	UserPrompt   string
}

func (m *MockGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (port.Generation, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return port.Generation{}, err
	}
	if m.Reply != nil {
		return m.Reply(systemPrompt, userPrompt)
	}
	return port.Generation{Text: "mock answer", PromptTokens: 100, CompletionTokens: 20}, nil
}

// Calls returns the recorded calls.
func (m *MockGenerator) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

func (m *MockGenerator) ModelName() string {
	return "mock"
}
