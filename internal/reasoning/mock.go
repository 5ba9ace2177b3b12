package reasoning

import (
	"context"
	"fmt"
	"sync"
)

// MockService is a scripted reasoning backend. Replies are deterministic and
// every request is recorded, which makes negotiation flows reproducible
// without a live model endpoint.
type MockService struct {
	mu    sync.Mutex
	calls int

	// GenerateFunc, when set, overrides the canned free-text reply. The call
	// index is 1-based and shared with structured calls.
	GenerateFunc func(call int, messages []ChatMessage) (string, error)

	// StructuredFunc, when set, supplies the raw JSON for structured calls.
	StructuredFunc func(call int, messages []ChatMessage, schema ResponseSchema) (string, error)

	generateCalls   [][]ChatMessage
	structuredCalls [][]ChatMessage
}

// Ensure MockService implements the Service interface
var _ Service = (*MockService)(nil)

// NewMockService creates a new scripted reasoning backend
func NewMockService() *MockService {
	return &MockService{}
}

// Generate returns the scripted free-text reply for this call
func (m *MockService) Generate(ctx context.Context, messages []ChatMessage) (string, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.generateCalls = append(m.generateCalls, copyMessages(messages))
	fn := m.GenerateFunc
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if fn != nil {
		return fn(call, messages)
	}
	return fmt.Sprintf("scripted reply %d", call), nil
}

// GenerateStructured returns the scripted JSON reply unmarshalled into target
func (m *MockService) GenerateStructured(ctx context.Context, messages []ChatMessage, schema ResponseSchema, target interface{}) error {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.structuredCalls = append(m.structuredCalls, copyMessages(messages))
	fn := m.StructuredFunc
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if fn == nil {
		return fmt.Errorf("no structured reply scripted for call %d", call)
	}

	content, err := fn(call, messages, schema)
	if err != nil {
		return err
	}

	return parseJSONContent(content, target)
}

// Calls returns the total number of calls received so far
func (m *MockService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every free-text request received
func (m *MockService) Requests() [][]ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]ChatMessage, len(m.generateCalls))
	copy(out, m.generateCalls)
	return out
}

// StructuredRequests returns a copy of every structured request received
func (m *MockService) StructuredRequests() [][]ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]ChatMessage, len(m.structuredCalls))
	copy(out, m.structuredCalls)
	return out
}

func copyMessages(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(messages))
	copy(out, messages)
	return out
}
