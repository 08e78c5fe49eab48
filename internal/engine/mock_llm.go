package engine

import (
	"context"
	"sync"

	"github.com/fintrax/pettyflow/internal/llm"
	"github.com/fintrax/pettyflow/internal/model"
)

// MockClassifier is a test implementation of the AIClassifier interface.
// It returns canned responses and records every call for count assertions.
type MockClassifier struct {
	Response  llm.ClassificationResponse
	Err       error
	Responses map[string]llm.ClassificationResponse
	calls     []MockCall
	mu        sync.Mutex
}

// MockCall records the details of one classification request.
type MockCall struct {
	Description string
	Amount      string
}

// NewMockClassifier creates a new mock AI classifier.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{
		Responses: make(map[string]llm.ClassificationResponse),
	}
}

// Classify returns the canned response for the description, the default
// response otherwise, or the configured error.
func (m *MockClassifier) Classify(_ context.Context, description, amount string, _ []model.Account) (llm.ClassificationResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Description: description, Amount: amount})

	if m.Err != nil {
		return llm.ClassificationResponse{}, m.Err
	}
	if resp, ok := m.Responses[description]; ok {
		return resp, nil
	}
	return m.Response, nil
}

// CallCount returns how many classification requests were made.
func (m *MockClassifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded calls.
func (m *MockClassifier) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}
