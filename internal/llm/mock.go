package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/Harshitk-cp/synapse/internal/domain"
)

// MockCall records one ProposeContinuation invocation.
type MockCall struct {
	Prompt          string
	PriorSteps      []domain.ReasoningStep
	MaxAlternatives int
}

// MockOracle is a configurable reasoning oracle for tests and local runs.
// Scripted responses are consumed in order; once exhausted the default
// behaviour produces a short deterministic chain.
type MockOracle struct {
	mu sync.Mutex

	Responses [][]domain.Continuation
	Errors    []error

	// DefaultLikelihood is used by the fallback chain.
	DefaultLikelihood float64
	// DefaultDepth is the step at which the fallback chain marks itself final.
	DefaultDepth int
	// Answer is returned by RenderAnswer when set.
	Answer string

	Calls []MockCall
}

func NewMockOracle() *MockOracle {
	return &MockOracle{
		DefaultLikelihood: 0.8,
		DefaultDepth:      2,
	}
}

func (m *MockOracle) ProposeContinuation(ctx context.Context, prompt string, priorSteps []domain.ReasoningStep, maxAlternatives int) ([]domain.Continuation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prior := make([]domain.ReasoningStep, len(priorSteps))
	copy(prior, priorSteps)
	call := len(m.Calls)
	m.Calls = append(m.Calls, MockCall{Prompt: prompt, PriorSteps: prior, MaxAlternatives: maxAlternatives})

	if call < len(m.Errors) && m.Errors[call] != nil {
		return nil, m.Errors[call]
	}
	if call < len(m.Responses) {
		out := make([]domain.Continuation, len(m.Responses[call]))
		copy(out, m.Responses[call])
		return out, nil
	}

	if maxAlternatives < 1 {
		maxAlternatives = 1
	}
	depth := len(priorSteps)
	out := make([]domain.Continuation, 0, maxAlternatives)
	for i := 0; i < maxAlternatives; i++ {
		out = append(out, domain.Continuation{
			Content:    fmt.Sprintf("Mock reasoning step %d, variant %d", depth+1, i+1),
			Likelihood: domain.ClampUnit(m.DefaultLikelihood - 0.1*float64(i)),
			Final:      depth+1 >= m.DefaultDepth,
		})
	}
	return out, nil
}

// RenderAnswer records a call with zero alternatives. Scripted Errors apply
// to it by call index; Responses do not.
func (m *MockOracle) RenderAnswer(ctx context.Context, prompt string, steps []domain.ReasoningStep) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prior := make([]domain.ReasoningStep, len(steps))
	copy(prior, steps)
	call := len(m.Calls)
	m.Calls = append(m.Calls, MockCall{Prompt: prompt, PriorSteps: prior})

	if call < len(m.Errors) && m.Errors[call] != nil {
		return "", m.Errors[call]
	}
	if m.Answer != "" {
		return m.Answer, nil
	}
	return fmt.Sprintf("Mock answer after %d reasoning step(s)", len(steps)), nil
}

// CallCount returns the number of calls made so far.
func (m *MockOracle) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
