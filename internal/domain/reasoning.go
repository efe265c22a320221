package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ReasoningStep is one unit of a trajectory. Steps are never mutated after creation.
type ReasoningStep struct {
	Content    string  `json:"content"`
	Likelihood float64 `json:"likelihood"`
}

// ReasoningTrajectory is an immutable chain of reasoning steps.
// Use the With* methods to derive modified copies.
type ReasoningTrajectory struct {
	ID             uuid.UUID       `json:"id"`
	Steps          []ReasoningStep `json:"steps"`
	Likelihood     float64         `json:"likelihood"`
	IsExplored     bool            `json:"is_explored"`
	OriginalPolicy bool            `json:"original_policy"`
}

// NewTrajectory copies steps so the caller's slice can't alias the trajectory.
func NewTrajectory(steps []ReasoningStep, likelihood float64, originalPolicy bool) ReasoningTrajectory {
	owned := make([]ReasoningStep, len(steps))
	copy(owned, steps)
	return ReasoningTrajectory{
		ID:             uuid.New(),
		Steps:          owned,
		Likelihood:     likelihood,
		OriginalPolicy: originalPolicy,
	}
}

// WithExplored returns a copy marked as probed by the exploration loop.
func (t ReasoningTrajectory) WithExplored() ReasoningTrajectory {
	out := t
	out.Steps = t.StepsCopy()
	out.IsExplored = true
	return out
}

// StepsCopy returns the steps in a fresh slice.
func (t ReasoningTrajectory) StepsCopy() []ReasoningStep {
	out := make([]ReasoningStep, len(t.Steps))
	copy(out, t.Steps)
	return out
}

// LastStep returns the final step. Trajectories always hold at least one.
func (t ReasoningTrajectory) LastStep() ReasoningStep {
	if len(t.Steps) == 0 {
		return ReasoningStep{}
	}
	return t.Steps[len(t.Steps)-1]
}

// Text joins the step contents, used as the probe hint.
func (t ReasoningTrajectory) Text() string {
	parts := make([]string, 0, len(t.Steps))
	for _, s := range t.Steps {
		parts = append(parts, s.Content)
	}
	return strings.Join(parts, "\n")
}

// Continuation is one scored proposal from the reasoning oracle.
type Continuation struct {
	Content    string  `json:"content"`
	Likelihood float64 `json:"likelihood"`
	Final      bool    `json:"final,omitempty"`
}

// CognitiveContext is created fresh per query and never modified.
type CognitiveContext struct {
	Query              string         `json:"query"`
	Memory             MemorySnapshot `json:"memory"`
	MaxReasoningDepth  int            `json:"max_reasoning_depth"`
	ExplorationEnabled bool           `json:"exploration_enabled"`
}

// ReasoningResult pairs a trajectory with the confidence it earned.
type ReasoningResult struct {
	Trajectory ReasoningTrajectory `json:"trajectory"`
	Confidence float64             `json:"confidence"`
}
