package domain

import (
	"context"

	"github.com/google/uuid"
)

// MemoryGraphStore is the read side of the layered memory graph.
type MemoryGraphStore interface {
	// QueryLayer returns similarity-ranked hits for hint within one layer.
	// depth bounds how many hops/candidates the store considers.
	QueryLayer(ctx context.Context, layer MemoryLayer, hint string, depth int) ([]NodeRef, error)
	// GetNode returns nil, nil when the node does not exist.
	GetNode(ctx context.Context, id uuid.UUID) (*MemoryNode, error)
}

// LayerStatsProvider is optionally implemented by stores that can report
// aggregate state for a CognitiveContext snapshot.
type LayerStatsProvider interface {
	LayerStats(ctx context.Context) (MemorySnapshot, error)
}

// FusionLinker persists accepted fusion connections as graph edges.
type FusionLinker interface {
	LinkNodes(ctx context.Context, connections []FusionConnection) (int, error)
}

// EdgeMaintainer applies decay and pruning to graph edges.
type EdgeMaintainer interface {
	DecayEdges(ctx context.Context, decayRate float64, rules PruningRules) (*EdgeDecayResult, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ReasoningOracle maps a prompt and a partial trajectory to scored continuations.
type ReasoningOracle interface {
	ProposeContinuation(ctx context.Context, prompt string, priorSteps []ReasoningStep, maxAlternatives int) ([]Continuation, error)
}

// AnswerRenderer is optionally implemented by oracles that can write the
// final answer as plain text instead of a reasoning continuation.
type AnswerRenderer interface {
	RenderAnswer(ctx context.Context, prompt string, steps []ReasoningStep) (string, error)
}

// MemoryNodeStore is the write side used by the node API and seed tooling.
type MemoryNodeStore interface {
	CreateNode(ctx context.Context, n *MemoryNode) error
	GetNode(ctx context.Context, id uuid.UUID) (*MemoryNode, error)
	DeleteNode(ctx context.Context, id uuid.UUID) error
}
