package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"go.uber.org/zap"
)

// Consolidation weights, summing to 1.
const (
	ReasoningWeight  = 0.40
	RelevanceWeight  = 0.35
	FusionWeight     = 0.25
	SummaryNodeLimit = 8

	// Total relevance at which the relevance term reaches ~63%.
	RelevanceSaturation = 3.0
)

// ConsolidationEngine merges reasoning, retrieval and fusion into a single
// confidence-scored body of knowledge.
type ConsolidationEngine struct {
	logger *zap.Logger
}

func NewConsolidationEngine(logger *zap.Logger) *ConsolidationEngine {
	return &ConsolidationEngine{logger: logger}
}

func (e *ConsolidationEngine) ConsolidateKnowledge(ctx context.Context, reasoning domain.ReasoningResult, retrieval domain.RetrievalResult, fusion domain.FusionResult) (domain.ConsolidationResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConsolidationResult{}, err
	}

	confidence := consolidationConfidence(reasoning.Confidence, retrieval.TotalRelevance, len(fusion.Connections), len(retrieval.Nodes))

	connections := make([]domain.FusionConnection, len(fusion.Connections))
	copy(connections, fusion.Connections)

	result := domain.ConsolidationResult{
		Connections: connections,
		Confidence:  confidence,
		Summary:     summarize(retrieval.Nodes),
	}

	e.logger.Debug("knowledge consolidated",
		zap.Float64("confidence", confidence),
		zap.Int("nodes", len(retrieval.Nodes)),
		zap.Int("connections", len(connections)))

	return result, nil
}

func consolidationConfidence(reasoning, totalRelevance float64, connections, nodes int) float64 {
	relevance := 0.0
	if totalRelevance > 0 {
		relevance = 1 - math.Exp(-totalRelevance/RelevanceSaturation)
	}
	density := math.Min(1, float64(connections)/math.Max(1, float64(nodes-1)))

	c := ReasoningWeight*domain.ClampUnit(reasoning) +
		RelevanceWeight*domain.ClampUnit(relevance) +
		FusionWeight*domain.ClampUnit(density)
	return domain.ClampUnit(c)
}

func summarize(nodes []domain.RetrievedNode) string {
	if len(nodes) == 0 {
		return ""
	}
	ranked := make([]domain.RetrievedNode, len(nodes))
	copy(ranked, nodes)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > SummaryNodeLimit {
		ranked = ranked[:SummaryNodeLimit]
	}

	var sb strings.Builder
	for _, n := range ranked {
		fmt.Fprintf(&sb, "- [%s] %s (relevance %.2f)\n", n.Node.Layer.Tag(), strings.TrimSpace(n.Node.Content), n.Score)
	}
	return strings.TrimRight(sb.String(), "\n")
}
