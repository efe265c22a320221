package service

import (
	"bytes"
	"context"
	"sort"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FusionEngine finds pairs of retrieved nodes that express the same or
// closely related knowledge.
type FusionEngine struct {
	scorer    FusionScorer
	threshold float64
	logger    *zap.Logger
}

func NewFusionEngine(threshold float64, logger *zap.Logger) *FusionEngine {
	return &FusionEngine{
		scorer:    NewLexicalFusionScorer(),
		threshold: threshold,
		logger:    logger,
	}
}

func (e *FusionEngine) SetScorer(s FusionScorer) {
	e.scorer = s
}

func (e *FusionEngine) IdentifyAndCreateFusions(ctx context.Context, nodes []domain.RetrievedNode, trajectory domain.ReasoningTrajectory) (domain.FusionResult, error) {
	result := domain.FusionResult{Connections: []domain.FusionConnection{}}
	if len(nodes) < 2 {
		return result, nil
	}

	ordered := make([]domain.RetrievedNode, len(nodes))
	copy(ordered, nodes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].Node.ID[:], ordered[j].Node.ID[:]) < 0
	})

	for i := 0; i < len(ordered); i++ {
		if err := ctx.Err(); err != nil {
			return domain.FusionResult{}, err
		}
		for j := i + 1; j < len(ordered); j++ {
			a, b := ordered[i], ordered[j]
			if a.Node.ID == b.Node.ID {
				continue
			}
			result.CandidatesEvaluated++

			score := domain.ClampUnit(e.scorer.Score(a, b, trajectory))
			if score < e.threshold {
				continue
			}

			kind := domain.FusionLink
			if a.Node.Layer == b.Node.Layer {
				kind = domain.FusionMerge
			}
			result.Connections = append(result.Connections, domain.FusionConnection{
				NodeIDs:    []uuid.UUID{a.Node.ID, b.Node.ID},
				Kind:       kind,
				Confidence: score,
			})
		}
	}

	e.logger.Debug("fusion evaluated",
		zap.Int("candidates", result.CandidatesEvaluated),
		zap.Int("connections", len(result.Connections)))

	return result, nil
}
