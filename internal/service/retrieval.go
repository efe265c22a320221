package service

import (
	"bytes"
	"context"
	"sort"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RetrievalEngine ranks probe hits and resolves the top ones into nodes.
type RetrievalEngine struct {
	store  domain.MemoryGraphStore
	logger *zap.Logger
}

func NewRetrievalEngine(store domain.MemoryGraphStore, logger *zap.Logger) *RetrievalEngine {
	return &RetrievalEngine{store: store, logger: logger}
}

func (e *RetrievalEngine) RetrieveFromProbeResult(ctx context.Context, probe domain.ProbeResult, maxNodes int) (domain.RetrievalResult, error) {
	result := domain.RetrievalResult{
		Nodes:        []domain.RetrievedNode{},
		Distribution: make(map[domain.MemoryLayer]int, len(domain.AllLayers)),
	}
	for _, layer := range domain.AllLayers {
		result.Distribution[layer] = 0
	}
	if maxNodes <= 0 || probe.Total() == 0 {
		return result, nil
	}

	// A node reachable from several layers keeps its best-scoring hit.
	best := make(map[uuid.UUID]domain.NodeRef, probe.Total())
	for _, layer := range domain.AllLayers {
		for _, ref := range probe.Hits[layer] {
			if cur, ok := best[ref.ID]; !ok || ref.Score > cur.Score {
				best[ref.ID] = ref
			}
		}
	}

	ranked := make([]domain.NodeRef, 0, len(best))
	for _, ref := range best {
		ranked = append(ranked, ref)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return bytes.Compare(ranked[i].ID[:], ranked[j].ID[:]) < 0
	})

	for _, ref := range ranked {
		if len(result.Nodes) >= maxNodes {
			break
		}
		if err := ctx.Err(); err != nil {
			return domain.RetrievalResult{}, err
		}

		node, err := e.store.GetNode(ctx, ref.ID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.RetrievalResult{}, ctxErr
			}
			e.logger.Warn("failed to resolve probed node", zap.String("node_id", ref.ID.String()), zap.Error(err))
			continue
		}
		if node == nil {
			continue
		}

		score := float32(domain.ClampUnit(float64(ref.Score)))
		result.Nodes = append(result.Nodes, domain.RetrievedNode{Node: *node, Score: score})
		result.Distribution[node.Layer]++
		result.TotalRelevance += float64(score)
	}

	return result, nil
}
