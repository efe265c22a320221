package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrProbeFailed = errors.New("memory probe failed on every layer")

// ProbeEngine issues bounded layer queries for each active trajectory.
// It never writes to the store.
type ProbeEngine struct {
	store  domain.MemoryGraphStore
	logger *zap.Logger
}

func NewProbeEngine(store domain.MemoryGraphStore, logger *zap.Logger) *ProbeEngine {
	return &ProbeEngine{store: store, logger: logger}
}

func (e *ProbeEngine) ProbeAllLayers(ctx context.Context, trajectories []domain.ReasoningTrajectory, probeDepth int) (domain.ProbeResult, error) {
	if probeDepth < 1 {
		probeDepth = 1
	}

	result := domain.NewProbeResult()
	positions := make(map[domain.MemoryLayer]map[uuid.UUID]int, len(domain.AllLayers))
	for _, layer := range domain.AllLayers {
		positions[layer] = make(map[uuid.UUID]int)
	}

	attempts, failures := 0, 0
	var lastErr error

	for _, traj := range trajectories {
		hint := traj.Text()
		for _, layer := range domain.AllLayers {
			if err := ctx.Err(); err != nil {
				return domain.ProbeResult{}, err
			}

			attempts++
			refs, err := e.store.QueryLayer(ctx, layer, hint, probeDepth)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return domain.ProbeResult{}, ctxErr
				}
				failures++
				lastErr = err
				e.logger.Warn("layer probe failed",
					zap.String("layer", string(layer)),
					zap.String("trajectory_id", traj.ID.String()),
					zap.Error(err))
				continue
			}

			for _, ref := range refs {
				ref.Layer = layer
				ref.Score = float32(domain.ClampUnit(float64(ref.Score)))
				if pos, ok := positions[layer][ref.ID]; ok {
					if ref.Score > result.Hits[layer][pos].Score {
						result.Hits[layer][pos].Score = ref.Score
					}
					continue
				}
				positions[layer][ref.ID] = len(result.Hits[layer])
				result.Hits[layer] = append(result.Hits[layer], ref)
			}
		}
	}

	if attempts > 0 && failures == attempts {
		return domain.ProbeResult{}, fmt.Errorf("%w: %w", ErrProbeFailed, lastErr)
	}

	return result, nil
}

func (e *ProbeEngine) ProbeWithTrajectory(ctx context.Context, trajectory domain.ReasoningTrajectory, probeDepth int) (domain.ProbeResult, error) {
	return e.ProbeAllLayers(ctx, []domain.ReasoningTrajectory{trajectory}, probeDepth)
}
