package service

import (
	"context"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentExplorations bounds how many alternatives are evaluated at once.
const maxConcurrentExplorations = 2

// explorationCandidates picks the unexplored alternatives, in generation order.
func (l *ControlLoop) explorationCandidates(active []domain.ReasoningTrajectory) []domain.ReasoningTrajectory {
	limit := l.cfg.MaxExplorationPaths
	if limit > maxConcurrentExplorations {
		limit = maxConcurrentExplorations
	}
	var out []domain.ReasoningTrajectory
	for _, t := range active {
		if len(out) >= limit {
			break
		}
		if t.OriginalPolicy || t.IsExplored {
			continue
		}
		out = append(out, t)
	}
	return out
}

// explore evaluates candidates in parallel and returns the best outcome. A
// candidate only wins with a strictly higher confidence, so ties keep best.
// Candidate failures are logged and dropped; only cancellation is returned.
func (l *ControlLoop) explore(ctx context.Context, run uint64, candidates []domain.ReasoningTrajectory, best pathOutcome) (pathOutcome, error) {
	ctx, span := l.startPhase(ctx, PhaseExploring)
	span.SetAttributes(attribute.Int("cognition.exploration_candidates", len(candidates)))

	outcomes := make([]*pathOutcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentExplorations)
	for i, traj := range candidates {
		g.Go(func() error {
			out, err := l.evaluatePath(gctx, traj)
			if err != nil {
				if gctx.Err() == nil {
					l.logger.Warn("exploration path failed",
						zap.String("trajectory_id", traj.ID.String()),
						zap.Error(err))
				}
				return nil
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	l.markExplored(run, candidates)

	if err := ctx.Err(); err != nil {
		return best, endPhase(span, PhaseExploring, err)
	}

	for i, out := range outcomes {
		if out == nil {
			continue
		}
		l.logger.Debug("exploration path evaluated",
			zap.String("trajectory_id", candidates[i].ID.String()),
			zap.Float64("confidence", out.consolidation.Confidence),
			zap.Float64("best_confidence", best.consolidation.Confidence))
		if out.consolidation.Confidence > best.consolidation.Confidence {
			best = *out
		}
	}

	span.SetAttributes(attribute.Float64("cognition.best_confidence", best.consolidation.Confidence))
	endPhase(span, PhaseExploring, nil)
	return best, nil
}

func (l *ControlLoop) markExplored(run uint64, candidates []domain.ReasoningTrajectory) {
	tried := make(map[uuid.UUID]bool, len(candidates))
	for _, c := range candidates {
		tried[c.ID] = true
	}
	active := l.activeTrajectories()
	for i, t := range active {
		if tried[t.ID] {
			active[i] = t.WithExplored()
		}
	}
	l.setActive(run, active)
}
