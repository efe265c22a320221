package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"go.uber.org/zap"
)

var ErrReasoningUnavailable = errors.New("reasoning oracle unavailable")

// TrajectoryEngine builds reasoning trajectories by repeatedly asking the oracle
// to continue the chain.
type TrajectoryEngine struct {
	oracle     domain.ReasoningOracle
	aggregator LikelihoodAggregator
	logger     *zap.Logger
}

func NewTrajectoryEngine(oracle domain.ReasoningOracle, logger *zap.Logger) *TrajectoryEngine {
	return &TrajectoryEngine{
		oracle:     oracle,
		aggregator: GeometricMeanAggregator{},
		logger:     logger,
	}
}

// SetAggregator replaces the default geometric-mean likelihood aggregator.
func (e *TrajectoryEngine) SetAggregator(a LikelihoodAggregator) {
	e.aggregator = a
}

func (e *TrajectoryEngine) GenerateInitialTrajectory(ctx context.Context, query string, cc domain.CognitiveContext, maxDepth int) (domain.ReasoningTrajectory, error) {
	if e.oracle == nil {
		return domain.ReasoningTrajectory{}, fmt.Errorf("%w: oracle not configured", ErrReasoningUnavailable)
	}
	if maxDepth < 1 {
		maxDepth = 1
	}

	prompt := reasoningPrompt(query, cc)
	steps := make([]domain.ReasoningStep, 0, maxDepth)

	for len(steps) < maxDepth {
		if err := ctx.Err(); err != nil {
			return domain.ReasoningTrajectory{}, err
		}

		continuations, err := e.oracle.ProposeContinuation(ctx, prompt, steps, 1)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.ReasoningTrajectory{}, ctxErr
			}
			return domain.ReasoningTrajectory{}, fmt.Errorf("%w: %w", ErrReasoningUnavailable, err)
		}

		next, ok := firstUsable(continuations)
		if !ok {
			if len(steps) == 0 {
				return domain.ReasoningTrajectory{}, fmt.Errorf("%w: oracle returned no continuation", ErrReasoningUnavailable)
			}
			break
		}

		steps = append(steps, domain.ReasoningStep{
			Content:    strings.TrimSpace(next.Content),
			Likelihood: domain.ClampUnit(next.Likelihood),
		})
		if next.Final {
			break
		}
	}

	traj := domain.NewTrajectory(steps, e.aggregator.Aggregate(steps), true)

	e.logger.Debug("initial trajectory built",
		zap.String("trajectory_id", traj.ID.String()),
		zap.Int("steps", len(traj.Steps)),
		zap.Float64("likelihood", traj.Likelihood))

	return traj, nil
}

// GenerateExplorationTrajectories branches from the last step of from. The
// oracle sees every step except the last and proposes replacements for it.
func (e *TrajectoryEngine) GenerateExplorationTrajectories(ctx context.Context, from domain.ReasoningTrajectory, cc domain.CognitiveContext, maxAlternatives int) ([]domain.ReasoningTrajectory, error) {
	if maxAlternatives <= 0 || len(from.Steps) == 0 {
		return nil, nil
	}
	if e.oracle == nil {
		return nil, fmt.Errorf("%w: oracle not configured", ErrReasoningUnavailable)
	}

	prefix := from.Steps[:len(from.Steps)-1]
	original := strings.TrimSpace(from.LastStep().Content)

	// Ask for one extra in case the oracle repeats the original step.
	continuations, err := e.oracle.ProposeContinuation(ctx, reasoningPrompt(cc.Query, cc), prefix, maxAlternatives+1)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrReasoningUnavailable, err)
	}

	seen := map[string]bool{original: true}
	alternatives := make([]domain.ReasoningTrajectory, 0, maxAlternatives)
	for _, c := range continuations {
		if len(alternatives) >= maxAlternatives {
			break
		}
		content := strings.TrimSpace(c.Content)
		if content == "" || seen[content] {
			continue
		}
		seen[content] = true

		steps := make([]domain.ReasoningStep, 0, len(prefix)+1)
		steps = append(steps, prefix...)
		steps = append(steps, domain.ReasoningStep{Content: content, Likelihood: domain.ClampUnit(c.Likelihood)})
		alternatives = append(alternatives, domain.NewTrajectory(steps, e.aggregator.Aggregate(steps), false))
	}

	e.logger.Debug("exploration trajectories generated",
		zap.String("from", from.ID.String()),
		zap.Int("requested", maxAlternatives),
		zap.Int("generated", len(alternatives)))

	return alternatives, nil
}

func firstUsable(cs []domain.Continuation) (domain.Continuation, bool) {
	for _, c := range cs {
		if strings.TrimSpace(c.Content) != "" {
			return c, true
		}
	}
	return domain.Continuation{}, false
}
