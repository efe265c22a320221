package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var ErrOracleUnavailable = errors.New("reasoning oracle circuit open")

// BreakerConfig controls when the oracle circuit trips.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "reasoning-oracle",
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// BreakerOracle stops calling a failing provider until it recovers. Caller
// cancellation is not counted as a provider failure.
type BreakerOracle struct {
	next domain.ReasoningOracle
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerOracle(next domain.ReasoningOracle, cfg BreakerConfig, logger *zap.Logger) *BreakerOracle {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("oracle circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	return &BreakerOracle{next: next, cb: cb}
}

func (b *BreakerOracle) ProposeContinuation(ctx context.Context, prompt string, priorSteps []domain.ReasoningStep, maxAlternatives int) ([]domain.Continuation, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.ProposeContinuation(ctx, prompt, priorSteps, maxAlternatives)
	})
	if err != nil {
		return nil, breakerError(err)
	}
	continuations, _ := out.([]domain.Continuation)
	return continuations, nil
}

// RenderAnswer shares the circuit with reasoning calls. A wrapped oracle
// without its own answer call is asked for a single continuation instead; an
// empty string means it had nothing usable.
func (b *BreakerOracle) RenderAnswer(ctx context.Context, prompt string, steps []domain.ReasoningStep) (string, error) {
	renderer, ok := b.next.(domain.AnswerRenderer)
	if !ok {
		continuations, err := b.ProposeContinuation(ctx, prompt, steps, 1)
		if err != nil {
			return "", err
		}
		for _, c := range continuations {
			if content := strings.TrimSpace(c.Content); content != "" {
				return content, nil
			}
		}
		return "", nil
	}

	out, err := b.cb.Execute(func() (any, error) {
		return renderer.RenderAnswer(ctx, prompt, steps)
	})
	if err != nil {
		return "", breakerError(err)
	}
	answer, _ := out.(string)
	return answer, nil
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrOracleUnavailable, err)
	}
	return err
}

// State reports the breaker state, for status endpoints.
func (b *BreakerOracle) State() string {
	return b.cb.State().String()
}
