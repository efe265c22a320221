package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrCancelled     = errors.New("query cancelled")
	ErrQueryInFlight = errors.New("a query is already in flight")
	ErrEmptyQuery    = errors.New("query must not be empty")
)

// Query outcomes reported to a MetricsRecorder.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

const tracerName = "synapse.cognition"

type TrajectoryGenerator interface {
	GenerateInitialTrajectory(ctx context.Context, query string, cc domain.CognitiveContext, maxDepth int) (domain.ReasoningTrajectory, error)
	GenerateExplorationTrajectories(ctx context.Context, from domain.ReasoningTrajectory, cc domain.CognitiveContext, maxAlternatives int) ([]domain.ReasoningTrajectory, error)
}

type Prober interface {
	ProbeAllLayers(ctx context.Context, trajectories []domain.ReasoningTrajectory, probeDepth int) (domain.ProbeResult, error)
	ProbeWithTrajectory(ctx context.Context, trajectory domain.ReasoningTrajectory, probeDepth int) (domain.ProbeResult, error)
}

type Retriever interface {
	RetrieveFromProbeResult(ctx context.Context, probe domain.ProbeResult, maxNodes int) (domain.RetrievalResult, error)
}

type Fuser interface {
	IdentifyAndCreateFusions(ctx context.Context, nodes []domain.RetrievedNode, trajectory domain.ReasoningTrajectory) (domain.FusionResult, error)
}

type Consolidator interface {
	ConsolidateKnowledge(ctx context.Context, reasoning domain.ReasoningResult, retrieval domain.RetrievalResult, fusion domain.FusionResult) (domain.ConsolidationResult, error)
}

// Engines are the per-phase collaborators of a ControlLoop.
type Engines struct {
	Trajectory    TrajectoryGenerator
	Probe         Prober
	Retrieval     Retriever
	Fusion        Fuser
	Consolidation Consolidator
}

// MetricsRecorder receives one observation per finished query. metrics is nil
// unless the query succeeded.
type MetricsRecorder interface {
	ObserveQuery(outcome string, elapsed time.Duration, metrics *domain.CognitiveMetrics)
}

// ControlLoop drives a query through reason, probe, retrieve, consolidate and
// resolve, with an optional exploring detour. One query runs at a time.
type ControlLoop struct {
	cfg      Config
	engines  Engines
	oracle   domain.ReasoningOracle
	stats    domain.LayerStatsProvider
	recorder MetricsRecorder
	onPhase  func(Phase)
	logger   *zap.Logger
	tracer   trace.Tracer

	inFlight atomic.Bool
	status   atomic.Pointer[ControlLoopStatus]

	// mu guards the fields below. It is never held across oracle or store calls.
	mu          sync.Mutex
	run         uint64
	cancel      context.CancelFunc
	phase       Phase
	processing  bool
	active      []domain.ReasoningTrajectory
	lastMetrics *domain.CognitiveMetrics
}

func NewControlLoop(cfg Config, engines Engines, oracle domain.ReasoningOracle, logger *zap.Logger) (*ControlLoop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engines.Trajectory == nil || engines.Probe == nil || engines.Retrieval == nil ||
		engines.Fusion == nil || engines.Consolidation == nil {
		return nil, fmt.Errorf("%w: every engine must be provided", ErrInvalidConfiguration)
	}
	if oracle == nil {
		return nil, fmt.Errorf("%w: reasoning oracle is required", ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &ControlLoop{
		cfg:     cfg,
		engines: engines,
		oracle:  oracle,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		phase:   PhaseIdle,
	}
	l.status.Store(&ControlLoopStatus{Phase: PhaseIdle})
	return l, nil
}

// NewDefaultControlLoop wires the standard engines around store and oracle.
// If store also reports layer statistics it is used to build contexts.
func NewDefaultControlLoop(cfg Config, store domain.MemoryGraphStore, oracle domain.ReasoningOracle, logger *zap.Logger) (*ControlLoop, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: memory graph store is required", ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	engines := Engines{
		Trajectory:    NewTrajectoryEngine(oracle, logger),
		Probe:         NewProbeEngine(store, logger),
		Retrieval:     NewRetrievalEngine(store, logger),
		Fusion:        NewFusionEngine(cfg.FusionThreshold, logger),
		Consolidation: NewConsolidationEngine(logger),
	}
	l, err := NewControlLoop(cfg, engines, oracle, logger)
	if err != nil {
		return nil, err
	}
	if sp, ok := store.(domain.LayerStatsProvider); ok {
		l.SetStatsProvider(sp)
	}
	return l, nil
}

func (l *ControlLoop) SetStatsProvider(sp domain.LayerStatsProvider) {
	l.stats = sp
}

func (l *ControlLoop) SetMetricsRecorder(r MetricsRecorder) {
	l.recorder = r
}

// SetPhaseObserver registers fn to be called on the query goroutine after each
// phase transition is published.
func (l *ControlLoop) SetPhaseObserver(fn func(Phase)) {
	l.onPhase = fn
}

func (l *ControlLoop) Config() Config {
	return l.cfg
}

// GetControlLoopStatus never blocks.
func (l *ControlLoop) GetControlLoopStatus() ControlLoopStatus {
	return *l.status.Load()
}

// Reset forces the loop back to idle and cancels any in-flight query. The
// cancelled query returns ErrCancelled.
func (l *ControlLoop) Reset() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.run++
	l.phase = PhaseIdle
	l.processing = false
	l.active = nil
	l.lastMetrics = nil
	l.publishLocked()
	l.mu.Unlock()

	l.logger.Info("control loop reset")
	l.notify(PhaseIdle)
}

// pathOutcome is everything produced by one probe, retrieve, consolidate pass.
type pathOutcome struct {
	reasoning     domain.ReasoningResult
	probe         domain.ProbeResult
	retrieval     domain.RetrievalResult
	consolidation domain.ConsolidationResult
}

func (l *ControlLoop) ProcessQuery(ctx context.Context, query string, cc *domain.CognitiveContext) (*domain.CognitiveResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if !l.inFlight.CompareAndSwap(false, true) {
		l.observe(OutcomeRejected, 0, nil)
		return nil, ErrQueryInFlight
	}
	defer l.inFlight.Store(false)

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := l.begin(cancel)

	ctx, span := l.tracer.Start(ctx, "cognition.process_query",
		trace.WithAttributes(attribute.Int("query.length", len(query))))
	defer span.End()

	resp, err := l.process(ctx, run, query, cc, start)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if !errors.Is(err, ErrCancelled) {
				err = fmt.Errorf("%w: %w", ErrCancelled, err)
			}
		}
		l.finish(run, nil)

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		outcome := OutcomeError
		if errors.Is(err, ErrCancelled) {
			outcome = OutcomeCancelled
			l.logger.Info("query cancelled", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		} else {
			l.logger.Error("query failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		}
		l.observe(outcome, time.Since(start), nil)
		return nil, err
	}

	l.finish(run, &resp.Metrics)
	span.SetAttributes(
		attribute.Float64("cognition.confidence", resp.Confidence),
		attribute.Int("cognition.exploration_paths", resp.Metrics.ExplorationPaths),
	)
	l.logger.Info("query resolved",
		zap.Float64("confidence", resp.Confidence),
		zap.Int("memory_hits", resp.Metrics.MemoryHits),
		zap.Int("layers_engaged", resp.Metrics.LayersEngaged),
		zap.Int("fusion_operations", resp.Metrics.FusionOperations),
		zap.Int("exploration_paths", resp.Metrics.ExplorationPaths),
		zap.Duration("processing_time", resp.Metrics.ProcessingTime))
	l.observe(OutcomeSuccess, resp.Metrics.ProcessingTime, &resp.Metrics)
	return resp, nil
}

func (l *ControlLoop) process(ctx context.Context, run uint64, query string, supplied *domain.CognitiveContext, start time.Time) (*domain.CognitiveResponse, error) {
	// Reason
	l.setPhase(run, PhaseReasoning)
	cc := l.buildContext(ctx, query, supplied)

	pctx, span := l.startPhase(ctx, PhaseReasoning)
	initial, err := l.engines.Trajectory.GenerateInitialTrajectory(pctx, query, cc, cc.MaxReasoningDepth)
	if err != nil {
		return nil, endPhase(span, PhaseReasoning, err)
	}
	active := []domain.ReasoningTrajectory{initial}
	if cc.ExplorationEnabled && initial.Likelihood < l.cfg.ExplorationThreshold && l.cfg.MaxActiveTrajectories > 1 {
		alts, err := l.engines.Trajectory.GenerateExplorationTrajectories(pctx, initial, cc, l.cfg.MaxActiveTrajectories-1)
		if err != nil {
			return nil, endPhase(span, PhaseReasoning, err)
		}
		if len(alts) > l.cfg.MaxActiveTrajectories-1 {
			alts = alts[:l.cfg.MaxActiveTrajectories-1]
		}
		active = append(active, alts...)
	}
	span.SetAttributes(attribute.Int("cognition.active_trajectories", len(active)))
	endPhase(span, PhaseReasoning, nil)
	l.setActive(run, active)

	// Probe
	if err := l.checkpoint(ctx, run, PhaseProbing); err != nil {
		return nil, err
	}
	pctx, span = l.startPhase(ctx, PhaseProbing)
	probe, err := l.engines.Probe.ProbeAllLayers(pctx, active, l.cfg.ProbeDepth)
	if err != nil {
		return nil, endPhase(span, PhaseProbing, err)
	}
	span.SetAttributes(attribute.Int("cognition.memory_hits", probe.Total()))
	endPhase(span, PhaseProbing, nil)

	// Retrieve
	if err := l.checkpoint(ctx, run, PhaseRetrieving); err != nil {
		return nil, err
	}
	pctx, span = l.startPhase(ctx, PhaseRetrieving)
	retrieval, err := l.engines.Retrieval.RetrieveFromProbeResult(pctx, probe, l.cfg.MaxRetrievedNodes)
	if err != nil {
		return nil, endPhase(span, PhaseRetrieving, err)
	}
	endPhase(span, PhaseRetrieving, nil)

	// Consolidate
	if err := l.checkpoint(ctx, run, PhaseConsolidating); err != nil {
		return nil, err
	}
	reasoning := domain.ReasoningResult{Trajectory: initial, Confidence: domain.ClampUnit(initial.Likelihood)}
	pctx, span = l.startPhase(ctx, PhaseConsolidating)
	consolidation, err := l.consolidate(pctx, reasoning, retrieval)
	if err != nil {
		return nil, endPhase(span, PhaseConsolidating, err)
	}
	endPhase(span, PhaseConsolidating, nil)

	best := pathOutcome{reasoning: reasoning, probe: probe, retrieval: retrieval, consolidation: consolidation}

	// Resolve
	if err := l.checkpoint(ctx, run, PhaseResolving); err != nil {
		return nil, err
	}
	explored := 0
	if best.consolidation.Confidence < l.cfg.ExplorationThreshold && cc.ExplorationEnabled {
		if candidates := l.explorationCandidates(active); len(candidates) > 0 {
			l.setPhase(run, PhaseExploring)
			best, err = l.explore(ctx, run, candidates, best)
			if err != nil {
				return nil, err
			}
			explored = len(candidates)
			if err := l.checkpoint(ctx, run, PhaseResolving); err != nil {
				return nil, err
			}
		}
	}

	pctx, span = l.startPhase(ctx, PhaseResolving)
	answer, err := l.renderAnswer(pctx, query, best)
	if err != nil {
		return nil, endPhase(span, PhaseResolving, err)
	}
	endPhase(span, PhaseResolving, nil)

	return &domain.CognitiveResponse{
		Answer:        answer,
		Reasoning:     best.reasoning,
		Retrieval:     best.retrieval,
		Consolidation: best.consolidation,
		Confidence:    best.consolidation.Confidence,
		Metrics: domain.CognitiveMetrics{
			ProcessingTime:   time.Since(start),
			MemoryHits:       best.probe.Total(),
			LayersEngaged:    best.retrieval.LayersEngaged(),
			FusionOperations: len(best.consolidation.Connections),
			Confidence:       best.consolidation.Confidence,
			ExplorationPaths: explored,
		},
	}, nil
}

func (l *ControlLoop) consolidate(ctx context.Context, reasoning domain.ReasoningResult, retrieval domain.RetrievalResult) (domain.ConsolidationResult, error) {
	fusion, err := l.engines.Fusion.IdentifyAndCreateFusions(ctx, retrieval.Nodes, reasoning.Trajectory)
	if err != nil {
		return domain.ConsolidationResult{}, err
	}
	result, err := l.engines.Consolidation.ConsolidateKnowledge(ctx, reasoning, retrieval, fusion)
	if err != nil {
		return domain.ConsolidationResult{}, err
	}
	result.Confidence = domain.ClampUnit(result.Confidence)
	return result, nil
}

// evaluatePath repeats probe, retrieve and consolidate for a single trajectory.
func (l *ControlLoop) evaluatePath(ctx context.Context, traj domain.ReasoningTrajectory) (*pathOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	probe, err := l.engines.Probe.ProbeWithTrajectory(ctx, traj, l.cfg.ProbeDepth)
	if err != nil {
		return nil, fmt.Errorf("probing: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	retrieval, err := l.engines.Retrieval.RetrieveFromProbeResult(ctx, probe, l.cfg.MaxRetrievedNodes)
	if err != nil {
		return nil, fmt.Errorf("retrieving: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reasoning := domain.ReasoningResult{Trajectory: traj, Confidence: domain.ClampUnit(traj.Likelihood)}
	consolidation, err := l.consolidate(ctx, reasoning, retrieval)
	if err != nil {
		return nil, fmt.Errorf("consolidating: %w", err)
	}
	return &pathOutcome{reasoning: reasoning, probe: probe, retrieval: retrieval, consolidation: consolidation}, nil
}

// renderAnswer prefers the oracle's plain-text answer call and otherwise asks
// for one final continuation.
func (l *ControlLoop) renderAnswer(ctx context.Context, query string, best pathOutcome) (string, error) {
	prompt := answerPrompt(query, best.consolidation)
	steps := best.reasoning.Trajectory.StepsCopy()

	var answer string
	if renderer, ok := l.oracle.(domain.AnswerRenderer); ok {
		text, err := renderer.RenderAnswer(ctx, prompt, steps)
		if err != nil {
			return "", oracleError(ctx, err)
		}
		answer = text
	} else {
		continuations, err := l.oracle.ProposeContinuation(ctx, prompt, steps, 1)
		if err != nil {
			return "", oracleError(ctx, err)
		}
		if c, ok := firstUsable(continuations); ok {
			answer = c.Content
		}
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: oracle returned no answer", ErrReasoningUnavailable)
	}
	return answer, nil
}

func oracleError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrReasoningUnavailable, err)
}

func (l *ControlLoop) buildContext(ctx context.Context, query string, supplied *domain.CognitiveContext) domain.CognitiveContext {
	if supplied != nil {
		cc := *supplied
		if cc.Query == "" {
			cc.Query = query
		}
		if cc.MaxReasoningDepth < 1 {
			cc.MaxReasoningDepth = l.cfg.MaxReasoningDepth
		}
		return cc
	}
	return l.NewContext(ctx, query, 0)
}

// NewContext builds the context ProcessQuery would build for query, with
// depth overriding MaxReasoningDepth when it is at least 1. The exploration
// flag always comes from config.
func (l *ControlLoop) NewContext(ctx context.Context, query string, depth int) domain.CognitiveContext {
	if depth < 1 {
		depth = l.cfg.MaxReasoningDepth
	}
	cc := domain.CognitiveContext{
		Query:              strings.TrimSpace(query),
		MaxReasoningDepth:  depth,
		ExplorationEnabled: l.cfg.ExplorationEnabled,
	}
	if l.stats != nil {
		snapshot, err := l.stats.LayerStats(ctx)
		if err != nil {
			l.logger.Warn("failed to load layer stats", zap.Error(err))
		} else {
			cc.Memory = snapshot
		}
	}
	return cc
}

func (l *ControlLoop) startPhase(ctx context.Context, p Phase) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, "cognition."+string(p))
}

// endPhase closes span and wraps err with the phase name.
func endPhase(span trace.Span, p Phase, err error) error {
	defer span.End()
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("%s: %w", p, err)
}

func (l *ControlLoop) checkpoint(ctx context.Context, run uint64, next Phase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.setPhase(run, next)
	return ctx.Err()
}

func (l *ControlLoop) begin(cancel context.CancelFunc) uint64 {
	l.mu.Lock()
	l.run++
	run := l.run
	l.cancel = cancel
	l.phase = PhaseIdle
	l.processing = true
	l.active = nil
	l.publishLocked()
	l.mu.Unlock()
	return run
}

func (l *ControlLoop) finish(run uint64, metrics *domain.CognitiveMetrics) {
	l.mu.Lock()
	if run != l.run {
		l.mu.Unlock()
		return
	}
	l.cancel = nil
	l.phase = PhaseIdle
	l.processing = false
	l.active = nil
	if metrics != nil {
		m := *metrics
		l.lastMetrics = &m
	}
	l.publishLocked()
	l.mu.Unlock()
	l.notify(PhaseIdle)
}

func (l *ControlLoop) setPhase(run uint64, p Phase) {
	l.mu.Lock()
	if run != l.run {
		l.mu.Unlock()
		return
	}
	l.phase = p
	l.publishLocked()
	l.mu.Unlock()

	l.logger.Debug("phase transition", zap.String("phase", string(p)))
	l.notify(p)
}

func (l *ControlLoop) setActive(run uint64, active []domain.ReasoningTrajectory) {
	owned := make([]domain.ReasoningTrajectory, len(active))
	copy(owned, active)

	l.mu.Lock()
	defer l.mu.Unlock()
	if run != l.run {
		return
	}
	l.active = owned
	l.publishLocked()
}

// activeTrajectories returns a copy of the current list.
func (l *ControlLoop) activeTrajectories() []domain.ReasoningTrajectory {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ReasoningTrajectory, len(l.active))
	copy(out, l.active)
	return out
}

func (l *ControlLoop) publishLocked() {
	s := &ControlLoopStatus{
		Phase:                 l.phase,
		IsProcessing:          l.processing,
		ActiveTrajectoryCount: len(l.active),
	}
	if l.lastMetrics != nil {
		m := *l.lastMetrics
		s.LastMetrics = &m
	}
	l.status.Store(s)
}

func (l *ControlLoop) notify(p Phase) {
	if l.onPhase != nil {
		l.onPhase(p)
	}
}

func (l *ControlLoop) observe(outcome string, elapsed time.Duration, m *domain.CognitiveMetrics) {
	if l.recorder != nil {
		l.recorder.ObserveQuery(outcome, elapsed, m)
	}
}
