package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seededStore() *fakeMemoryStore {
	store := newFakeMemoryStore()
	store.addNode(domain.LayerVeridical, "Golang channels synchronise goroutines", 0.5)
	store.addNode(domain.LayerSemantic, "Channels are a concurrency primitive", 0.4)
	store.addNode(domain.LayerEpisodic, "Debugged a deadlock last week", 0.3)
	return store
}

func threeAlternatives() []domain.Continuation {
	return []domain.Continuation{
		{Content: "alternative path one about select statements", Likelihood: 0.4},
		{Content: "alternative path two about buffered channels", Likelihood: 0.35},
		{Content: "alternative path three about mutexes", Likelihood: 0.3},
	}
}

func newTestLoop(t *testing.T, cfg Config, store *fakeMemoryStore, oracle domain.ReasoningOracle) *ControlLoop {
	t.Helper()
	loop, err := NewDefaultControlLoop(cfg, store, oracle, zap.NewNop())
	require.NoError(t, err)
	return loop
}

type phaseLog struct {
	mu     sync.Mutex
	phases []Phase
	counts map[Phase][]int
}

func observePhases(loop *ControlLoop) *phaseLog {
	log := &phaseLog{counts: make(map[Phase][]int)}
	loop.SetPhaseObserver(func(p Phase) {
		s := loop.GetControlLoopStatus()
		log.mu.Lock()
		defer log.mu.Unlock()
		log.phases = append(log.phases, p)
		log.counts[p] = append(log.counts[p], s.ActiveTrajectoryCount)
	})
	return log
}

func (l *phaseLog) saw(p Phase) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, seen := range l.phases {
		if seen == p {
			return true
		}
	}
	return false
}

func assertIdle(t *testing.T, loop *ControlLoop) {
	t.Helper()
	s := loop.GetControlLoopStatus()
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.False(t, s.IsProcessing)
	assert.Zero(t, s.ActiveTrajectoryCount)
}

func TestProcessQuery_HighLikelihoodSkipsExploration(t *testing.T) {
	oracle := newScriptedOracle(0.9)
	oracle.alternatives = threeAlternatives()
	loop := newTestLoop(t, DefaultConfig(), seededStore(), oracle)
	phases := observePhases(loop)

	resp, err := loop.ProcessQuery(context.Background(), "how do golang channels work?", nil)
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, "Go channels are typed conduits.", resp.Answer)
	assert.True(t, resp.Reasoning.Trajectory.OriginalPolicy)
	assert.Equal(t, 0, resp.Metrics.ExplorationPaths)
	assert.False(t, phases.saw(PhaseExploring))
	for _, p := range []Phase{PhaseProbing, PhaseRetrieving, PhaseConsolidating, PhaseResolving} {
		assert.Equal(t, []int{1}, phases.counts[p], "phase %s", p)
	}

	_, exploration, answer := oracle.counts()
	assert.Zero(t, exploration)
	assert.Equal(t, 1, answer)

	assertIdle(t, loop)
	status := loop.GetControlLoopStatus()
	require.NotNil(t, status.LastMetrics)
	assert.Equal(t, resp.Metrics.MemoryHits, status.LastMetrics.MemoryHits)
}

func TestProcessQuery_PhaseOrder(t *testing.T) {
	loop := newTestLoop(t, DefaultConfig(), seededStore(), newScriptedOracle(0.9))
	phases := observePhases(loop)

	_, err := loop.ProcessQuery(context.Background(), "query", nil)
	require.NoError(t, err)

	assert.Equal(t, []Phase{PhaseReasoning, PhaseProbing, PhaseRetrieving, PhaseConsolidating, PhaseResolving, PhaseIdle}, phases.phases)
}

func TestProcessQuery_ExplorationDisabledUsesOneTrajectory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExplorationEnabled = false
	oracle := newScriptedOracle(0.1)
	oracle.alternatives = threeAlternatives()
	loop := newTestLoop(t, cfg, seededStore(), oracle)
	phases := observePhases(loop)

	resp, err := loop.ProcessQuery(context.Background(), "query", nil)
	require.NoError(t, err)

	assert.False(t, phases.saw(PhaseExploring))
	for p, counts := range phases.counts {
		for _, c := range counts {
			assert.LessOrEqual(t, c, 1, "phase %s", p)
		}
	}
	_, exploration, _ := oracle.counts()
	assert.Zero(t, exploration)
	assert.Zero(t, resp.Metrics.ExplorationPaths)
}

func TestProcessQuery_SuppliedContextDisablesExploration(t *testing.T) {
	oracle := newScriptedOracle(0.1)
	oracle.alternatives = threeAlternatives()
	loop := newTestLoop(t, DefaultConfig(), seededStore(), oracle)

	resp, err := loop.ProcessQuery(context.Background(), "query", &domain.CognitiveContext{ExplorationEnabled: false})
	require.NoError(t, err)
	assert.Zero(t, resp.Metrics.ExplorationPaths)
}

func TestProcessQuery_LowConfidenceExplores(t *testing.T) {
	oracle := newScriptedOracle(0.3)
	oracle.alternatives = threeAlternatives()
	loop := newTestLoop(t, DefaultConfig(), seededStore(), oracle)
	phases := observePhases(loop)

	resp, err := loop.ProcessQuery(context.Background(), "query", nil)
	require.NoError(t, err)

	assert.True(t, phases.saw(PhaseExploring))
	assert.Equal(t, []int{4}, phases.counts[PhaseProbing])
	assert.Equal(t, 2, resp.Metrics.ExplorationPaths)
	assert.GreaterOrEqual(t, resp.Confidence, 0.0)
	assert.LessOrEqual(t, resp.Confidence, 1.0)
	assert.Equal(t, resp.Confidence, resp.Consolidation.Confidence)
	assertIdle(t, loop)
}

// fixedConsolidator returns originalConf for the original trajectory and
// altConf for every alternative.
type fixedConsolidator struct {
	originalConf float64
	altConf      float64
}

func (f fixedConsolidator) ConsolidateKnowledge(_ context.Context, reasoning domain.ReasoningResult, _ domain.RetrievalResult, fusion domain.FusionResult) (domain.ConsolidationResult, error) {
	c := f.altConf
	if reasoning.Trajectory.OriginalPolicy {
		c = f.originalConf
	}
	return domain.ConsolidationResult{Connections: fusion.Connections, Confidence: c}, nil
}

func loopWithConsolidator(t *testing.T, store *fakeMemoryStore, oracle domain.ReasoningOracle, c Consolidator) *ControlLoop {
	t.Helper()
	logger := zap.NewNop()
	cfg := DefaultConfig()
	loop, err := NewControlLoop(cfg, Engines{
		Trajectory:    NewTrajectoryEngine(oracle, logger),
		Probe:         NewProbeEngine(store, logger),
		Retrieval:     NewRetrievalEngine(store, logger),
		Fusion:        NewFusionEngine(cfg.FusionThreshold, logger),
		Consolidation: c,
	}, oracle, logger)
	require.NoError(t, err)
	return loop
}

func TestProcessQuery_TieKeepsOriginal(t *testing.T) {
	oracle := newScriptedOracle(0.3)
	oracle.alternatives = threeAlternatives()
	loop := loopWithConsolidator(t, seededStore(), oracle, fixedConsolidator{originalConf: 0.5, altConf: 0.5})

	resp, err := loop.ProcessQuery(context.Background(), "query", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Metrics.ExplorationPaths)
	assert.True(t, resp.Reasoning.Trajectory.OriginalPolicy)
	assert.Equal(t, 0.5, resp.Confidence)
}

func TestProcessQuery_StrictlyBetterAlternativeWins(t *testing.T) {
	oracle := newScriptedOracle(0.3)
	oracle.alternatives = threeAlternatives()
	loop := loopWithConsolidator(t, seededStore(), oracle, fixedConsolidator{originalConf: 0.5, altConf: 0.55})

	resp, err := loop.ProcessQuery(context.Background(), "query", nil)
	require.NoError(t, err)

	assert.False(t, resp.Reasoning.Trajectory.OriginalPolicy)
	assert.Equal(t, "alternative path one about select statements", resp.Reasoning.Trajectory.LastStep().Content)
	assert.Equal(t, 0.55, resp.Confidence)
	assert.Equal(t, 0.55, resp.Metrics.Confidence)
}

func TestProcessQuery_ExplorationFailureIsAbsorbed(t *testing.T) {
	store := seededStore()
	store.failHint = func(hint string) bool { return strings.HasPrefix(hint, "alternative") }
	oracle := newScriptedOracle(0.3)
	oracle.alternatives = threeAlternatives()
	loop := newTestLoop(t, DefaultConfig(), store, oracle)

	resp, err := loop.ProcessQuery(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.True(t, resp.Reasoning.Trajectory.OriginalPolicy)
	assert.Equal(t, 2, resp.Metrics.ExplorationPaths)
}

func TestProcessQuery_CancelDuringProbing(t *testing.T) {
	loop := newTestLoop(t, DefaultConfig(), seededStore(), newScriptedOracle(0.9))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.SetPhaseObserver(func(p Phase) {
		if p == PhaseProbing {
			cancel()
		}
	})

	resp, err := loop.ProcessQuery(ctx, "query", nil)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assertIdle(t, loop)
	assert.Nil(t, loop.GetControlLoopStatus().LastMetrics)
}

func TestProcessQuery_DeadlineIsCancellation(t *testing.T) {
	oracle := newScriptedOracle(0.9)
	oracle.block = make(chan struct{})
	loop := newTestLoop(t, DefaultConfig(), seededStore(), oracle)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := loop.ProcessQuery(ctx, "query", nil)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assertIdle(t, loop)
}

func TestProcessQuery_RejectsConcurrentQueryAndServesStatus(t *testing.T) {
	oracle := newScriptedOracle(0.9)
	oracle.block = make(chan struct{})
	loop := newTestLoop(t, DefaultConfig(), seededStore(), oracle)

	done := make(chan error, 1)
	go func() {
		_, err := loop.ProcessQuery(context.Background(), "first", nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		s := loop.GetControlLoopStatus()
		return s.IsProcessing && s.Phase == PhaseReasoning
	}, time.Second, time.Millisecond)

	_, err := loop.ProcessQuery(context.Background(), "second", nil)
	assert.ErrorIs(t, err, ErrQueryInFlight)

	start := time.Now()
	for i := 0; i < 10000; i++ {
		s := loop.GetControlLoopStatus()
		assert.True(t, ValidPhase(string(s.Phase)))
	}
	assert.Less(t, time.Since(start), time.Second)

	close(oracle.block)
	require.NoError(t, <-done)
	assertIdle(t, loop)
}

func TestReset_CancelsInFlightQuery(t *testing.T) {
	oracle := newScriptedOracle(0.9)
	oracle.block = make(chan struct{})
	loop := newTestLoop(t, DefaultConfig(), seededStore(), oracle)

	done := make(chan error, 1)
	go func() {
		_, err := loop.ProcessQuery(context.Background(), "query", nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return loop.GetControlLoopStatus().IsProcessing }, time.Second, time.Millisecond)

	loop.Reset()
	assertIdle(t, loop)

	err := <-done
	assert.ErrorIs(t, err, ErrCancelled)
	assertIdle(t, loop)
}

func TestReset_ClearsLastMetrics(t *testing.T) {
	loop := newTestLoop(t, DefaultConfig(), seededStore(), newScriptedOracle(0.9))
	_, err := loop.ProcessQuery(context.Background(), "query", nil)
	require.NoError(t, err)
	require.NotNil(t, loop.GetControlLoopStatus().LastMetrics)

	loop.Reset()
	assert.Nil(t, loop.GetControlLoopStatus().LastMetrics)
}

func TestProcessQuery_Failures(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		loop := newTestLoop(t, DefaultConfig(), seededStore(), newScriptedOracle(0.9))
		_, err := loop.ProcessQuery(context.Background(), "   ", nil)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("reasoning unavailable", func(t *testing.T) {
		oracle := newScriptedOracle(0.9)
		oracle.reasoningErr = errors.New("503 from provider")
		loop := newTestLoop(t, DefaultConfig(), seededStore(), oracle)

		resp, err := loop.ProcessQuery(context.Background(), "query", nil)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, ErrReasoningUnavailable)
		assert.NotErrorIs(t, err, ErrCancelled)
		assertIdle(t, loop)
	})

	t.Run("probe failed on every layer", func(t *testing.T) {
		store := seededStore()
		for _, layer := range domain.AllLayers {
			store.layerErr[layer] = errStoreDown
		}
		loop := newTestLoop(t, DefaultConfig(), store, newScriptedOracle(0.9))

		resp, err := loop.ProcessQuery(context.Background(), "query", nil)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, ErrProbeFailed)
		assertIdle(t, loop)
	})

	t.Run("answer unavailable", func(t *testing.T) {
		oracle := newScriptedOracle(0.9)
		oracle.answerErr = errors.New("timeout")
		loop := newTestLoop(t, DefaultConfig(), seededStore(), oracle)

		_, err := loop.ProcessQuery(context.Background(), "query", nil)
		assert.ErrorIs(t, err, ErrReasoningUnavailable)
	})

	t.Run("alternative generation fails", func(t *testing.T) {
		oracle := newScriptedOracle(0.2)
		oracle.explorationErr = errors.New("bad json")
		loop := newTestLoop(t, DefaultConfig(), seededStore(), oracle)

		_, err := loop.ProcessQuery(context.Background(), "query", nil)
		assert.ErrorIs(t, err, ErrReasoningUnavailable)
	})
}

func TestProcessQuery_RecordsMetrics(t *testing.T) {
	rec := &recordingMetrics{}
	loop := newTestLoop(t, DefaultConfig(), seededStore(), newScriptedOracle(0.9))
	loop.SetMetricsRecorder(rec)

	resp, err := loop.ProcessQuery(context.Background(), "query", nil)
	require.NoError(t, err)

	_, _ = loop.ProcessQuery(context.Background(), "", nil)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{OutcomeSuccess}, rec.outcomes)
	require.NotNil(t, rec.last)
	assert.Equal(t, resp.Metrics.MemoryHits, rec.last.MemoryHits)
	assert.Equal(t, 3, rec.last.MemoryHits)
	assert.Equal(t, 3, rec.last.LayersEngaged)
}

func TestProcessQuery_UsesLayerStats(t *testing.T) {
	var prompt string
	oracle := continuationFunc(func(_ context.Context, p string, _ []domain.ReasoningStep, _ int) ([]domain.Continuation, error) {
		if prompt == "" {
			prompt = p
		}
		return []domain.Continuation{{Content: "done", Likelihood: 0.9, Final: true}}, nil
	})
	loop := newTestLoop(t, DefaultConfig(), seededStore(), oracle)

	_, err := loop.ProcessQuery(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "veridical=1 semantic=1 episodic=1")
}

func TestNewControlLoop_Validation(t *testing.T) {
	store := seededStore()
	oracle := newScriptedOracle(0.9)

	cfg := DefaultConfig()
	cfg.FusionThreshold = 2
	_, err := NewDefaultControlLoop(cfg, store, oracle, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewDefaultControlLoop(DefaultConfig(), nil, oracle, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewControlLoop(DefaultConfig(), Engines{}, oracle, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	loop, err := NewDefaultControlLoop(DefaultConfig(), store, oracle, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), loop.Config())
	assertIdle(t, loop)
}

// gatedStore holds queries for alternative trajectories once gate is set,
// until the query context ends. It records how many are held at once.
type gatedStore struct {
	*fakeMemoryStore
	gate    atomic.Bool
	held    chan struct{}
	mu      sync.Mutex
	inside  int
	maxSeen int
}

func (s *gatedStore) QueryLayer(ctx context.Context, layer domain.MemoryLayer, hint string, depth int) ([]domain.NodeRef, error) {
	if !s.gate.Load() || !strings.HasPrefix(hint, "alternative") {
		return s.fakeMemoryStore.QueryLayer(ctx, layer, hint, depth)
	}

	s.mu.Lock()
	s.inside++
	if s.inside > s.maxSeen {
		s.maxSeen = s.inside
	}
	s.mu.Unlock()
	s.held <- struct{}{}

	<-ctx.Done()

	s.mu.Lock()
	s.inside--
	s.mu.Unlock()
	return nil, ctx.Err()
}

func TestProcessQuery_CancelDuringExploring(t *testing.T) {
	store := &gatedStore{fakeMemoryStore: seededStore(), held: make(chan struct{}, 4)}
	oracle := newScriptedOracle(0.3)
	oracle.alternatives = threeAlternatives()
	loop, err := NewDefaultControlLoop(DefaultConfig(), store, oracle, zap.NewNop())
	require.NoError(t, err)
	loop.SetPhaseObserver(func(p Phase) {
		if p == PhaseExploring {
			store.gate.Store(true)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		resp *domain.CognitiveResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := loop.ProcessQuery(ctx, "query", nil)
		done <- result{resp, err}
	}()

	// Both alternatives must be in flight together before cancelling.
	for i := 0; i < 2; i++ {
		select {
		case <-store.held:
		case <-time.After(2 * time.Second):
			t.Fatal("exploration paths did not start")
		}
	}
	assert.Equal(t, PhaseExploring, loop.GetControlLoopStatus().Phase)
	cancel()

	var got result
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("query did not return after cancel")
	}

	assert.Nil(t, got.resp)
	assert.ErrorIs(t, got.err, ErrCancelled)
	assert.ErrorIs(t, got.err, context.Canceled)
	assert.Contains(t, got.err.Error(), "exploring")

	store.mu.Lock()
	assert.Equal(t, 2, store.maxSeen)
	assert.Zero(t, store.inside)
	store.mu.Unlock()

	assertIdle(t, loop)
	assert.Nil(t, loop.GetControlLoopStatus().LastMetrics)
}

func TestNewContext_UsesConfigAndLayerStats(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExplorationEnabled = false
	loop := newTestLoop(t, cfg, seededStore(), newScriptedOracle(0.9))

	cc := loop.NewContext(context.Background(), "  query ", 2)
	assert.Equal(t, "query", cc.Query)
	assert.Equal(t, 2, cc.MaxReasoningDepth)
	assert.False(t, cc.ExplorationEnabled)
	assert.Equal(t, 3, cc.Memory.Total())

	cc = loop.NewContext(context.Background(), "query", 0)
	assert.Equal(t, DefaultMaxReasoningDepth, cc.MaxReasoningDepth)
}

func TestProcessQuery_DepthOverrideKeepsExplorationDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExplorationEnabled = false
	oracle := newScriptedOracle(0.1)
	oracle.alternatives = threeAlternatives()
	loop := newTestLoop(t, cfg, seededStore(), oracle)

	cc := loop.NewContext(context.Background(), "query", 2)
	resp, err := loop.ProcessQuery(context.Background(), "query", &cc)
	require.NoError(t, err)

	_, exploration, _ := oracle.counts()
	assert.Zero(t, exploration)
	assert.Zero(t, resp.Metrics.ExplorationPaths)
}

// renderingOracle adds a plain-text answer call to scriptedOracle.
type renderingOracle struct {
	*scriptedOracle
	prompts []string
	err     error
}

func (o *renderingOracle) RenderAnswer(ctx context.Context, prompt string, steps []domain.ReasoningStep) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prompts = append(o.prompts, prompt)
	if o.err != nil {
		return "", o.err
	}
	return "  Channels pass values between goroutines. ", nil
}

func TestProcessQuery_PrefersAnswerRenderer(t *testing.T) {
	oracle := &renderingOracle{scriptedOracle: newScriptedOracle(0.9)}
	loop := newTestLoop(t, DefaultConfig(), seededStore(), oracle)

	resp, err := loop.ProcessQuery(context.Background(), "how do channels work?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Channels pass values between goroutines.", resp.Answer)

	_, _, proposedAnswers := oracle.counts()
	assert.Zero(t, proposedAnswers)
	require.Len(t, oracle.prompts, 1)
	assert.True(t, strings.HasPrefix(oracle.prompts[0], "Answer the user's question"))

	oracle.err = errors.New("provider down")
	_, err = loop.ProcessQuery(context.Background(), "how do channels work?", nil)
	assert.ErrorIs(t, err, ErrReasoningUnavailable)
	assert.Contains(t, err.Error(), "resolving")
}
