package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func trajectories(texts ...string) []domain.ReasoningTrajectory {
	out := make([]domain.ReasoningTrajectory, len(texts))
	for i, text := range texts {
		out[i] = domain.NewTrajectory([]domain.ReasoningStep{{Content: text, Likelihood: 0.5}}, 0.5, i == 0)
	}
	return out
}

func TestProbeAllLayers_QueriesEveryLayerInOrder(t *testing.T) {
	store := newFakeMemoryStore()
	store.addNode(domain.LayerVeridical, "fact", 0.9)
	store.addNode(domain.LayerSemantic, "concept", 0.8)
	store.addNode(domain.LayerEpisodic, "event", 0.7)

	engine := NewProbeEngine(store, zap.NewNop())
	result, err := engine.ProbeAllLayers(context.Background(), trajectories("a", "b"), 3)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"veridical", "semantic", "episodic",
		"veridical", "semantic", "episodic",
	}, store.queries)
	assert.Equal(t, 3, result.Total())
	for _, layer := range domain.AllLayers {
		assert.Len(t, result.Hits[layer], 1)
	}
}

func TestProbeAllLayers_Idempotent(t *testing.T) {
	store := newFakeMemoryStore()
	for i := 0; i < 20; i++ {
		store.addNode(domain.AllLayers[i%3], "node", float32(i)/20)
	}
	engine := NewProbeEngine(store, zap.NewNop())
	trajs := trajectories("first", "second", "third")

	first, err := engine.ProbeAllLayers(context.Background(), trajs, 3)
	require.NoError(t, err)
	second, err := engine.ProbeAllLayers(context.Background(), trajs, 3)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("probe results differ (-first +second):\n%s", diff)
	}
}

func TestProbeAllLayers_DeduplicatesKeepingMaxScore(t *testing.T) {
	store := newFakeMemoryStore()
	a, b := uuid.New(), uuid.New()
	calls := 0
	engine := NewProbeEngine(&scriptedLayerStore{
		fakeMemoryStore: store,
		query: func(layer domain.MemoryLayer) []domain.NodeRef {
			if layer != domain.LayerSemantic {
				return nil
			}
			calls++
			if calls == 1 {
				return []domain.NodeRef{{ID: a, Score: 0.4}, {ID: b, Score: 0.6}}
			}
			return []domain.NodeRef{{ID: b, Score: 0.3}, {ID: a, Score: 0.9}}
		},
	}, zap.NewNop())

	result, err := engine.ProbeAllLayers(context.Background(), trajectories("x", "y"), 2)
	require.NoError(t, err)

	hits := result.Hits[domain.LayerSemantic]
	require.Len(t, hits, 2)
	assert.Equal(t, a, hits[0].ID)
	assert.Equal(t, float32(0.9), hits[0].Score)
	assert.Equal(t, b, hits[1].ID)
	assert.Equal(t, float32(0.6), hits[1].Score)
	assert.Equal(t, domain.LayerSemantic, hits[0].Layer)
}

func TestProbeAllLayers_PartialFailure(t *testing.T) {
	store := newFakeMemoryStore()
	store.addNode(domain.LayerVeridical, "fact", 0.9)
	store.addNode(domain.LayerEpisodic, "event", 0.7)
	store.layerErr[domain.LayerSemantic] = errStoreDown

	result, err := NewProbeEngine(store, zap.NewNop()).ProbeAllLayers(context.Background(), trajectories("a"), 3)
	require.NoError(t, err)
	assert.Empty(t, result.Hits[domain.LayerSemantic])
	assert.Equal(t, 2, result.Total())
}

func TestProbeAllLayers_TotalFailure(t *testing.T) {
	store := newFakeMemoryStore()
	for _, layer := range domain.AllLayers {
		store.layerErr[layer] = errStoreDown
	}

	_, err := NewProbeEngine(store, zap.NewNop()).ProbeAllLayers(context.Background(), trajectories("a", "b"), 3)
	assert.ErrorIs(t, err, ErrProbeFailed)
	assert.True(t, errors.Is(err, errStoreDown))
}

func TestProbeAllLayers_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProbeEngine(newFakeMemoryStore(), zap.NewNop()).ProbeAllLayers(ctx, trajectories("a"), 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrProbeFailed)
}

func TestProbeWithTrajectory(t *testing.T) {
	store := newFakeMemoryStore()
	store.addNode(domain.LayerVeridical, "fact", 0.9)

	result, err := NewProbeEngine(store, zap.NewNop()).ProbeWithTrajectory(context.Background(), trajectories("a")[0], 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total())
	assert.Len(t, store.queries, 3)
}

// scriptedLayerStore overrides QueryLayer with a per-call script.
type scriptedLayerStore struct {
	*fakeMemoryStore
	query func(layer domain.MemoryLayer) []domain.NodeRef
}

func (s *scriptedLayerStore) QueryLayer(_ context.Context, layer domain.MemoryLayer, _ string, _ int) ([]domain.NodeRef, error) {
	return s.query(layer), nil
}
