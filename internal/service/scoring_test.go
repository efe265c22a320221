package service

import (
	"testing"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func steps(ls ...float64) []domain.ReasoningStep {
	out := make([]domain.ReasoningStep, len(ls))
	for i, l := range ls {
		out[i] = domain.ReasoningStep{Content: "s", Likelihood: l}
	}
	return out
}

func TestLikelihoodAggregators(t *testing.T) {
	tests := []struct {
		name  string
		agg   LikelihoodAggregator
		steps []domain.ReasoningStep
		want  float64
	}{
		{"product", ProductAggregator{}, steps(0.5, 0.5), 0.25},
		{"product empty", ProductAggregator{}, nil, 0},
		{"max", MaxAggregator{}, steps(0.2, 0.7, 0.4), 0.7},
		{"max clamps", MaxAggregator{}, steps(1.5), 1},
		{"geometric", GeometricMeanAggregator{}, steps(0.25, 1), 0.5},
		{"geometric zero step", GeometricMeanAggregator{}, steps(0.9, 0), 0},
		{"geometric single", GeometricMeanAggregator{}, steps(0.9), 0.9},
		{"geometric empty", GeometricMeanAggregator{}, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.agg.Aggregate(tt.steps), 1e-9)
		})
	}
}

func TestGeometricMean_Monotone(t *testing.T) {
	agg := GeometricMeanAggregator{}
	base := agg.Aggregate(steps(0.5, 0.6, 0.7))
	raised := agg.Aggregate(steps(0.5, 0.8, 0.7))
	assert.Greater(t, raised, base)
}

func retrieved(layer domain.MemoryLayer, content string, score float32) domain.RetrievedNode {
	return domain.RetrievedNode{
		Node:  domain.MemoryNode{ID: uuid.New(), Layer: layer, Content: content},
		Score: score,
	}
}

func TestLexicalFusionScorer(t *testing.T) {
	scorer := NewLexicalFusionScorer()
	traj := domain.NewTrajectory([]domain.ReasoningStep{{Content: "golang channels buffered"}}, 0.8, true)

	t.Run("identical content scores high", func(t *testing.T) {
		a := retrieved(domain.LayerVeridical, "Buffered golang channels block when full", 0.9)
		b := retrieved(domain.LayerSemantic, "buffered golang channels block when full", 0.8)
		assert.GreaterOrEqual(t, scorer.Score(a, b, traj), 0.7)
	})

	t.Run("unrelated content scores low", func(t *testing.T) {
		a := retrieved(domain.LayerVeridical, "Paris is the capital of France", 0.9)
		b := retrieved(domain.LayerSemantic, "Photosynthesis converts sunlight", 0.9)
		assert.Less(t, scorer.Score(a, b, traj), 0.7)
	})

	t.Run("symmetric and bounded", func(t *testing.T) {
		a := retrieved(domain.LayerEpisodic, "met Alice to discuss golang", 1)
		b := retrieved(domain.LayerEpisodic, "Alice explained channels", 1)
		ab, ba := scorer.Score(a, b, traj), scorer.Score(b, a, traj)
		assert.Equal(t, ab, ba)
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.LessOrEqual(t, ab, 1.0)
	})

	t.Run("zero weights", func(t *testing.T) {
		s := &LexicalFusionScorer{}
		a := retrieved(domain.LayerEpisodic, "x", 1)
		assert.Equal(t, 0.0, s.Score(a, a, traj))
	})
}

func TestTokenSet_DropsShortAndStopwords(t *testing.T) {
	set := tokenSet("The cat and THE Lighthouse, at 42nd street!")
	_, hasThe := set["the"]
	_, hasAt := set["at"]
	_, hasLight := set["lighthouse"]
	_, hasStreet := set["street"]
	assert.False(t, hasThe)
	assert.False(t, hasAt)
	assert.True(t, hasLight)
	assert.True(t, hasStreet)
}
