package service

import (
	"math"
	"strings"
	"unicode"

	"github.com/Harshitk-cp/synapse/internal/domain"
)

// LikelihoodAggregator folds step likelihoods into a trajectory likelihood.
// Implementations must be monotone: raising any step never lowers the result.
type LikelihoodAggregator interface {
	Aggregate(steps []domain.ReasoningStep) float64
}

// ProductAggregator treats steps as independent events.
type ProductAggregator struct{}

func (ProductAggregator) Aggregate(steps []domain.ReasoningStep) float64 {
	if len(steps) == 0 {
		return 0
	}
	p := 1.0
	for _, s := range steps {
		p *= domain.ClampUnit(s.Likelihood)
	}
	return p
}

// MaxAggregator scores a trajectory by its strongest step.
type MaxAggregator struct{}

func (MaxAggregator) Aggregate(steps []domain.ReasoningStep) float64 {
	best := 0.0
	for _, s := range steps {
		best = math.Max(best, domain.ClampUnit(s.Likelihood))
	}
	return best
}

// GeometricMeanAggregator is the product normalised by depth, so trajectories
// of different lengths stay comparable against a single threshold.
type GeometricMeanAggregator struct{}

func (GeometricMeanAggregator) Aggregate(steps []domain.ReasoningStep) float64 {
	if len(steps) == 0 {
		return 0
	}
	logSum := 0.0
	for _, s := range steps {
		l := domain.ClampUnit(s.Likelihood)
		if l == 0 {
			return 0
		}
		logSum += math.Log(l)
	}
	return domain.ClampUnit(math.Exp(logSum / float64(len(steps))))
}

// FusionScorer estimates how strongly two retrieved nodes belong together.
// Scores must be deterministic and lie in [0,1].
type FusionScorer interface {
	Score(a, b domain.RetrievedNode, trajectory domain.ReasoningTrajectory) float64
}

// LexicalFusionScorer blends content overlap, node relevance, and how much
// both nodes echo the reasoning trajectory.
type LexicalFusionScorer struct {
	ContentWeight    float64
	RelevanceWeight  float64
	TrajectoryWeight float64
}

func NewLexicalFusionScorer() *LexicalFusionScorer {
	return &LexicalFusionScorer{
		ContentWeight:    0.6,
		RelevanceWeight:  0.25,
		TrajectoryWeight: 0.15,
	}
}

func (s *LexicalFusionScorer) Score(a, b domain.RetrievedNode, trajectory domain.ReasoningTrajectory) float64 {
	ta := tokenSet(a.Node.Content)
	tb := tokenSet(b.Node.Content)
	tt := tokenSet(trajectory.Text())

	content := jaccard(ta, tb)
	relevance := math.Min(float64(a.Score), float64(b.Score))
	echo := (coverage(ta, tt) + coverage(tb, tt)) / 2

	total := s.ContentWeight + s.RelevanceWeight + s.TrajectoryWeight
	if total <= 0 {
		return 0
	}
	score := (s.ContentWeight*content + s.RelevanceWeight*domain.ClampUnit(relevance) + s.TrajectoryWeight*echo) / total
	return domain.ClampUnit(score)
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"was": true, "are": true, "from": true, "has": true, "have": true, "not": true,
	"but": true, "you": true, "your": true, "its": true, "into": true, "about": true,
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// coverage is the share of a's tokens that also appear in b.
func coverage(a, b map[string]struct{}) float64 {
	if len(a) == 0 {
		return 0
	}
	hit := 0
	for t := range a {
		if _, ok := b[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(a))
}
