package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemoryLayer string

const (
	LayerVeridical MemoryLayer = "veridical"
	LayerSemantic  MemoryLayer = "semantic"
	LayerEpisodic  MemoryLayer = "episodic"
)

// AllLayers is the fixed order in which layers are probed and reported.
var AllLayers = []MemoryLayer{LayerVeridical, LayerSemantic, LayerEpisodic}

func ValidMemoryLayer(l string) bool {
	switch MemoryLayer(l) {
	case LayerVeridical, LayerSemantic, LayerEpisodic:
		return true
	}
	return false
}

// Tag is the short label used when a node is quoted in a prompt or summary.
func (l MemoryLayer) Tag() string {
	switch l {
	case LayerVeridical:
		return "FACT"
	case LayerSemantic:
		return "CONCEPT"
	case LayerEpisodic:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// MemoryNode is owned by the graph store. The cognition core only reads it.
type MemoryNode struct {
	ID        uuid.UUID      `json:"id"`
	Layer     MemoryLayer    `json:"layer"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"-"`
	Relevance float32        `json:"relevance"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NodeRef is a similarity-ranked hit returned by a layer query.
type NodeRef struct {
	ID    uuid.UUID   `json:"id"`
	Layer MemoryLayer `json:"layer"`
	Score float32     `json:"score"`
}

// MemorySnapshot is an aggregate view of the memory system at query time.
type MemorySnapshot struct {
	LayerCounts    map[MemoryLayer]int `json:"layer_counts"`
	WorkingSetSize int                 `json:"working_set_size"`
	LoadFactor     float64             `json:"load_factor"`
}

// Total returns the number of nodes across all layers.
func (s MemorySnapshot) Total() int {
	total := 0
	for _, c := range s.LayerCounts {
		total += c
	}
	return total
}

// ClampUnit bounds a score to [0,1].
func ClampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
