package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProbeResult holds deduplicated candidate hits per layer.
type ProbeResult struct {
	Hits map[MemoryLayer][]NodeRef `json:"hits"`
}

func NewProbeResult() ProbeResult {
	return ProbeResult{Hits: make(map[MemoryLayer][]NodeRef, len(AllLayers))}
}

// Total returns the number of hits across all layers.
func (p ProbeResult) Total() int {
	n := 0
	for _, hits := range p.Hits {
		n += len(hits)
	}
	return n
}

type RetrievedNode struct {
	Node  MemoryNode `json:"node"`
	Score float32    `json:"score"`
}

// RetrievalResult is the bounded, ranked outcome of the retrieve phase.
type RetrievalResult struct {
	Nodes          []RetrievedNode     `json:"nodes"`
	TotalRelevance float64             `json:"total_relevance"`
	Distribution   map[MemoryLayer]int `json:"distribution"`
}

// LayersEngaged counts layers that contributed at least one node.
func (r RetrievalResult) LayersEngaged() int {
	n := 0
	for _, c := range r.Distribution {
		if c > 0 {
			n++
		}
	}
	return n
}

type FusionKind string

const (
	FusionMerge FusionKind = "merge" // same layer, likely the same knowledge
	FusionLink  FusionKind = "link"  // different layers, closely related
)

type FusionConnection struct {
	NodeIDs    []uuid.UUID `json:"node_ids"`
	Kind       FusionKind  `json:"kind"`
	Confidence float64     `json:"confidence"`
}

type FusionResult struct {
	Connections         []FusionConnection `json:"connections"`
	CandidatesEvaluated int                `json:"candidates_evaluated"`
}

type ConsolidationResult struct {
	Connections []FusionConnection `json:"connections"`
	Confidence  float64            `json:"consolidation_confidence"`
	Summary     string             `json:"summary"`
}

type CognitiveMetrics struct {
	ProcessingTime   time.Duration `json:"processing_time"`
	MemoryHits       int           `json:"memory_hits"`
	LayersEngaged    int           `json:"layers_engaged"`
	FusionOperations int           `json:"fusion_operations"`
	Confidence       float64       `json:"confidence"`
	ExplorationPaths int           `json:"exploration_paths"`
}

type CognitiveResponse struct {
	Answer        string              `json:"answer"`
	Reasoning     ReasoningResult     `json:"reasoning"`
	Retrieval     RetrievalResult     `json:"retrieval"`
	Consolidation ConsolidationResult `json:"consolidation"`
	Confidence    float64             `json:"confidence"`
	Metrics       CognitiveMetrics    `json:"metrics"`
}
