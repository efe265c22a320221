package domain

import (
	"time"

	"github.com/google/uuid"
)

type RelationType string

const (
	RelationEntityLink  RelationType = "entity_link"
	RelationCausal      RelationType = "causal"
	RelationTemporal    RelationType = "temporal"
	RelationThematic    RelationType = "thematic"
	RelationDerivedFrom RelationType = "derived_from"
	RelationFusionMerge RelationType = "fusion_merge"
	RelationFusionLink  RelationType = "fusion_link"
)

func ValidRelationType(r string) bool {
	switch RelationType(r) {
	case RelationEntityLink, RelationCausal, RelationTemporal, RelationThematic,
		RelationDerivedFrom, RelationFusionMerge, RelationFusionLink:
		return true
	}
	return false
}

// RelationForFusion maps a fusion kind to the edge relation it is stored as.
func RelationForFusion(k FusionKind) RelationType {
	if k == FusionMerge {
		return RelationFusionMerge
	}
	return RelationFusionLink
}

// SymmetricRelations indicates which relations are bidirectional
var SymmetricRelations = map[RelationType]bool{
	RelationEntityLink:  true,
	RelationThematic:    true,
	RelationFusionMerge: true,
	RelationFusionLink:  true,
}

// RelationDecayMultipliers controls how fast activation decays when traversing each relation type
var RelationDecayMultipliers = map[RelationType]float64{
	RelationEntityLink:  0.7,
	RelationCausal:      0.9,
	RelationTemporal:    0.6,
	RelationThematic:    0.7,
	RelationDerivedFrom: 0.8,
	RelationFusionMerge: 0.95,
	RelationFusionLink:  0.85,
}

type GraphEdge struct {
	ID              uuid.UUID    `json:"id"`
	SourceID        uuid.UUID    `json:"source_id"`
	TargetID        uuid.UUID    `json:"target_id"`
	RelationType    RelationType `json:"relation_type"`
	Strength        float32      `json:"strength"`
	CreatedAt       time.Time    `json:"created_at"`
	LastTraversedAt *time.Time   `json:"last_traversed_at,omitempty"`
	TraversalCount  int          `json:"traversal_count"`
}

// EdgeDecayResult tracks the outcome of edge decay operations
type EdgeDecayResult struct {
	Processed int
	Decayed   int
	Pruned    int
}

// PruningRules controls graph pruning behavior
type PruningRules struct {
	StrengthThreshold float32       // Delete edges below this strength (default 0.05)
	StaleThreshold    time.Duration // Delete edges not traversed in this duration
	MaxEdgesPerNode   int           // Keep only strongest N edges per node
}

func DefaultPruningRules() PruningRules {
	return PruningRules{
		StrengthThreshold: 0.05,
		StaleThreshold:    90 * 24 * time.Hour,
		MaxEdgesPerNode:   50,
	}
}
