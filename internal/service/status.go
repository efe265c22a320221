package service

import "github.com/Harshitk-cp/synapse/internal/domain"

type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseReasoning     Phase = "reasoning"
	PhaseProbing       Phase = "probing"
	PhaseRetrieving    Phase = "retrieving"
	PhaseConsolidating Phase = "consolidating"
	PhaseResolving     Phase = "resolving"
	PhaseExploring     Phase = "exploring"
)

// ValidPhase reports whether p is one of the fixed control loop phases.
func ValidPhase(p string) bool {
	switch Phase(p) {
	case PhaseIdle, PhaseReasoning, PhaseProbing, PhaseRetrieving,
		PhaseConsolidating, PhaseResolving, PhaseExploring:
		return true
	}
	return false
}

// ControlLoopStatus is an immutable snapshot. A new one is published on every
// change, so readers may keep it as long as they like.
type ControlLoopStatus struct {
	Phase                 Phase                    `json:"phase"`
	IsProcessing          bool                     `json:"is_processing"`
	ActiveTrajectoryCount int                      `json:"active_trajectory_count"`
	LastMetrics           *domain.CognitiveMetrics `json:"last_metrics,omitempty"`
}
