package handlers

import (
	"context"
	"net/http"

	"github.com/Harshitk-cp/synapse/internal/service"
	"go.uber.org/zap"
)

// ConsolidationRunner is satisfied by *service.ConsolidationScheduler.
type ConsolidationRunner interface {
	RunOnce(ctx context.Context) (*service.ScheduleResult, error)
	Pending() int
}

type CognitiveHandler struct {
	consolidation ConsolidationRunner
	logger        *zap.Logger
}

func NewCognitiveHandler(cr ConsolidationRunner, logger *zap.Logger) *CognitiveHandler {
	return &CognitiveHandler{consolidation: cr, logger: logger}
}

type triggerConsolidationResponse struct {
	ConnectionsLinked int `json:"connections_linked"`
	EdgesProcessed    int `json:"edges_processed"`
	EdgesDecayed      int `json:"edges_decayed"`
	EdgesPruned       int `json:"edges_pruned"`
	StillPending      int `json:"still_pending"`
}

// TriggerConsolidation runs one scheduler pass without waiting for the ticker.
func (h *CognitiveHandler) TriggerConsolidation(w http.ResponseWriter, r *http.Request) {
	if h.consolidation == nil {
		writeError(w, http.StatusServiceUnavailable, "consolidation scheduler not available")
		return
	}

	result, err := h.consolidation.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("manual consolidation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "consolidation failed")
		return
	}

	resp := triggerConsolidationResponse{
		ConnectionsLinked: result.ConnectionsLinked,
		StillPending:      h.consolidation.Pending(),
	}
	if result.Decay != nil {
		resp.EdgesProcessed = result.Decay.Processed
		resp.EdgesDecayed = result.Decay.Decayed
		resp.EdgesPruned = result.Decay.Pruned
	}
	writeJSON(w, http.StatusOK, resp)
}
