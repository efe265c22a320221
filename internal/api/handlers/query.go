package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/Harshitk-cp/synapse/internal/service"
	"go.uber.org/zap"
)

// StatusClientClosedRequest is the nginx convention for a caller that went away.
const StatusClientClosedRequest = 499

// QueryProcessor is satisfied by *service.ControlLoop.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, query string, cc *domain.CognitiveContext) (*domain.CognitiveResponse, error)
	NewContext(ctx context.Context, query string, depth int) domain.CognitiveContext
}

// ConnectionSink receives fusion connections for background consolidation.
type ConnectionSink interface {
	Enqueue(connections []domain.FusionConnection)
}

type QueryHandler struct {
	loop    QueryProcessor
	sink    ConnectionSink
	timeout time.Duration
	logger  *zap.Logger
}

// NewQueryHandler accepts a nil sink, in which case connections are not persisted.
func NewQueryHandler(loop QueryProcessor, sink ConnectionSink, timeout time.Duration, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{loop: loop, sink: sink, timeout: timeout, logger: logger}
}

type queryRequest struct {
	Query             string `json:"query" validate:"required,max=8192"`
	MaxReasoningDepth int    `json:"max_reasoning_depth,omitempty" validate:"omitempty,min=1,max=32"`
}

type queryResponse struct {
	Answer        string                     `json:"answer"`
	Confidence    float64                    `json:"confidence"`
	Reasoning     domain.ReasoningResult     `json:"reasoning"`
	Retrieval     domain.RetrievalResult     `json:"retrieval"`
	Consolidation domain.ConsolidationResult `json:"consolidation"`
	Metrics       queryMetrics               `json:"metrics"`
}

type queryMetrics struct {
	ProcessingMS     int64   `json:"processing_ms"`
	MemoryHits       int     `json:"memory_hits"`
	LayersEngaged    int     `json:"layers_engaged"`
	FusionOperations int     `json:"fusion_operations"`
	Confidence       float64 `json:"confidence"`
	ExplorationPaths int     `json:"exploration_paths"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := requestValidator().Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	var cc *domain.CognitiveContext
	if req.MaxReasoningDepth > 0 {
		built := h.loop.NewContext(ctx, req.Query, req.MaxReasoningDepth)
		cc = &built
	}

	resp, err := h.loop.ProcessQuery(ctx, req.Query, cc)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	if h.sink != nil {
		h.sink.Enqueue(resp.Consolidation.Connections)
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:        resp.Answer,
		Confidence:    resp.Confidence,
		Reasoning:     resp.Reasoning,
		Retrieval:     resp.Retrieval,
		Consolidation: resp.Consolidation,
		Metrics: queryMetrics{
			ProcessingMS:     resp.Metrics.ProcessingTime.Milliseconds(),
			MemoryHits:       resp.Metrics.MemoryHits,
			LayersEngaged:    resp.Metrics.LayersEngaged,
			FusionOperations: resp.Metrics.FusionOperations,
			Confidence:       resp.Metrics.Confidence,
			ExplorationPaths: resp.Metrics.ExplorationPaths,
		},
	})
}

func (h *QueryHandler) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrQueryInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrCancelled):
		writeError(w, StatusClientClosedRequest, "request cancelled")
	case errors.Is(err, service.ErrReasoningUnavailable):
		writeError(w, http.StatusBadGateway, "reasoning oracle unavailable")
	case errors.Is(err, service.ErrProbeFailed):
		writeError(w, http.StatusServiceUnavailable, "memory graph unavailable")
	default:
		h.logger.Error("query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
