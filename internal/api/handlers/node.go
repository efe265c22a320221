package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/synapse/internal/domain"
	"github.com/Harshitk-cp/synapse/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type NodeHandler struct {
	nodes  domain.MemoryNodeStore
	stats  domain.LayerStatsProvider
	logger *zap.Logger
}

// NewNodeHandler accepts a nil stats provider; the stats route then returns 404.
func NewNodeHandler(nodes domain.MemoryNodeStore, stats domain.LayerStatsProvider, logger *zap.Logger) *NodeHandler {
	return &NodeHandler{nodes: nodes, stats: stats, logger: logger}
}

type createNodeRequest struct {
	Layer     string         `json:"layer" validate:"required,oneof=veridical semantic episodic"`
	Content   string         `json:"content" validate:"required,max=16384"`
	Relevance float32        `json:"relevance,omitempty" validate:"gte=0,lte=1"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (h *NodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := requestValidator().Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	node := &domain.MemoryNode{
		Layer:     domain.MemoryLayer(req.Layer),
		Content:   req.Content,
		Relevance: req.Relevance,
		Metadata:  req.Metadata,
	}
	if err := h.nodes.CreateNode(r.Context(), node); err != nil {
		h.logger.Error("create node failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create node")
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (h *NodeHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}

	node, err := h.nodes.GetNode(r.Context(), id)
	if err != nil {
		h.logger.Error("get node failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load node")
		return
	}
	if node == nil {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (h *NodeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}

	if err := h.nodes.DeleteNode(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "node not found")
			return
		}
		h.logger.Error("delete node failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete node")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NodeHandler) LayerStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusNotFound, "layer stats unavailable")
		return
	}
	snapshot, err := h.stats.LayerStats(r.Context())
	if err != nil {
		h.logger.Error("layer stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load layer stats")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
