package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/synapse/internal/service"
)

// LoopController is satisfied by *service.ControlLoop.
type LoopController interface {
	GetControlLoopStatus() service.ControlLoopStatus
	Reset()
}

// BreakerState is implemented by *llm.BreakerOracle.
type BreakerState interface {
	State() string
}

type StatusHandler struct {
	loop    LoopController
	breaker BreakerState
}

func NewStatusHandler(loop LoopController, breaker BreakerState) *StatusHandler {
	return &StatusHandler{loop: loop, breaker: breaker}
}

type statusResponse struct {
	service.ControlLoopStatus
	OracleCircuit string `json:"oracle_circuit,omitempty"`
}

func (h *StatusHandler) response() statusResponse {
	resp := statusResponse{ControlLoopStatus: h.loop.GetControlLoopStatus()}
	if h.breaker != nil {
		resp.OracleCircuit = h.breaker.State()
	}
	return resp
}

func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.response())
}

// Reset cancels any in-flight query and returns the idle status.
func (h *StatusHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.loop.Reset()
	writeJSON(w, http.StatusOK, h.response())
}
