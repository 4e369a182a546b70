package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/service"
)

type InferenceHandler struct {
	svc *service.ReasoningService
}

func NewInferenceHandler(svc *service.ReasoningService) *InferenceHandler {
	return &InferenceHandler{svc: svc}
}

func (h *InferenceHandler) Infer(w http.ResponseWriter, r *http.Request) {
	var req service.InferenceRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Hypotheses) == 0 {
		writeError(w, http.StatusBadRequest, "hypotheses are required")
		return
	}

	resp, err := h.svc.Infer(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "failed to run inference")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type quantifyRequest struct {
	Result *domain.InferenceResult `json:"result"`
	service.QuantificationRequest
}

func (h *InferenceHandler) Quantify(w http.ResponseWriter, r *http.Request) {
	var req quantifyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Result == nil {
		writeError(w, http.StatusBadRequest, "result is required")
		return
	}

	um, err := h.svc.Quantify(r.Context(), req.Result, &req.QuantificationRequest)
	if err != nil {
		writeServiceError(w, err, "failed to quantify uncertainty")
		return
	}
	writeJSON(w, http.StatusOK, um)
}

type calibrateRequest struct {
	Predictions []float64 `json:"predictions"`
	Outcomes    []bool    `json:"outcomes"`
	Bins        int       `json:"bins"`
}

func (h *InferenceHandler) Calibrate(w http.ResponseWriter, r *http.Request) {
	var req calibrateRequest
	if !decode(w, r, &req) {
		return
	}

	report, err := h.svc.Calibrate(req.Predictions, req.Outcomes, req.Bins)
	if err != nil {
		writeServiceError(w, err, "failed to calibrate")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
