package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/bayesd/internal/service"
)

type DecisionHandler struct {
	svc *service.DecisionService
}

func NewDecisionHandler(svc *service.DecisionService) *DecisionHandler {
	return &DecisionHandler{svc: svc}
}

func (h *DecisionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req service.DecisionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Tree.Type == "" {
		writeError(w, http.StatusBadRequest, "tree is required")
		return
	}

	resp, err := h.svc.Decide(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "failed to evaluate decision tree")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
