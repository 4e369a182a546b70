package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"github.com/Harshitk-cp/bayesd/internal/service"
)

type BeliefHandler struct {
	svc *service.BeliefService
}

func NewBeliefHandler(svc *service.BeliefService) *BeliefHandler {
	return &BeliefHandler{svc: svc}
}

func (h *BeliefHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req service.TrackRequest
	if !decode(w, r, &req) {
		return
	}

	snap, err := h.svc.Track(r.Context(), chi.URLParam(r, "subject"), req)
	if err != nil {
		writeServiceError(w, err, "failed to track subject")
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *BeliefHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Strategy != "" && !domain.ValidUpdateStrategy(string(req.Strategy)) {
		writeError(w, http.StatusUnprocessableEntity, "strategy must be one of immediate, exponential_decay, windowed")
		return
	}

	u, err := h.svc.Update(r.Context(), chi.URLParam(r, "subject"), req)
	if err != nil {
		writeServiceError(w, err, "failed to update beliefs")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *BeliefHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(chi.URLParam(r, "subject"))
	if err != nil {
		writeServiceError(w, err, "failed to get beliefs")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type historyResponse struct {
	Updates []domain.BeliefUpdate `json:"updates"`
	Count   int                   `json:"count"`
}

func (h *BeliefHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	updates, err := h.svc.History(r.Context(), chi.URLParam(r, "subject"), limit)
	if err != nil {
		writeServiceError(w, err, "failed to get belief history")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Updates: updates, Count: len(updates)})
}

func (h *BeliefHandler) Reset(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Reset(r.Context(), chi.URLParam(r, "subject"))
	if err != nil {
		writeServiceError(w, err, "failed to reset beliefs")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *BeliefHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Forget(r.Context(), chi.URLParam(r, "subject")); err != nil {
		writeServiceError(w, err, "failed to delete subject")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type subjectsResponse struct {
	Subjects []string `json:"subjects"`
}

func (h *BeliefHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, subjectsResponse{Subjects: h.svc.Subjects()})
}
