package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Harshitk-cp/bayesd/internal/model"
	"github.com/Harshitk-cp/bayesd/internal/service"
)

type ModelHandler struct {
	svc *service.ModelService
}

func NewModelHandler(svc *service.ModelService) *ModelHandler {
	return &ModelHandler{svc: svc}
}

type modelsResponse struct {
	Models []model.Entry `json:"models"`
	Count  int           `json:"count"`
}

func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.svc.List()
	writeJSON(w, http.StatusOK, modelsResponse{Models: entries, Count: len(entries)})
}

func (h *ModelHandler) Put(w http.ResponseWriter, r *http.Request) {
	var spec model.Spec
	if !decode(w, r, &spec) {
		return
	}

	e, err := h.svc.Put(chi.URLParam(r, "name"), spec)
	if err != nil {
		writeServiceError(w, err, "failed to register model")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *ModelHandler) Fit(w http.ResponseWriter, r *http.Request) {
	var obs model.Observations
	if !decode(w, r, &obs) {
		return
	}

	e, err := h.svc.Fit(chi.URLParam(r, "name"), obs)
	if err != nil {
		writeServiceError(w, err, "failed to fit model")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *ModelHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var q model.Query
	if !decode(w, r, &q) {
		return
	}

	res, err := h.svc.Evaluate(chi.URLParam(r, "name"), q)
	if err != nil {
		writeServiceError(w, err, "failed to evaluate model")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ModelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Remove(chi.URLParam(r, "name")); err != nil {
		writeServiceError(w, err, "failed to delete model")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
