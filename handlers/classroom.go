package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) subjects(w http.ResponseWriter, r *http.Request) {
	data, err := h.ClassroomService.Subjects(r.Context(), credentials(r))
	if err != nil {
		upstreamError(w, err)
		return
	}
	respond(w, http.StatusOK, data)
}

func (h *Handler) outline(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	if subjectID == "" {
		badRequest(w)
		return
	}
	data, err := h.ClassroomService.Outline(r.Context(), credentials(r), subjectID)
	if err != nil {
		upstreamError(w, err)
		return
	}
	respond(w, http.StatusOK, data)
}
