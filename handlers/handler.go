package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/juho05/apcalt/services"
)

type Handler struct {
	Router           chi.Router
	SessionService   services.SessionService
	AuthService      services.AuthService
	ClassroomService services.ClassroomService
}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Router.ServeHTTP(w, r)
}
