package handlers

import (
	"net/http"
	"time"

	"github.com/juho05/apcalt"
)

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	respond(w, http.StatusOK, response{
		Status: "ok",
		Uptime: time.Since(apcalt.StartTime).Round(time.Second).String(),
	})
}
