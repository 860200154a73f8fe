package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/juho05/apcalt/services"
)

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Username string `json:"username" validate:"required,notblank"`
		Password string `json:"password" validate:"required"`
	}
	body, err := decodeBody[request](r)
	if err != nil {
		badRequest(w)
		return
	}
	if fields := findInvalidFields(body); len(fields) > 0 {
		invalidFields(w, fields)
		return
	}

	creds := credentials(r)
	err = h.AuthService.Login(r.Context(), creds, body.Username, body.Password)
	if err == nil {
		err = h.AuthService.EnsureAWS(r.Context(), creds)
	}
	if err != nil {
		if services.IsFatalAuth(err) {
			unauthorized(w, services.ErrInvalidCredentials)
			return
		}
		serverError(w, err)
		return
	}
	h.me(w, r)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.AuthService.Logout(credentials(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	type response struct {
		UserName  string    `json:"userName"`
		State     string    `json:"state"`
		AWSExpire time.Time `json:"awsExpire"`
	}
	creds := credentials(r)
	respond(w, http.StatusOK, response{
		UserName:  creds.UserName,
		State:     creds.State(time.Now()).String(),
		AWSExpire: creds.AWSExpire,
	})
}

// upstreamError responds to a failed call into the credential chain.
func upstreamError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrUnauthenticated) {
		unauthorized(w, services.ErrUnauthenticated)
		return
	}
	serverError(w, err)
}
