package handlers

import (
	"bytes"
	"context"
	"net/http"

	"github.com/juho05/log"

	"github.com/juho05/apcalt/services"
)

type bufferedResponseWriter struct {
	http.ResponseWriter
	buf  bytes.Buffer
	code int
}

func (bw *bufferedResponseWriter) Write(b []byte) (int, error) {
	return bw.buf.Write(b)
}

func (bw *bufferedResponseWriter) WriteHeader(code int) {
	if bw.code == 0 {
		bw.code = code
	}
}

func (bw *bufferedResponseWriter) Unwrap() http.ResponseWriter {
	return bw.ResponseWriter
}

// loadAndSave loads the session identified by the request cookie and persists
// it after the handler has run if it was modified. The response is buffered
// so that the session cookie can still be set afterwards.
func (h *Handler) loadAndSave(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Cookie")

		var token string
		if cookie, err := r.Cookie(h.SessionService.CookieName()); err == nil {
			token = cookie.Value
		}
		sess, err := h.SessionService.Open(r.Context(), token)
		if err != nil {
			serverError(w, err)
			return
		}

		bw := &bufferedResponseWriter{ResponseWriter: w}
		sr := r.WithContext(context.WithValue(r.Context(), services.SessionCtxKey{}, sess))
		next.ServeHTTP(bw, sr)

		if r.Context().Err() != nil {
			log.Tracef("Request canceled, not saving session %s", sess.ID())
		} else if err = h.SessionService.Save(r.Context(), sess, w); err != nil {
			serverError(w, err)
			return
		}

		if bw.code != 0 {
			w.WriteHeader(bw.code)
		}
		w.Write(bw.buf.Bytes())
	})
}
