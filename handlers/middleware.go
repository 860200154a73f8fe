package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/juho05/log"
	"github.com/sethvargo/go-limiter/httplimit"
	"github.com/sethvargo/go-limiter/memorystore"
	"golang.org/x/exp/slices"

	"github.com/juho05/apcalt/config"
	"github.com/juho05/apcalt/services"
)

type credentialsCtxKey struct{}

// publicRoutes can be used without a logged in session.
var publicRoutes = []string{"/api/login", "/healthz", "/metrics"}

type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusResponseWriter) WriteHeader(code int) {
	if s.status >= 200 {
		return
	}
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusResponseWriter) Write(b []byte) (int, error) {
	if s.status < 200 {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusResponseWriter) ReadFrom(r io.Reader) (int64, error) {
	if s.status < 200 {
		s.WriteHeader(http.StatusOK)
	}
	return io.Copy(s.ResponseWriter, r)
}

func logRequest(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		rw := &statusResponseWriter{ResponseWriter: w}
		start := time.Now()
		defer func() {
			u := *r.URL
			u.RawQuery = ""
			u.RawFragment = ""
			log.Tracef("%s %s, status: %d %s, duration: %s", r.Method, u.String(), rw.status, http.StatusText(rw.status), time.Since(start).String())
		}()
		next.ServeHTTP(rw, r)
	}
	return http.HandlerFunc(fn)
}

func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if e, ok := err.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(err)
				}
				w.Header().Set("Connection", "close")
				serverError(w, fmt.Errorf("%v", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func corsHeaders(origins []string) func(next http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"https://*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((15 * time.Minute).Seconds()),
	})
}

func rateLimit(tokens int, interval time.Duration) func(next http.Handler) http.Handler {
	store, err := memorystore.New(&memorystore.Config{
		Tokens:   uint64(tokens),
		Interval: interval,
	})
	if err != nil {
		panic("init rate limit store: " + err.Error())
	}
	var headers []string
	if config.BehindProxy() {
		headers = append(headers, "X-Forwarded-For")
	}
	mware, err := httplimit.NewMiddleware(store, httplimit.IPKeyFunc(headers...))
	if err != nil {
		panic("init rate limit middleware: " + err.Error())
	}
	return mware.Handle
}

// auth exposes the session's credentials to the handlers and writes them back
// into the session when a handler changed them. Requests to routes outside of
// publicRoutes are rejected unless the session is logged in.
func (h *Handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := services.SessionFromContext(r.Context())
		if sess == nil {
			serverError(w, errors.New("auth middleware requires the session middleware"))
			return
		}

		creds := sess.Credentials()
		if creds == nil {
			if !slices.Contains(publicRoutes, r.URL.Path) {
				unauthorized(w, ErrLoginRequired)
				return
			}
			creds = &services.Credentials{}
		}

		r = r.WithContext(context.WithValue(r.Context(), credentialsCtxKey{}, creds))
		next.ServeHTTP(w, r)

		if !creds.Modified() {
			return
		}
		if creds.State(time.Now()) == services.StateUnauthenticated {
			sess.Remove(services.SessionKeyAuth)
		} else {
			sess.SetCredentials(creds)
		}
	})
}

func credentials(r *http.Request) *services.Credentials {
	c, _ := r.Context().Value(credentialsCtxKey{}).(*services.Credentials)
	return c
}
