package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"

	"github.com/juho05/log"

	"github.com/juho05/apcalt/repos"
)

// SessionKeyAuth is the session value holding the user's Credentials.
const SessionKeyAuth = "auth"

type SessionCtxKey struct{}

// Session is one browser session. It is loaded fresh for every request and
// only written back when one of its mutating methods has been called.
type Session struct {
	id        string
	values    map[string]any
	dirty     bool
	permanent bool
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) Put(key string, value any) {
	s.values[key] = value
	s.dirty = true
}

func (s *Session) Remove(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

func (s *Session) Clear() {
	if len(s.values) == 0 {
		return
	}
	s.values = make(map[string]any)
	s.dirty = true
}

func (s *Session) Empty() bool {
	return len(s.values) == 0
}

func (s *Session) Dirty() bool {
	return s.dirty
}

func (s *Session) Permanent() bool {
	return s.permanent
}

func (s *Session) SetPermanent(permanent bool) {
	if s.permanent == permanent {
		return
	}
	s.permanent = permanent
	s.dirty = true
}

// Credentials returns a copy of the stored credentials or nil if the session
// is not logged in.
func (s *Session) Credentials() *Credentials {
	v, ok := s.values[SessionKeyAuth]
	if !ok {
		return nil
	}
	switch c := v.(type) {
	case Credentials:
		c.modified = false
		return &c
	case *Credentials:
		cp := *c
		cp.modified = false
		return &cp
	default:
		return nil
	}
}

func (s *Session) SetCredentials(c *Credentials) {
	cp := *c
	cp.modified = false
	s.Put(SessionKeyAuth, cp)
}

// SessionFromContext returns the session attached by the session middleware.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(SessionCtxKey{}).(*Session)
	return s
}

type SessionOptions struct {
	CookieName     string
	CookieDomain   string
	CookiePath     string
	CookieHTTPOnly bool
	CookieSecure   bool
	CookieSameSite http.SameSite

	KeyPrefix string
	Permanent bool
	Lifetime  time.Duration
}

type SessionService interface {
	CookieName() string
	// Open returns the session identified by cookieValue or a new, empty one
	// if there is none.
	Open(ctx context.Context, cookieValue string) (*Session, error)
	// Save persists a modified session and (re)issues or clears its cookie on w.
	Save(ctx context.Context, s *Session, w http.ResponseWriter) error
}

type sessionService struct {
	store repos.ExpiringStore
	opts  SessionOptions
	codec scs.GobCodec
	now   func() time.Time
}

func NewSessionService(store repos.ExpiringStore, opts SessionOptions) SessionService {
	if opts.CookieName == "" {
		opts.CookieName = "session"
	}
	if opts.CookiePath == "" {
		opts.CookiePath = "/"
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = 30 * 24 * time.Hour
	}
	return &sessionService{
		store: store,
		opts:  opts,
		now:   time.Now,
	}
}

func (s *sessionService) CookieName() string {
	return s.opts.CookieName
}

func (s *sessionService) newSession() *Session {
	return &Session{
		id:        uuid.NewString(),
		values:    make(map[string]any),
		permanent: s.opts.Permanent,
	}
}

func (s *sessionService) Open(ctx context.Context, cookieValue string) (*Session, error) {
	if cookieValue == "" {
		return s.newSession(), nil
	}
	if _, err := uuid.Parse(cookieValue); err != nil {
		return s.newSession(), nil
	}

	key := s.opts.KeyPrefix + cookieValue
	data, found, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if !found {
		return s.newSession(), nil
	}

	deadline, values, err := s.codec.Decode(data)
	if err != nil || (!deadline.IsZero() && deadline.Before(s.now())) {
		if err != nil {
			log.Tracef("Discarding undecodable session %s: %s", cookieValue, err)
		}
		err = s.store.Delete(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("open session: discard: %w", err)
		}
		return s.newSession(), nil
	}
	if values == nil {
		values = make(map[string]any)
	}

	return &Session{
		id:        cookieValue,
		values:    values,
		permanent: s.opts.Permanent,
	}, nil
}

func (s *sessionService) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    value,
		Domain:   s.opts.CookieDomain,
		Path:     s.opts.CookiePath,
		HttpOnly: s.opts.CookieHTTPOnly,
		Secure:   s.opts.CookieSecure,
		SameSite: s.opts.CookieSameSite,
	}
}

func (s *sessionService) Save(ctx context.Context, sess *Session, w http.ResponseWriter) error {
	if !sess.dirty || w == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	key := s.opts.KeyPrefix + sess.id
	cookie := s.cookie(sess.id)

	if sess.Empty() {
		err := s.store.Delete(ctx, key)
		if err != nil {
			return fmt.Errorf("save session: delete: %w", err)
		}
		cookie.Value = ""
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(1, 0)
		http.SetCookie(w, cookie)
		sess.dirty = false
		return nil
	}

	deadline := s.now().Add(s.opts.Lifetime)
	data, err := s.codec.Encode(deadline, sess.values)
	if err != nil {
		return fmt.Errorf("save session: encode: %w", err)
	}
	err = s.store.Set(ctx, key, data, s.opts.Lifetime)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if sess.permanent {
		cookie.Expires = deadline
	}
	http.SetCookie(w, cookie)
	sess.dirty = false
	return nil
}
