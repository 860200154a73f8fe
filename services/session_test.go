package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/juho05/apcalt/repos"
	"github.com/juho05/apcalt/repos/memory"
)

type countingStore struct {
	repos.ExpiringStore
	mu      sync.Mutex
	writes  int
	deletes int
}

func (c *countingStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.ExpiringStore.Set(ctx, key, data, ttl)
}

func (c *countingStore) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	c.deletes++
	c.mu.Unlock()
	return c.ExpiringStore.Delete(ctx, key)
}

func newTestSessionService(t *testing.T) (*sessionService, *countingStore, *time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mem := memory.New()
	mem.Now = func() time.Time { return now }
	t.Cleanup(func() { mem.Close() })
	store := &countingStore{ExpiringStore: mem}
	s := NewSessionService(store, SessionOptions{
		CookieName:     "session",
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
		KeyPrefix:      "session:",
		Permanent:      true,
		Lifetime:       30 * 24 * time.Hour,
	}).(*sessionService)
	s.now = func() time.Time { return now }
	return s, store, &now
}

func responseCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionOpenWithoutCookie(t *testing.T) {
	s, _, _ := newTestSessionService(t)
	sess, err := s.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sess.ID() == "" || !sess.Empty() || sess.Dirty() {
		t.Fatalf("expected clean empty session with an id, got %+v", sess)
	}
	if !sess.Permanent() {
		t.Fatalf("expected permanent session")
	}
}

func TestSessionOpenUnknownID(t *testing.T) {
	s, _, _ := newTestSessionService(t)
	const id = "6a1f9d0e-6c43-4c54-9b8e-3a9f1f4d2b11"
	sess, err := s.Open(context.Background(), id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sess.ID() == id {
		t.Fatalf("expected a fresh id for an unknown session")
	}

	sess, err = s.Open(context.Background(), "not-a-uuid")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sess.ID() == "not-a-uuid" {
		t.Fatalf("expected a fresh id for an invalid cookie")
	}
}

func TestSessionSaveClean(t *testing.T) {
	s, store, _ := newTestSessionService(t)
	sess, err := s.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := httptest.NewRecorder()
	if err = s.Save(context.Background(), sess, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.writes != 0 || store.deletes != 0 {
		t.Fatalf("expected no store writes, got %d writes and %d deletes", store.writes, store.deletes)
	}
	if c := responseCookie(t, rec, "session"); c != nil {
		t.Fatalf("expected no cookie, got %v", c)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s, store, now := newTestSessionService(t)
	ctx := context.Background()

	sess, err := s.Open(ctx, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess.SetCredentials(&Credentials{CookieToken: "tok", UserName: "alice", AWSExpire: now.Add(time.Hour)})
	rec := httptest.NewRecorder()
	if err = s.Save(ctx, sess, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.writes != 1 {
		t.Fatalf("expected 1 write, got %d", store.writes)
	}
	if sess.Dirty() {
		t.Fatalf("expected session to be clean after save")
	}

	cookie := responseCookie(t, rec, "session")
	if cookie == nil {
		t.Fatal("expected session cookie")
	}
	if cookie.Value != sess.ID() || !cookie.HttpOnly || cookie.Path != "/" {
		t.Fatalf("unexpected cookie: %v", cookie)
	}
	if !cookie.Expires.Equal(now.Add(30 * 24 * time.Hour).Truncate(time.Second)) {
		t.Fatalf("expected cookie to expire in 30 days, got %s", cookie.Expires)
	}

	loaded, err := s.Open(ctx, cookie.Value)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if loaded.ID() != sess.ID() {
		t.Fatalf("expected id %s, got %s", sess.ID(), loaded.ID())
	}
	creds := loaded.Credentials()
	if creds == nil || creds.CookieToken != "tok" || creds.UserName != "alice" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
	if creds.State(*now) != StateAWSValid {
		t.Fatalf("expected aws-valid, got %s", creds.State(*now))
	}
	if loaded.Dirty() {
		t.Fatalf("expected loaded session to be clean")
	}
}

func TestSessionDestroyEmpty(t *testing.T) {
	s, store, _ := newTestSessionService(t)
	ctx := context.Background()

	sess, _ := s.Open(ctx, "")
	sess.Put("k", "v")
	if err := s.Save(ctx, sess, httptest.NewRecorder()); err != nil {
		t.Fatalf("save: %v", err)
	}

	sess, err := s.Open(ctx, sess.ID())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sess.Remove("k")
	rec := httptest.NewRecorder()
	if err = s.Save(ctx, sess, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.deletes != 1 {
		t.Fatalf("expected 1 delete, got %d", store.deletes)
	}
	has, err := store.Has(ctx, "session:"+sess.ID())
	if err != nil || has {
		t.Fatalf("expected entry to be gone, has=%v err=%v", has, err)
	}
	cookie := responseCookie(t, rec, "session")
	if cookie == nil || cookie.MaxAge >= 0 || cookie.Value != "" {
		t.Fatalf("expected cleared cookie, got %v", cookie)
	}
}

func TestSessionExpiredDeadline(t *testing.T) {
	s, _, now := newTestSessionService(t)
	ctx := context.Background()

	sess, _ := s.Open(ctx, "")
	sess.Put("k", "v")
	if err := s.Save(ctx, sess, httptest.NewRecorder()); err != nil {
		t.Fatalf("save: %v", err)
	}

	*now = now.Add(31 * 24 * time.Hour)
	loaded, err := s.Open(ctx, sess.ID())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if loaded.ID() == sess.ID() || !loaded.Empty() {
		t.Fatalf("expected a fresh session after expiry")
	}
}

func TestSessionCorruptPayload(t *testing.T) {
	s, store, _ := newTestSessionService(t)
	ctx := context.Background()
	const id = "6a1f9d0e-6c43-4c54-9b8e-3a9f1f4d2b11"

	if err := store.ExpiringStore.Set(ctx, "session:"+id, []byte("garbage"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	sess, err := s.Open(ctx, id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sess.ID() == id {
		t.Fatalf("expected a fresh session for a corrupt payload")
	}
	has, err := store.Has(ctx, "session:"+id)
	if err != nil || has {
		t.Fatalf("expected corrupt entry to be purged, has=%v err=%v", has, err)
	}
}

func TestSessionSaveCanceled(t *testing.T) {
	s, store, _ := newTestSessionService(t)
	sess, _ := s.Open(context.Background(), "")
	sess.Put("k", "v")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Save(ctx, sess, httptest.NewRecorder()); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if store.writes != 0 {
		t.Fatalf("expected no writes, got %d", store.writes)
	}
}
