package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/juho05/apcalt/repos/memory"
)

type outline struct {
	Subject string   `json:"subject"`
	Units   []string `json:"units"`
}

func newTestCache(t *testing.T) (*Cache, *memory.Store, *time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	store.Now = func() time.Time { return now }
	t.Cleanup(func() { store.Close() })
	return NewCache(store, "cache:"), store, &now
}

func TestCachedHitAndExpiry(t *testing.T) {
	cache, _, now := newTestCache(t)
	calls := 0
	fn := Cached(cache, "outline", time.Minute, func(s string) string { return s }, func(ctx context.Context, subject string) (outline, error) {
		calls++
		return outline{Subject: subject, Units: []string{"u1", "u2"}}, nil
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		v, err := fn(ctx, "alice", "bio")
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if v.Subject != "bio" || len(v.Units) != 2 {
			t.Fatalf("unexpected value %+v", v)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 producer call, got %d", calls)
	}

	*now = now.Add(time.Minute + time.Second)
	if _, err := fn(ctx, "alice", "bio"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected producer call after expiry, got %d calls", calls)
	}
}

func TestCachedOwnerIsolation(t *testing.T) {
	cache, _, _ := newTestCache(t)
	fn := Cached(cache, "whoami", time.Hour, func(struct{}) string { return "" }, func(ctx context.Context, _ struct{}) (string, error) {
		return "", nil
	})
	owners := map[string]string{}
	produce := func(owner string) CachedFunc[struct{}, string] {
		return Cached(cache, "whoami", time.Hour, func(struct{}) string { return "" }, func(ctx context.Context, _ struct{}) (string, error) {
			return "data of " + owner, nil
		})
	}
	for _, owner := range []string{"alice", "bob"} {
		v, err := produce(owner)(context.Background(), owner, struct{}{})
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		owners[owner] = v
	}
	for owner, want := range owners {
		v, err := fn(context.Background(), owner, struct{}{})
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if v != want {
			t.Fatalf("owner %s: expected %q, got %q", owner, want, v)
		}
	}
}

func TestCachedErrorsNotCached(t *testing.T) {
	cache, store, _ := newTestCache(t)
	calls := 0
	fn := Cached(cache, "flaky", time.Hour, func(int) string { return "" }, func(ctx context.Context, _ int) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("boom")
		}
		return calls, nil
	})

	if _, err := fn(context.Background(), "alice", 0); err == nil {
		t.Fatal("expected error")
	}
	if store.Len() != 0 {
		t.Fatalf("expected nothing to be stored, got %d entries", store.Len())
	}
	v, err := fn(context.Background(), "alice", 0)
	if err != nil || v != 2 {
		t.Fatalf("expected 2, got %d (%v)", v, err)
	}
}

func TestCachedReturnsCopies(t *testing.T) {
	cache, _, _ := newTestCache(t)
	fn := Cached(cache, "outline", time.Hour, func(s string) string { return s }, func(ctx context.Context, subject string) (outline, error) {
		return outline{Subject: subject, Units: []string{"u1"}}, nil
	})

	v, _ := fn(context.Background(), "alice", "bio")
	v.Units[0] = "changed"
	v, _ = fn(context.Background(), "alice", "bio")
	if v.Units[0] != "u1" {
		t.Fatalf("cached value was modified: %+v", v)
	}
}

func TestCachedMissingOwner(t *testing.T) {
	cache, _, _ := newTestCache(t)
	fn := Cached(cache, "op", time.Hour, func(int) string { return "" }, func(ctx context.Context, _ int) (int, error) {
		t.Fatal("producer must not be called")
		return 0, nil
	})
	if _, err := fn(context.Background(), "", 0); !errors.Is(err, ErrMissingOwner) {
		t.Fatalf("expected ErrMissingOwner, got %v", err)
	}
}

func TestCachedCorruptEntry(t *testing.T) {
	cache, store, _ := newTestCache(t)
	key := cache.key("op", "alice", "x")
	if !strings.HasPrefix(key, "cache:op:") {
		t.Fatalf("unexpected key %q", key)
	}
	if err := store.Set(context.Background(), key, []byte("{not json"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	calls := 0
	fn := Cached(cache, "op", time.Hour, func(s string) string { return s }, func(ctx context.Context, s string) (string, error) {
		calls++
		return "fresh", nil
	})
	v, err := fn(context.Background(), "alice", "x")
	if err != nil || v != "fresh" || calls != 1 {
		t.Fatalf("expected fresh value, got %q calls=%d err=%v", v, calls, err)
	}
}

func TestCacheKeyScopesOwner(t *testing.T) {
	cache, _, _ := newTestCache(t)
	if cache.key("op", "alice", "x") == cache.key("op", "bob", "x") {
		t.Fatal("expected different keys for different owners")
	}
	if cache.key("op", "ab", "c") == cache.key("op", "a", "bc") {
		t.Fatal("expected owner and argument to be separated")
	}
}
