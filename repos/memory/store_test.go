package memory

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func newClockedStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New()
	s.Now = func() time.Time { return now }
	t.Cleanup(func() { s.Close() })
	return s, &now
}

func TestGetMissing(t *testing.T) {
	s, _ := newClockedStore(t)
	data, found, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found || data != nil {
		t.Fatalf("expected miss, got %q", data)
	}
	has, err := s.Has(context.Background(), "nope")
	if err != nil || has {
		t.Fatalf("expected has=false, got %v (%v)", has, err)
	}
}

func TestSetGetExpire(t *testing.T) {
	s, now := newClockedStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, found, err := s.Get(ctx, "k")
	if err != nil || !found || string(data) != "v" {
		t.Fatalf("expected v, got %q found=%v err=%v", data, found, err)
	}

	*now = now.Add(time.Minute + time.Second)
	_, found, err = s.Get(ctx, "k")
	if err != nil || found {
		t.Fatalf("expected expired miss, found=%v err=%v", found, err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected expired entry to be removed, %d left", s.Len())
	}
}

func TestNoExpiry(t *testing.T) {
	s, now := newClockedStore(t)
	ctx := context.Background()
	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	*now = now.Add(10 * 365 * 24 * time.Hour)
	if has, _ := s.Has(ctx, "k"); !has {
		t.Fatal("entry without ttl expired")
	}
}

func TestSweepBeforeMutation(t *testing.T) {
	s, now := newClockedStore(t)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		if err := s.Set(ctx, k, []byte(k), time.Second); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	*now = now.Add(2 * time.Second)
	if err := s.Set(ctx, "d", []byte("d"), 0); err != nil {
		t.Fatalf("set d: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected sweep to leave 1 entry, got %d", s.Len())
	}
}

func TestReturnedDataIsCopy(t *testing.T) {
	s, _ := newClockedStore(t)
	ctx := context.Background()
	in := []byte("value")
	s.Set(ctx, "k", in, 0)
	in[0] = 'X'
	out, _, _ := s.Get(ctx, "k")
	out[1] = 'Y'
	again, _, _ := s.Get(ctx, "k")
	if !bytes.Equal(again, []byte("value")) {
		t.Fatalf("stored value was mutated: %q", again)
	}
}

func TestDeleteMissing(t *testing.T) {
	s, _ := newClockedStore(t)
	if err := s.Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}
