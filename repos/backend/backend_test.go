package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"

	"github.com/juho05/apcalt/metrics"
	"github.com/juho05/apcalt/repos"
)

func TestOpenUnknown(t *testing.T) {
	_, err := Open(context.Background(), Options{Type: "mongodb"})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func roundTrip(t *testing.T, store repos.ExpiringStore) {
	t.Helper()
	ctx := context.Background()
	if err := store.Set(ctx, "session:abc", []byte("payload"), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, found, err := store.Get(ctx, "session:abc")
	if err != nil || !found || string(data) != "payload" {
		t.Fatalf("expected payload, got %q found=%v err=%v", data, found, err)
	}
	if err := store.Delete(ctx, "session:abc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if has, err := store.Has(ctx, "session:abc"); err != nil || has {
		t.Fatalf("expected has=false after delete, got %v (%v)", has, err)
	}
}

func TestOpenBackends(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	tests := []struct {
		name string
		opts Options
	}{
		{"null", Options{Type: "null"}},
		{"memory", Options{Type: "Memory"}},
		{"filesystem", Options{Type: "filesystem", FilePath: filepath.Join(t.TempDir(), "fs")}},
		{"remote client", Options{Type: "remote", RedisClient: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}},
		{"redis url", Options{Type: "redis", RedisURL: "redis://" + mr.Addr()}},
		{"sqlite", Options{Type: "sqlite", DBConnection: filepath.Join(t.TempDir(), "db.sqlite"), AutoMigrate: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(context.Background(), tt.opts)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer store.Close()
			roundTrip(t, store)
		})
	}
}

func TestInstrumentCountsWrites(t *testing.T) {
	store, err := Open(context.Background(), Options{Type: "memory"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	sets := metrics.StoreOperations.WithLabelValues("memory", "set", "ok")
	misses := metrics.StoreOperations.WithLabelValues("memory", "get", "miss")
	setsBefore := testutil.ToFloat64(sets)
	missesBefore := testutil.ToFloat64(misses)

	ctx := context.Background()
	store.Set(ctx, "instrumented", []byte("v"), 0)
	store.Get(ctx, "instrumented-missing")

	if got := testutil.ToFloat64(sets) - setsBefore; got != 1 {
		t.Fatalf("expected 1 counted set, got %v", got)
	}
	if got := testutil.ToFloat64(misses) - missesBefore; got != 1 {
		t.Fatalf("expected 1 counted miss, got %v", got)
	}
}

func TestInstrumentSweeper(t *testing.T) {
	store, err := Open(context.Background(), Options{Type: "memory"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	sweeper, ok := store.(repos.Sweeper)
	if !ok {
		t.Fatal("instrumented store does not expose DeleteExpired")
	}
	if _, err := sweeper.DeleteExpired(context.Background()); err != nil {
		t.Fatalf("delete expired: %v", err)
	}
}
