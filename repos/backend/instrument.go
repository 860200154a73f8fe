package backend

import (
	"context"
	"time"

	"github.com/juho05/apcalt/metrics"
	"github.com/juho05/apcalt/repos"
)

type instrumentedStore struct {
	store repos.ExpiringStore
	name  string
}

// Instrument wraps store so that every call is counted in
// metrics.StoreOperations under the given backend name.
func Instrument(store repos.ExpiringStore, name string) repos.ExpiringStore {
	return &instrumentedStore{
		store: store,
		name:  name,
	}
}

func (s *instrumentedStore) observe(operation, result string, err error) {
	if err != nil {
		result = "error"
	}
	metrics.StoreOperations.WithLabelValues(s.name, operation, result).Inc()
}

func (s *instrumentedStore) Has(ctx context.Context, key string) (bool, error) {
	found, err := s.store.Has(ctx, key)
	s.observe("has", hitOrMiss(found), err)
	return found, err
}

func (s *instrumentedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, found, err := s.store.Get(ctx, key)
	s.observe("get", hitOrMiss(found), err)
	return data, found, err
}

func (s *instrumentedStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	err := s.store.Set(ctx, key, data, ttl)
	s.observe("set", "ok", err)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, key string) error {
	err := s.store.Delete(ctx, key)
	s.observe("delete", "ok", err)
	return err
}

func (s *instrumentedStore) DeleteExpired(ctx context.Context) (int64, error) {
	sweeper, ok := s.store.(repos.Sweeper)
	if !ok {
		return 0, nil
	}
	n, err := sweeper.DeleteExpired(ctx)
	s.observe("sweep", "ok", err)
	return n, err
}

func (s *instrumentedStore) Close() error {
	return s.store.Close()
}

func hitOrMiss(found bool) string {
	if found {
		return "hit"
	}
	return "miss"
}
