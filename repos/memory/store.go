// Package memory implements an in-process repos.ExpiringStore. Its contents do
// not survive a restart and are not shared between processes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/juho05/apcalt/repos"
)

type Store struct {
	mu      sync.Mutex
	entries map[string]repos.Entry
	closed  bool

	// Now is used for all expiry decisions. Defaults to time.Now.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		entries: make(map[string]repos.Entry),
		Now:     time.Now,
	}
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := s.Get(ctx, key)
	return found, err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, repos.ErrClosed
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(s.Now()) {
		delete(s.entries, key)
		return nil, false, nil
	}
	data := make([]byte, len(entry.Data))
	copy(data, entry.Data)
	return data, true, nil
}

func (s *Store) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return repos.ErrClosed
	}
	now := s.Now()
	s.sweep(now)
	stored := make([]byte, len(data))
	copy(stored, data)
	s.entries[key] = repos.NewEntry(stored, ttl, now)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return repos.ErrClosed
	}
	s.sweep(s.Now())
	delete(s.entries, key)
	return nil
}

// Len returns the number of entries currently held, including expired ones
// that have not been swept yet.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, repos.ErrClosed
	}
	return int64(s.sweep(s.Now())), nil
}

// sweep must be called with mu held.
func (s *Store) sweep(now time.Time) int {
	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
