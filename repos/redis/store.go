// Package redis implements repos.ExpiringStore on top of Redis. Expiry is
// delegated to the native per-key TTL; payloads are stored as opaque bytes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/juho05/apcalt/repos"
)

type Store struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Store {
	return &Store{
		client: client,
	}
}

// Connect parses a redis:// URL, connects and verifies the connection.
func Connect(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis store: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis store: %w: %v", repos.ErrUnavailable, err)
	}
	return New(client), nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis store: %w: %v", repos.ErrUnavailable, err)
	}
	return n > 0, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis store: %w: %v", repos.ErrUnavailable, err)
	}
	return data, true, nil
}

func (s *Store) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	err := s.client.Set(ctx, key, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis store: %w: %v", repos.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("redis store: %w: %v", repos.ErrUnavailable, err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires keys on its own.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
