package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/juho05/apcalt/repos"
)

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := s.Get(ctx, key)
	return found, err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	var expires *int64
	err := s.pool.QueryRow(ctx, "SELECT data, expires FROM entries WHERE entry_key = $1", key).Scan(&data, &expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, repoErr("postgres store: get: %w", err)
	}
	if expires != nil && *expires < s.Now().UnixMilli() {
		return nil, false, s.Delete(ctx, key)
	}
	return data, true, nil
}

func (s *Store) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if data == nil {
		data = []byte{}
	}
	entry := repos.NewEntry(data, ttl, s.Now())
	var expires *int64
	if !entry.Expires.IsZero() {
		ms := entry.Expires.UnixMilli()
		expires = &ms
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO entries (entry_key, data, expires) VALUES ($1, $2, $3)
		ON CONFLICT (entry_key) DO UPDATE SET data = EXCLUDED.data, expires = EXCLUDED.expires`, key, entry.Data, expires)
	return repoErr("postgres store: set: %w", err)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM entries WHERE entry_key = $1", key)
	return repoErr("postgres store: delete: %w", err)
}

func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM entries WHERE expires IS NOT NULL AND expires < $1", s.Now().UnixMilli())
	if err != nil {
		return 0, repoErr("postgres store: delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
