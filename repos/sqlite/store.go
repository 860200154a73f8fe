package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/juho05/apcalt/repos"
)

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := s.Get(ctx, key)
	return found, err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	var expires sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT data, expires FROM entries WHERE entry_key = ?", key).Scan(&data, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, repoErr("sqlite store: get: %w", err)
	}
	if expires.Valid && expires.Int64 < s.Now().UnixMilli() {
		return nil, false, s.Delete(ctx, key)
	}
	return data, true, nil
}

func (s *Store) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if data == nil {
		data = []byte{}
	}
	entry := repos.NewEntry(data, ttl, s.Now())
	_, err := s.db.ExecContext(ctx, "REPLACE INTO entries (entry_key, data, expires) VALUES (?,?,?)", key, entry.Data, expiresColumn(entry))
	return repoErr("sqlite store: set: %w", err)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE entry_key = ?", key)
	return repoErr("sqlite store: delete: %w", err)
}

// DeleteExpired removes every expired entry and returns how many were removed.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE expires IS NOT NULL AND expires < ?", s.Now().UnixMilli())
	if err != nil {
		return 0, repoErr("sqlite store: delete expired: %w", err)
	}
	return result.RowsAffected()
}
