package repos

import (
	"context"
	"time"
)

// ExpiringStore is a key/value store in which every entry may carry an
// absolute expiry. Expired entries behave exactly like absent ones.
type ExpiringStore interface {
	Has(ctx context.Context, key string) (bool, error)
	// Get reports found=false for absent, expired and unreadable entries.
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	// Set stores data under key. A ttl <= 0 stores the entry without expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Entry pairs a payload with its optional expiry. A zero Expires never expires.
type Entry struct {
	Data    []byte
	Expires time.Time
}

func NewEntry(data []byte, ttl time.Duration, now time.Time) Entry {
	e := Entry{Data: data}
	if ttl > 0 {
		e.Expires = now.Add(ttl)
	}
	return e
}

func (e Entry) Expired(now time.Time) bool {
	return !e.Expires.IsZero() && e.Expires.Before(now)
}

// Sweeper is implemented by stores that can purge expired entries in bulk.
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}
