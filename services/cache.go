package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/juho05/log"

	"github.com/juho05/apcalt/metrics"
	"github.com/juho05/apcalt/repos"
)

// Cache memoizes expensive per-user computations in an ExpiringStore.
type Cache struct {
	store  repos.ExpiringStore
	prefix string
}

func NewCache(store repos.ExpiringStore, keyPrefix string) *Cache {
	return &Cache{
		store:  store,
		prefix: keyPrefix,
	}
}

// CachedFunc is a memoized function. owner scopes the cached value to one
// user and must not be empty.
type CachedFunc[A, R any] func(ctx context.Context, owner string, arg A) (R, error)

// Cached wraps fn so that successful results are stored for ttl under a key
// derived from op, the owner and key(arg). Errors are never cached. Every
// call returns a freshly decoded value, so callers may modify it.
func Cached[A, R any](c *Cache, op string, ttl time.Duration, key func(A) string, fn func(ctx context.Context, arg A) (R, error)) CachedFunc[A, R] {
	return func(ctx context.Context, owner string, arg A) (R, error) {
		var zero R
		if owner == "" {
			return zero, fmt.Errorf("cached %s: %w", op, ErrMissingOwner)
		}
		storeKey := c.key(op, owner, key(arg))

		data, found, err := c.store.Get(ctx, storeKey)
		if err != nil {
			log.Warnf("Cache lookup for %s failed: %s", op, err)
		} else if found {
			var value R
			err = json.Unmarshal(data, &value)
			if err == nil {
				metrics.CacheRequests.WithLabelValues(op, "hit").Inc()
				return value, nil
			}
			log.Tracef("Discarding undecodable cache entry for %s: %s", op, err)
			if err = c.store.Delete(ctx, storeKey); err != nil {
				log.Warnf("Failed to delete cache entry for %s: %s", op, err)
			}
		}

		value, err := fn(ctx, arg)
		if err != nil {
			metrics.CacheRequests.WithLabelValues(op, "error").Inc()
			return zero, err
		}
		metrics.CacheRequests.WithLabelValues(op, "miss").Inc()

		data, err = json.Marshal(value)
		if err != nil {
			log.Warnf("Failed to encode cache entry for %s: %s", op, err)
			return value, nil
		}
		err = c.store.Set(ctx, storeKey, data, ttl)
		if err != nil {
			log.Warnf("Failed to store cache entry for %s: %s", op, err)
			return value, nil
		}
		// hand out a decoded copy so the caller never aliases what was stored
		var result R
		if err = json.Unmarshal(data, &result); err != nil {
			return value, nil
		}
		return result, nil
	}
}

func (c *Cache) key(op, owner, argKey string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(owner))
	h.Write([]byte{0})
	h.Write([]byte(argKey))
	return c.prefix + op + ":" + hex.EncodeToString(h.Sum(nil))
}
