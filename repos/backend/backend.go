// Package backend selects and opens the repos.ExpiringStore implementation
// named by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/juho05/log"

	"github.com/juho05/apcalt/repos"
	"github.com/juho05/apcalt/repos/filesystem"
	"github.com/juho05/apcalt/repos/memory"
	"github.com/juho05/apcalt/repos/postgres"
	"github.com/juho05/apcalt/repos/redis"
	"github.com/juho05/apcalt/repos/sqlite"
)

var ErrUnknownBackend = errors.New("unknown-store-backend")

const (
	TypeNull       = "null"
	TypeMemory     = "memory"
	TypeFilesystem = "filesystem"
	TypeRemote     = "remote"
	TypeRedis      = "redis"
	TypeSQLite     = "sqlite"
	TypePostgres   = "postgres"
)

type Options struct {
	Type string

	FilePath string
	FileMode fs.FileMode

	// RedisClient takes precedence over RedisURL when set.
	RedisClient goredis.UniversalClient
	RedisURL    string

	DBConnection string
	AutoMigrate  bool
}

// Open creates the store named by opts.Type. An unrecognized type yields
// ErrUnknownBackend and must be treated as a fatal configuration error.
func Open(ctx context.Context, opts Options) (repos.ExpiringStore, error) {
	typ := strings.ToLower(strings.TrimSpace(opts.Type))
	if typ == "" {
		typ = TypeNull
	}

	var store repos.ExpiringStore
	var err error
	switch typ {
	case TypeNull, TypeMemory:
		if typ == TypeNull {
			log.Warn("The store backend is set to \"null\": sessions and cached responses are kept in memory and lost on restart.")
		}
		store = memory.New()
	case TypeFilesystem:
		store, err = filesystem.New(opts.FilePath, opts.FileMode)
	case TypeRemote, TypeRedis:
		if opts.RedisClient != nil {
			store = redis.New(opts.RedisClient)
		} else {
			store, err = redis.Connect(ctx, opts.RedisURL)
		}
	case TypeSQLite:
		store, err = sqlite.Connect(opts.DBConnection, opts.AutoMigrate)
	case TypePostgres:
		store, err = postgres.Connect(ctx, opts.DBConnection, opts.AutoMigrate)
	default:
		return nil, fmt.Errorf("%w: %q (valid: memory, null, filesystem, remote, redis, sqlite, postgres)", ErrUnknownBackend, opts.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", typ, err)
	}
	log.Tracef("Opened %s store", typ)
	return Instrument(store, typ), nil
}
