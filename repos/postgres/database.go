// Package postgres implements repos.ExpiringStore on a PostgreSQL database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/juho05/log"

	"github.com/juho05/apcalt"
	"github.com/juho05/apcalt/repos"
)

type Store struct {
	pool *pgxpool.Pool

	// Now is used for all expiry decisions. Defaults to time.Now.
	Now func() time.Time
}

func ConstructDSN(dbName, host string, port int, user, password string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", user, password, host, port, dbName)
}

func autoMigrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	defer db.Close()
	migrations := &migrate.HttpFileSystemMigrationSource{
		FileSystem: http.FS(apcalt.PostgresMigrationsFS),
	}
	log.Trace("Migrating database...")
	n, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
	log.Tracef("Applied %d migrations!", n)
	if err != nil {
		return err
	}
	return nil
}

func Connect(ctx context.Context, dsn string, migrateDB bool) (*Store, error) {
	log.Tracef("Connecting to Postgres database...")
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect DB: %w", err)
	}
	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, repoErr("connect DB: %w", err)
	}
	if migrateDB {
		err = autoMigrate(dsn)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return &Store{
		pool: pool,
		Now:  time.Now,
	}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func repoErr(format string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgerrcode.IsConnectionException(pgErr.Code) || pgerrcode.IsInsufficientResources(pgErr.Code) {
			err = fmt.Errorf("%w: %w", repos.ErrUnavailable, err)
		}
	} else if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", repos.ErrUnavailable, err)
	}
	return fmt.Errorf(format, err)
}

var _ repos.ExpiringStore = (*Store)(nil)
