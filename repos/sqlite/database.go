// Package sqlite implements repos.ExpiringStore on an SQLite database using
// the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	migrate "github.com/rubenv/sql-migrate"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/juho05/log"

	"github.com/juho05/apcalt"
	"github.com/juho05/apcalt/repos"
)

type Store struct {
	db *sql.DB

	// Now is used for all expiry decisions. Defaults to time.Now.
	Now func() time.Time
}

func autoMigrate(db *sql.DB) error {
	migrations := &migrate.HttpFileSystemMigrationSource{
		FileSystem: http.FS(apcalt.SQLiteMigrationsFS),
	}
	log.Trace("Migrating database...")
	n, err := migrate.Exec(db, "sqlite3", migrations, migrate.Up)
	log.Tracef("Applied %d migrations!", n)
	if err != nil {
		return err
	}
	return nil
}

func Connect(connectionString string, migrateDB bool) (*Store, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	_, err = db.Exec("PRAGMA busy_timeout = 3000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if migrateDB {
		err = autoMigrate(db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	return &Store{
		db:  db,
		Now: time.Now,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func repoErr(format string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code() == sqlite3.SQLITE_BUSY || sqliteErr.Code() == sqlite3.SQLITE_LOCKED) {
		err = fmt.Errorf("%w: %w", repos.ErrUnavailable, err)
	}
	return fmt.Errorf(format, err)
}

func expiresColumn(e repos.Entry) sql.NullInt64 {
	if e.Expires.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: e.Expires.UnixMilli(), Valid: true}
}

var _ repos.ExpiringStore = (*Store)(nil)
