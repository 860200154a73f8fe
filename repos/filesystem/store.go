// Package filesystem implements repos.ExpiringStore with one file per key.
//
// Each file holds a gob encoded repos.Entry. Entries are written to a temporary
// file first and renamed into place, so readers never observe a partial write.
package filesystem

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juho05/log"

	"github.com/juho05/apcalt/repos"
)

const DefaultFileMode fs.FileMode = 0o600

var fileNameReplacer = strings.NewReplacer("/", "__", "\\", "_-")

type Store struct {
	dir  string
	mode fs.FileMode

	// Now is used for all expiry decisions. Defaults to time.Now.
	Now func() time.Time
}

func New(dir string, mode fs.FileMode) (*Store, error) {
	if dir == "" {
		return nil, errors.New("filesystem store: empty directory")
	}
	if mode == 0 {
		mode = DefaultFileMode
	}
	err := os.MkdirAll(dir, 0o700)
	if err != nil {
		return nil, fmt.Errorf("filesystem store: create directory: %w", err)
	}
	return &Store{
		dir:  dir,
		mode: mode,
		Now:  time.Now,
	}, nil
}

// Path returns the file an entry for key is stored in.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, fileNameReplacer.Replace(key)+".bin")
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, found, err := s.Get(ctx, key)
	return found, err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := s.Path(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("filesystem store: read %s: %w", key, err)
	}

	var entry repos.Entry
	err = gob.NewDecoder(bytes.NewReader(raw)).Decode(&entry)
	if err != nil {
		log.Tracef("Removing unreadable store entry %s: %s", key, err)
		return nil, false, s.remove(path)
	}
	if entry.Expired(s.Now()) {
		return nil, false, s.remove(path)
	}
	return entry.Data, true, nil
}

func (s *Store) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(repos.NewEntry(data, ttl, s.Now()))
	if err != nil {
		return fmt.Errorf("filesystem store: encode %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filesystem store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(buf.Bytes())
	if err == nil {
		err = tmp.Chmod(s.mode)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, s.Path(key))
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filesystem store: write %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.remove(s.Path(key))
}

// DeleteExpired removes expired and unreadable entry files.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("filesystem store: list entries: %w", err)
	}
	now := s.Now()
	var removed int64
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".bin") {
			continue
		}
		path := filepath.Join(s.dir, f.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry repos.Entry
		if gob.NewDecoder(bytes.NewReader(raw)).Decode(&entry) == nil && !entry.Expired(now) {
			continue
		}
		if err := s.remove(path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filesystem store: remove: %w", err)
	}
	return nil
}
