// Package store persists bucket contents as flat files in a single data
// directory, one file per bucket index. The store is stateless between
// calls: it never holds bucket contents outside a Read or Write, residency
// is the cache manager's job.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"spora/internal/codec"
	"spora/internal/logging"
)

var logger = logging.For("store")

// Store reads and writes bucket files under one directory.
type Store struct {
	dir string
}

// New creates the data directory if needed and returns a store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file backing the given bucket index.
func (s *Store) Path(bucket int) string {
	return filepath.Join(s.dir, fmt.Sprintf("bk_%d.dat", bucket))
}

// Read loads a bucket's full contents. It never fails: an absent file is
// an empty bucket, and malformed contents are logged and discarded in
// favor of an empty bucket (the data is self-managed, availability wins).
// dirty=true means the caller should rewrite the file on the next flush,
// which happens when a legacy text-format file was migrated on load.
func (s *Store) Read(bucket int) (b codec.Bucket, dirty bool) {
	data, err := os.ReadFile(s.Path(bucket))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("reading bucket file", "bucket", bucket, "err", err)
		}
		return codec.Bucket{}, false
	}

	b, legacy, err := codec.Decode(data)
	if err != nil {
		logger.Warn("discarding malformed bucket file", "bucket", bucket, "err", err)
		return codec.Bucket{}, false
	}
	if legacy {
		logger.Info("loaded legacy bucket file, will rewrite in binary form", "bucket", bucket)
	}
	return b, legacy
}

// Write encodes the bucket and replaces its file durably: the new contents
// are written and synced to a uniquely named temp file in the same
// directory, then a single rename swaps it over the live file. If the
// platform refuses the atomic replace, Write falls back to remove-then-
// rename; that one write is not crash-atomic, and the fallback is logged
// rather than hidden.
func (s *Store) Write(bucket int, b codec.Bucket) error {
	data, err := codec.Encode(b)
	if err != nil {
		return fmt.Errorf("encoding bucket %d: %w", bucket, err)
	}

	path := s.Path(bucket)
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.New().String()[:8])

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating temp file for bucket %d: %w", bucket, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing bucket %d: %w", bucket, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing bucket %d: %w", bucket, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp file for bucket %d: %w", bucket, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		logger.Warn("atomic replace failed, falling back to remove+rename", "bucket", bucket, "err", err)
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			os.Remove(tmp)
			return fmt.Errorf("removing old bucket %d file: %w", bucket, rmErr)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("replacing bucket %d file: %w", bucket, err)
		}
	}
	return nil
}
