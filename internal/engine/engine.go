// Package engine exposes the store's public operations: insert, delete,
// and ordered lookup of int32 values under a text key. Each operation
// routes the key to its bucket by a pinned hash and applies the mutation
// to the cached in-memory copy; flushing is left to eviction and Close.
package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"

	"spora/internal/cache"
	"spora/internal/codec"
	"spora/internal/logging"
	"spora/internal/store"
)

var logger = logging.For("engine")

// ErrKeyTooLong is returned for keys the record format cannot hold.
var ErrKeyTooLong = errors.New("key exceeds max length")

// HashName names the key-to-bucket hash recorded in the manifest. The
// hash is pinned to xxhash64 so a key maps to the same bucket across
// runs, platforms, and rebuilds; changing it would orphan existing data.
const HashName = "xxhash64"

// Options configure an engine instance.
type Options struct {
	DataDir      string
	Buckets      int // number of bucket files, fixed for the directory's lifetime
	CacheBuckets int // residency cap, 1..Buckets
}

// Engine is a single-instance façade over the bucket cache. It keeps no
// per-request state of its own and is not safe for concurrent use.
type Engine struct {
	cache   *cache.Manager
	buckets int
}

// Open creates or reopens the store under opts.DataDir. Opening a
// directory created with a different bucket count or hash fails with
// store.ErrManifestMismatch.
func Open(opts Options) (*Engine, error) {
	if opts.Buckets < 1 {
		return nil, fmt.Errorf("bucket count must be at least 1, got %d", opts.Buckets)
	}
	if opts.CacheBuckets < 1 || opts.CacheBuckets > opts.Buckets {
		return nil, fmt.Errorf("cache capacity %d out of range [1, %d]", opts.CacheBuckets, opts.Buckets)
	}

	s, err := store.New(opts.DataDir)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureManifest(store.Manifest{
		FormatVersion: store.FormatVersion,
		Buckets:       opts.Buckets,
		Hash:          HashName,
	}); err != nil {
		return nil, err
	}

	logger.Info("engine open", "data_dir", opts.DataDir, "buckets", opts.Buckets, "cache", opts.CacheBuckets)
	return &Engine{
		cache:   cache.New(s, opts.CacheBuckets),
		buckets: opts.Buckets,
	}, nil
}

// Close flushes every dirty resident bucket. A flush failure here means
// mutations may be lost and must not be swallowed.
func (e *Engine) Close() error {
	return e.cache.FlushAll()
}

func (e *Engine) bucketID(key string) int {
	return int(xxhash.Sum64String(key) % uint64(e.buckets))
}

// Insert adds value to the key's set, creating the key if absent.
// Inserting a value already present is a silent no-op; the bucket is
// marked dirty only when something actually changed.
func (e *Engine) Insert(key string, value int32) error {
	if len(key) > codec.MaxKeyLen {
		return ErrKeyTooLong
	}
	b := e.bucketID(key)
	bucket, err := e.cache.Acquire(b)
	if err != nil {
		return err
	}

	vals := bucket[key]
	i, found := slices.BinarySearch(vals, value)
	if found {
		return nil
	}
	bucket[key] = slices.Insert(vals, i, value)
	e.cache.MarkDirty(b)
	return nil
}

// Delete removes value from the key's set. Absent keys and absent values
// are no-ops. Removing the last value keeps the key with an empty set;
// Find treats that the same as an absent key.
func (e *Engine) Delete(key string, value int32) error {
	if len(key) > codec.MaxKeyLen {
		return ErrKeyTooLong
	}
	b := e.bucketID(key)
	bucket, err := e.cache.Acquire(b)
	if err != nil {
		return err
	}

	vals, ok := bucket[key]
	if !ok {
		return nil
	}
	i, found := slices.BinarySearch(vals, value)
	if !found {
		return nil
	}
	bucket[key] = slices.Delete(vals, i, i+1)
	e.cache.MarkDirty(b)
	return nil
}

// Find returns a copy of the key's ascending value set, or nil when the
// key is absent or its set is empty. Find never mutates the bucket.
func (e *Engine) Find(key string) ([]int32, error) {
	if len(key) > codec.MaxKeyLen {
		return nil, ErrKeyTooLong
	}
	bucket, err := e.cache.Acquire(e.bucketID(key))
	if err != nil {
		return nil, err
	}

	vals := bucket[key]
	if len(vals) == 0 {
		return nil, nil
	}
	return slices.Clone(vals), nil
}
