// Package cache bounds how many buckets are resident in memory at once.
// The manager owns the only in-memory copy of each resident bucket and
// evicts in least-recently-used order, flushing dirty contents through the
// store before dropping them.
package cache

import (
	"container/list"
	"fmt"

	"spora/internal/codec"
	"spora/internal/logging"
	"spora/internal/store"
)

var logger = logging.For("cache")

type entry struct {
	bucket   int
	contents codec.Bucket
	dirty    bool
}

// Manager keeps up to cap buckets resident. It is not safe for concurrent
// use; the engine drives it from a single command loop.
type Manager struct {
	store    *store.Store
	cap      int
	resident map[int]*list.Element
	recency  *list.List // front = most recently used
}

// New creates a manager over the given store. cap must be at least 1.
func New(s *store.Store, cap int) *Manager {
	if cap < 1 {
		cap = 1
	}
	return &Manager{
		store:    s,
		cap:      cap,
		resident: make(map[int]*list.Element),
		recency:  list.New(),
	}
}

// Acquire returns the resident contents of a bucket, loading it from the
// store if needed and marking it most recently used. When the cache is at
// capacity the least recently used bucket is flushed (if dirty) and
// evicted first; a flush failure aborts the acquire.
func (m *Manager) Acquire(bucket int) (codec.Bucket, error) {
	if el, ok := m.resident[bucket]; ok {
		m.recency.MoveToFront(el)
		return el.Value.(*entry).contents, nil
	}

	if len(m.resident) >= m.cap {
		if err := m.evictLRU(); err != nil {
			return nil, err
		}
	}

	contents, dirty := m.store.Read(bucket)
	el := m.recency.PushFront(&entry{bucket: bucket, contents: contents, dirty: dirty})
	m.resident[bucket] = el
	return contents, nil
}

// MarkDirty records that a resident bucket has unflushed mutations.
// Calling it for a non-resident bucket is a bug in the caller.
func (m *Manager) MarkDirty(bucket int) {
	if el, ok := m.resident[bucket]; ok {
		el.Value.(*entry).dirty = true
	}
}

// FlushAll writes every dirty resident bucket back to the store, keeping
// all buckets resident. The first failure is returned; clean buckets are
// never rewritten.
func (m *Manager) FlushAll() error {
	for el := m.recency.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if !e.dirty {
			continue
		}
		if err := m.store.Write(e.bucket, e.contents); err != nil {
			return fmt.Errorf("flushing bucket %d: %w", e.bucket, err)
		}
		e.dirty = false
	}
	return nil
}

// Resident returns the number of buckets currently held in memory.
func (m *Manager) Resident() int {
	return len(m.resident)
}

func (m *Manager) evictLRU() error {
	el := m.recency.Back()
	if el == nil {
		return nil
	}
	e := el.Value.(*entry)
	if e.dirty {
		if err := m.store.Write(e.bucket, e.contents); err != nil {
			return fmt.Errorf("flushing bucket %d before eviction: %w", e.bucket, err)
		}
	}
	logger.Debug("evicting bucket", "bucket", e.bucket, "dirty", e.dirty)
	m.recency.Remove(el)
	delete(m.resident, e.bucket)
	return nil
}
