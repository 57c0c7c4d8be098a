package cache_test

import (
	"os"
	"testing"

	"spora/internal/cache"
	"spora/internal/store"
)

func newManager(t *testing.T, capacity int) (*cache.Manager, *store.Store) {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return cache.New(s, capacity), s
}

func fileExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	t.Fatal(err)
	return false
}

func TestAcquireLoadsAndCaches(t *testing.T) {
	m, _ := newManager(t, 2)

	b, err := m.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	b["k"] = []int32{1}
	m.MarkDirty(0)

	// A second acquire must hand back the same resident contents.
	again, err := m.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(again["k"]) != 1 {
		t.Fatal("second acquire did not return the resident bucket")
	}
	if m.Resident() != 1 {
		t.Fatalf("resident = %d, want 1", m.Resident())
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	m, _ := newManager(t, 2)

	for bucket := 0; bucket < 5; bucket++ {
		if _, err := m.Acquire(bucket); err != nil {
			t.Fatal(err)
		}
		if m.Resident() > 2 {
			t.Fatalf("resident = %d after acquiring bucket %d, cap is 2", m.Resident(), bucket)
		}
	}
}

func TestEvictionFlushesDirtyVictim(t *testing.T) {
	m, s := newManager(t, 1)

	b, err := m.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	b["k"] = []int32{5}
	m.MarkDirty(0)

	if fileExists(t, s.Path(0)) {
		t.Fatal("bucket flushed before eviction")
	}

	// Acquiring a different bucket at cap 1 evicts bucket 0.
	if _, err := m.Acquire(1); err != nil {
		t.Fatal(err)
	}
	if !fileExists(t, s.Path(0)) {
		t.Fatal("dirty bucket not flushed on eviction")
	}

	// Reloading the evicted bucket sees the flushed state.
	b0, err := m.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(b0["k"]) != 1 || b0["k"][0] != 5 {
		t.Fatalf("state lost across eviction: %v", b0["k"])
	}
}

func TestEvictionSkipsFlushForCleanVictim(t *testing.T) {
	m, s := newManager(t, 1)

	if _, err := m.Acquire(0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Acquire(1); err != nil {
		t.Fatal(err)
	}
	if fileExists(t, s.Path(0)) {
		t.Fatal("clean bucket written on eviction")
	}
}

func TestAcquireRefreshesRecency(t *testing.T) {
	m, s := newManager(t, 2)

	b0, err := m.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	b0["k"] = []int32{1}
	m.MarkDirty(0)

	b1, err := m.Acquire(1)
	if err != nil {
		t.Fatal(err)
	}
	b1["k"] = []int32{2}
	m.MarkDirty(1)

	// Touch 0 again so 1 becomes the LRU victim.
	if _, err := m.Acquire(0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Acquire(2); err != nil {
		t.Fatal(err)
	}

	if !fileExists(t, s.Path(1)) {
		t.Fatal("expected bucket 1 to be the evicted victim")
	}
	if fileExists(t, s.Path(0)) {
		t.Fatal("bucket 0 was evicted despite being recently used")
	}
}

func TestFlushAllWritesDirtyOnly(t *testing.T) {
	m, s := newManager(t, 4)

	dirty, err := m.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	dirty["k"] = []int32{1}
	m.MarkDirty(0)

	if _, err := m.Acquire(1); err != nil { // clean, never mutated
		t.Fatal(err)
	}

	if err := m.FlushAll(); err != nil {
		t.Fatal(err)
	}
	if !fileExists(t, s.Path(0)) {
		t.Fatal("dirty bucket not flushed")
	}
	if fileExists(t, s.Path(1)) {
		t.Fatal("clean bucket rewritten by FlushAll")
	}
	if m.Resident() != 2 {
		t.Fatalf("FlushAll changed residency: %d", m.Resident())
	}
}

func TestFlushAllIsIdempotent(t *testing.T) {
	m, s := newManager(t, 2)

	b, err := m.Acquire(0)
	if err != nil {
		t.Fatal(err)
	}
	b["k"] = []int32{9}
	m.MarkDirty(0)

	if err := m.FlushAll(); err != nil {
		t.Fatal(err)
	}
	info1, err := os.Stat(s.Path(0))
	if err != nil {
		t.Fatal(err)
	}

	// Second flush with no new mutations must not rewrite the file.
	if err := m.FlushAll(); err != nil {
		t.Fatal(err)
	}
	info2, err := os.Stat(s.Path(0))
	if err != nil {
		t.Fatal(err)
	}
	if !info1.ModTime().Equal(info2.ModTime()) {
		t.Error("clean bucket rewritten by second FlushAll")
	}
}
