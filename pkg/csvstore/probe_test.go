package csvstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stratadb/strata/pkg/partition"
	"github.com/stratadb/strata/pkg/storage"
)

// recordingAdapter counts read operations per path to assert that first
// and last probe with line reads instead of whole-partition reads.
type recordingAdapter struct {
	storage.Adapter

	mu    sync.Mutex
	reads map[string]int
	heads map[string]int
	tails map[string]int
}

func newRecordingAdapter(inner storage.Adapter) *recordingAdapter {
	return &recordingAdapter{
		Adapter: inner,
		reads:   make(map[string]int),
		heads:   make(map[string]int),
		tails:   make(map[string]int),
	}
}

func (r *recordingAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	r.mu.Lock()
	r.reads[path]++
	r.mu.Unlock()
	return r.Adapter.Read(ctx, path)
}

func (r *recordingAdapter) Head(ctx context.Context, path string, n int) ([]byte, error) {
	r.mu.Lock()
	r.heads[path] += n
	r.mu.Unlock()
	return r.Adapter.Head(ctx, path, n)
}

func (r *recordingAdapter) Tail(ctx context.Context, path string, n int) ([]byte, error) {
	r.mu.Lock()
	r.tails[path] += n
	r.mu.Unlock()
	return r.Adapter.Tail(ctx, path, n)
}

func TestFirstLastProbing(t *testing.T) {
	local, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}
	ctx := context.Background()

	seed := New(local, partition.NewYearMonth(), WithTemplate(seedTemplate()))
	err = seed.Put(ctx,
		seedEntry(t, "2000-01-01"), seedEntry(t, "2000-01-02"),
		seedEntry(t, "2000-02-01"), seedEntry(t, "2000-02-02"),
	)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rec := newRecordingAdapter(local)
	s := New(rec, partition.NewYearMonth())

	firstKey, err := s.FirstKey(ctx)
	if err != nil {
		t.Fatalf("FirstKey failed: %v", err)
	}
	fk, ok := firstKey.(time.Time)
	if !ok || !fk.Equal(day(t, "2000-01-01")) {
		t.Errorf("FirstKey = %v, want 2000-01-01", firstKey)
	}

	lastKey, err := s.LastKey(ctx)
	if err != nil {
		t.Fatalf("LastKey failed: %v", err)
	}
	lk, ok := lastKey.(time.Time)
	if !ok || !lk.Equal(day(t, "2000-02-02")) {
		t.Errorf("LastKey = %v, want 2000-02-02", lastKey)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.reads["2000-01.csv"] != 0 || rec.reads["2000-02.csv"] != 0 {
		t.Errorf("probes must not read whole partitions: %v", rec.reads)
	}
	if rec.heads["2000-01.csv"] > 2 {
		t.Errorf("first probe read %d lines from 2000-01.csv, want at most 2", rec.heads["2000-01.csv"])
	}
	if rec.heads["2000-02.csv"]+rec.tails["2000-02.csv"] > 2 {
		t.Errorf("last probe read %d lines from 2000-02.csv, want at most 2",
			rec.heads["2000-02.csv"]+rec.tails["2000-02.csv"])
	}
}
