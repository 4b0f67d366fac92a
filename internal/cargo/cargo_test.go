package cargo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stratadb/strata/pkg/types"
)

func entry(id float64) types.Entry {
	return types.Entry{"id": id}
}

func TestPushDrains(t *testing.T) {
	var mu sync.Mutex
	var batches [][]types.Entry

	q := New(func(ctx context.Context, batch []types.Entry) error {
		mu.Lock()
		batches = append(batches, batch)
		mu.Unlock()
		return nil
	})

	if err := <-q.Push(context.Background(), []types.Entry{entry(1)}); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Errorf("unexpected batches: %v", batches)
	}
}

func TestPushesAccumulateIntoOneBatch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var batches [][]types.Entry

	q := New(func(ctx context.Context, batch []types.Entry) error {
		started <- struct{}{}
		<-release
		mu.Lock()
		batches = append(batches, batch)
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	first := q.Push(ctx, []types.Entry{entry(1)})
	<-started // the first drain holds exactly entry 1

	// While the first drain is blocked, further pushes queue up.
	second := q.Push(ctx, []types.Entry{entry(2)})
	third := q.Push(ctx, []types.Entry{entry(3)})
	release <- struct{}{} // first drain (entry 1)
	<-started
	release <- struct{}{} // second drain (entries 2 and 3 as one batch)

	for _, done := range []<-chan error{first, second, third} {
		if err := <-done; err != nil {
			t.Fatalf("drain failed: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if len(batches[0]) != 1 || batches[0][0]["id"] != 1.0 {
		t.Errorf("first batch = %v", batches[0])
	}
	if len(batches[1]) != 2 || batches[1][0]["id"] != 2.0 || batches[1][1]["id"] != 3.0 {
		t.Errorf("second batch = %v, want entries 2 and 3 in push order", batches[1])
	}
}

func TestDrainErrorReachesEveryPushInBatch(t *testing.T) {
	boom := errors.New("boom")
	started := make(chan struct{})
	release := make(chan struct{})

	q := New(func(ctx context.Context, batch []types.Entry) error {
		started <- struct{}{}
		<-release
		if len(batch) > 1 {
			return boom
		}
		return nil
	})

	ctx := context.Background()
	first := q.Push(ctx, []types.Entry{entry(1)})
	<-started
	second := q.Push(ctx, []types.Entry{entry(2)})
	third := q.Push(ctx, []types.Entry{entry(3)})
	release <- struct{}{}
	<-started
	release <- struct{}{}

	if err := <-first; err != nil {
		t.Errorf("first drain should succeed, got %v", err)
	}
	if err := <-second; !errors.Is(err, boom) {
		t.Errorf("second push: got %v, want boom", err)
	}
	if err := <-third; !errors.Is(err, boom) {
		t.Errorf("third push: got %v, want boom", err)
	}
}

func TestConsumerExitsWhenIdle(t *testing.T) {
	q := New(func(ctx context.Context, batch []types.Entry) error {
		return nil
	})

	<-q.Push(context.Background(), []types.Entry{entry(1)})

	// Give the drain goroutine a moment to observe the empty queue, then
	// push again: a fresh consumer must start.
	time.Sleep(10 * time.Millisecond)
	if err := <-q.Push(context.Background(), []types.Entry{entry(2)}); err != nil {
		t.Fatalf("second drain failed: %v", err)
	}
}
