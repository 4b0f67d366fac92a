// Package cargo implements the accumulate-and-drain batching queue the CSV
// engine runs per partition: pushes collect while a drain is in flight, and
// the next drain takes everything queued as a single batch.
package cargo

import (
	"context"
	"sync"

	"github.com/stratadb/strata/pkg/types"
)

// Handler processes one drained batch.
type Handler func(ctx context.Context, batch []types.Entry) error

// Queue serializes batch processing. Pushes are FIFO; each drain consumes
// every push queued at the moment it starts, and every push in a drained
// batch observes that drain's outcome.
type Queue struct {
	handler Handler

	mu      sync.Mutex
	pending []item
	active  bool
}

type item struct {
	ctx     context.Context
	entries []types.Entry
	done    chan error
}

// New creates a queue draining through handler.
func New(handler Handler) *Queue {
	return &Queue{handler: handler}
}

// Push enqueues entries and returns a channel that yields the outcome of
// the drain that consumed them. The consumer goroutine starts on demand
// and exits when the queue empties.
func (q *Queue) Push(ctx context.Context, entries []types.Entry) <-chan error {
	done := make(chan error, 1)

	q.mu.Lock()
	q.pending = append(q.pending, item{ctx: ctx, entries: entries, done: done})
	start := !q.active
	if start {
		q.active = true
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
	return done
}

// drain loops over queued pushes, processing whatever accumulated since
// the previous iteration as one batch.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.active = false
			q.mu.Unlock()
			return
		}
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		var entries []types.Entry
		for _, it := range batch {
			entries = append(entries, it.entries...)
		}

		err := q.handler(batch[0].ctx, entries)
		for _, it := range batch {
			it.done <- err
		}
	}
}
