package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/wbrown/janus-replay/replay"
)

// Pool bounds the number of aggregation queries running at once. A query
// holds one slot from before it reads the snapshot until its result is
// assembled. The slot covers the whole query, including the auxiliary
// tables it collects concurrently, so up to four goroutines may run per
// slot.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	active atomic.Int64
}

// NewPool creates a pool with size slots
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots
func (p *Pool) Size() int { return p.size }

// InFlight returns the number of slots in use
func (p *Pool) InFlight() int { return int(p.active.Load()) }

// Acquire waits for a free slot. ctx only bounds the wait; once a slot is
// held the query runs to completion. The returned func frees the slot.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: waiting for a worker: %v", replay.ErrQueryExecution, err)
	}
	p.active.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			p.active.Add(-1)
			p.sem.Release(1)
		}
	}, nil
}
