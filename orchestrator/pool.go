// Package orchestrator coordinates the note-generation pipeline: topic
// extraction, per-topic note generation, image analysis, format
// conversion, cross-linking, and the user-instruction state machine.
package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrPoolSaturated is returned when the worker pool's wait queue is full
// and new work is rejected rather than queued unboundedly.
var ErrPoolSaturated = errors.New("worker pool saturated")

// Pool bounds how many LLM-bound tasks run at once across all generation
// and instruction runs. A task runs on the caller's goroutine once a slot
// is acquired, so nested submission cannot deadlock the pool.
//
// Example:
//
//	pool := orchestrator.NewPool(cfg.MaxConcurrent)
//	err := pool.Do(ctx, func() error { return generateNote(ctx, topic) })
type Pool struct {
	sem        chan struct{}
	waiting    int64
	maxWaiting int64
}

// NewPool creates a pool with the given number of concurrent slots.
// Up to 8 waiters per slot may queue; beyond that Do rejects with
// ErrPoolSaturated.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return NewPoolWithQueueDepth(size, size*8)
}

// NewPoolWithQueueDepth creates a pool with an explicit admission queue
// depth (Config.QueueDepth) instead of the 8-per-slot default.
func NewPoolWithQueueDepth(size, depth int) *Pool {
	if size < 1 {
		size = 1
	}
	if depth < 1 {
		depth = size * 8
	}
	return &Pool{
		sem:        make(chan struct{}, size),
		maxWaiting: int64(depth),
	}
}

// Do acquires a slot, runs fn, and releases the slot. It returns
// ErrPoolSaturated without running fn if too many tasks are already
// waiting, or the context error if ctx is done before a slot frees up.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if atomic.AddInt64(&p.waiting, 1) > p.maxWaiting {
		atomic.AddInt64(&p.waiting, -1)
		return ErrPoolSaturated
	}

	select {
	case p.sem <- struct{}{}:
		atomic.AddInt64(&p.waiting, -1)
	case <-ctx.Done():
		atomic.AddInt64(&p.waiting, -1)
		return ctx.Err()
	}
	defer func() { <-p.sem }()

	return fn()
}

// QueueDepth returns the number of tasks waiting for a slot.
func (p *Pool) QueueDepth() int64 {
	return atomic.LoadInt64(&p.waiting)
}

// Saturated reports whether a new run should be rejected outright.
func (p *Pool) Saturated() bool {
	return atomic.LoadInt64(&p.waiting) >= p.maxWaiting
}

// Size returns the number of concurrent slots.
func (p *Pool) Size() int {
	return cap(p.sem)
}
