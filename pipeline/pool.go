package pipeline

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultWorkers returns the pool size spec.md §9 mandates when the caller
// does not override it: half the available CPUs, capped at 15.
func DefaultWorkers() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	if n > 15 {
		n = 15
	}
	return n
}

// ErrPipelineClosed is returned by Submit once Shutdown has been called.
var ErrPipelineClosed = errors.New("pipeline: closed")

// Future is the handle Submit returns; Wait blocks until the item has
// passed through every stage (or failed at one).
type Future[T any] struct {
	done chan struct{}
	item T
	err  error
}

// Wait blocks until the work item completes or ctx is done, whichever
// comes first.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.item, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Pipeline runs work items through an ordered sequence of Stages, gated by
// a weighted semaphore sized to the pool's worker count rather than a
// fixed goroutine pool (spec.md §9 "Pipeline as tagged stages"). Each
// Submit spawns a goroutine that blocks until the semaphore admits it,
// processes the item through every stage, then releases — the same
// "acquire, do work, release" shape claircore's
// indexer/controller.LayerIndexer.Index uses around its per-layer
// semaphore. A failure at any stage stops that item (its Future carries
// the error) without affecting others in flight, matching the
// "cooperative cancellation per item" behaviour the orchestrator needs to
// keep a single bad file from aborting an entire backup session.
type Pipeline[T any] struct {
	stages []*Stage[T]
	sem    *semaphore.Weighted

	wg sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Pipeline admitting at most workers items at a time
// (DefaultWorkers() when workers <= 0), running each through stages in
// order.
func New[T any](workers int, stages ...*Stage[T]) *Pipeline[T] {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &Pipeline[T]{
		stages: stages,
		sem:    semaphore.NewWeighted(int64(workers)),
		closed: make(chan struct{}),
	}
}

// Submit admits item for processing once a worker slot is free and returns
// a Future for its result. It returns ErrPipelineClosed once Shutdown has
// been called, and ctx.Err() if ctx is done before a slot becomes
// available.
func (p *Pipeline[T]) Submit(ctx context.Context, item T) (*Future[T], error) {
	select {
	case <-p.closed:
		return nil, ErrPipelineClosed
	default:
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	select {
	case <-p.closed:
		p.sem.Release(1)
		return nil, ErrPipelineClosed
	default:
	}

	fut := &Future[T]{done: make(chan struct{})}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)

		stageInFlight.Inc()
		defer stageInFlight.Dec()

		result, err := item, error(nil)
		for _, s := range p.stages {
			if cerr := ctx.Err(); cerr != nil {
				err = cerr
				break
			}
			result, err = s.run(ctx, result)
			if err != nil {
				break
			}
		}
		fut.item = result
		fut.err = err
		close(fut.done)
	}()
	return fut, nil
}

// Shutdown performs the two-phase graceful shutdown spec.md §9 calls for:
// phase one stops accepting new submissions (Submit starts returning
// ErrPipelineClosed immediately); phase two waits for every already-
// admitted item to finish before returning, so no submitted work is
// silently dropped.
func (p *Pipeline[T]) Shutdown() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	p.wg.Wait()
}

// RunAll submits every item in items, waits for all of them, and returns
// their results in the same order. A per-item error does not stop the
// others; check each result's error individually.
func RunAll[T any](ctx context.Context, p *Pipeline[T], items []T) ([]T, []error) {
	futs := make([]*Future[T], len(items))
	for i, item := range items {
		f, err := p.Submit(ctx, item)
		if err != nil {
			futs[i] = &Future[T]{done: closedChan(), err: err}
			continue
		}
		futs[i] = f
	}
	results := make([]T, len(items))
	errs := make([]error, len(items))
	for i, f := range futs {
		results[i], errs[i] = f.Wait(ctx)
	}
	return results, errs
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
