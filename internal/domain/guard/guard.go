// Package guard keeps asynchronous results from landing out of order.
//
// A Guard owns an epoch counter. Every dispatch captures the counter value
// at the time it starts; when the producer finishes, its result is applied
// only if the counter has not moved since. Newer dispatches and explicit
// invalidation both move the counter, so a superseded result is dropped
// no matter when it arrives.
//
// Superseding a dispatch also cancels its producer's context. Producers
// that honour the cancellation stop early; those that ignore it still run
// to completion and have their result discarded by the epoch check.
package guard

import (
	"context"
	"sync"
)

// Producer computes a value. The context is cancelled once the dispatch is superseded.
type Producer[T any] func(ctx context.Context) (T, error)

// Guard serialises "latest dispatch wins" delivery for one consumer.
type Guard[T any] struct {
	apply func(T, error)

	mu     sync.Mutex
	epoch  uint64
	busy   bool
	cancel context.CancelFunc
	stale  uint64

	running sync.WaitGroup
}

// New returns a Guard delivering current results to apply.
// apply runs with the guard locked and must not call back into the guard.
func New[T any](apply func(T, error)) *Guard[T] {
	if apply == nil {
		apply = func(T, error) {}
	}
	return &Guard[T]{apply: apply}
}

// Start dispatches producer unless a dispatch is already outstanding, in which
// case the call is dropped and Start reports false.
func (g *Guard[T]) Start(ctx context.Context, producer Producer[T]) bool {
	g.mu.Lock()
	if g.busy {
		g.mu.Unlock()
		return false
	}
	token, runCtx := g.dispatchLocked(ctx)
	g.mu.Unlock()

	g.run(token, runCtx, producer)
	return true
}

// Restart supersedes any outstanding dispatch and starts producer.
func (g *Guard[T]) Restart(ctx context.Context, producer Producer[T]) bool {
	g.mu.Lock()
	g.invalidateLocked()
	token, runCtx := g.dispatchLocked(ctx)
	g.mu.Unlock()

	g.run(token, runCtx, producer)
	return true
}

// Invalidate moves the epoch without dispatching. An outstanding result will be
// discarded when it arrives and its context is cancelled.
func (g *Guard[T]) Invalidate() {
	g.mu.Lock()
	g.invalidateLocked()
	g.mu.Unlock()
}

// Epoch returns the current counter value.
func (g *Guard[T]) Epoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

// Busy reports whether a current dispatch is outstanding.
func (g *Guard[T]) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy
}

// Stale returns how many completed results were discarded.
func (g *Guard[T]) Stale() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stale
}

// Wait blocks until every producer goroutine started by this guard has returned,
// including superseded ones.
func (g *Guard[T]) Wait() {
	g.running.Wait()
}

func (g *Guard[T]) dispatchLocked(parent context.Context) (uint64, context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	g.epoch++
	g.busy = true
	runCtx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	return g.epoch, runCtx
}

func (g *Guard[T]) invalidateLocked() {
	g.epoch++
	g.busy = false
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

func (g *Guard[T]) run(token uint64, ctx context.Context, producer Producer[T]) {
	g.running.Add(1)
	go func() {
		defer g.running.Done()
		value, err := producer(ctx)
		g.complete(token, value, err)
	}()
}

func (g *Guard[T]) complete(token uint64, value T, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if token != g.epoch {
		g.stale++
		return
	}
	g.busy = false
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.apply(value, err)
}
