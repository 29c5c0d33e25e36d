// Package lazy provides deferred values: descriptions of a computation that
// run only when materialized, keep their first completed result, and fan out
// within the bounds of a Scheduler.
package lazy

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Scheduler bounds the parallelism of fan-out evaluation and counts the
// tasks it has run.
type Scheduler struct {
	workers   int
	evaluated atomic.Int64
}

// NewScheduler creates a scheduler running at most workers tasks of one
// fan-out concurrently. Zero or negative means GOMAXPROCS.
func NewScheduler(workers int) *Scheduler {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Scheduler{workers: workers}
}

// Workers returns the fan-out limit.
func (s *Scheduler) Workers() int { return s.workers }

// Evaluated returns the number of tasks evaluated so far.
func (s *Scheduler) Evaluated() int64 { return s.evaluated.Load() }

// Value is a deferred computation producing a T. It is safe for concurrent
// use; the first completed result, including any error, is shared by every
// caller. Cancellation and deadline errors are not kept, so the next caller
// evaluates again under its own context.
type Value[T any] struct {
	s    *Scheduler
	name string
	fn   func(ctx context.Context) (T, error)

	// lock is a one-slot semaphore so waiting callers can give up on their
	// own context.
	lock chan struct{}
	done bool
	val  T
	err  error
}

// Describe returns an unevaluated Value for fn. Nothing runs until
// Materialize.
func Describe[T any](s *Scheduler, name string, fn func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{s: s, name: name, fn: fn, lock: make(chan struct{}, 1)}
}

// Ready returns a Value that already holds v. It is not counted as a task.
func Ready[T any](s *Scheduler, name string, v T) *Value[T] {
	return &Value[T]{s: s, name: name, val: v, done: true, lock: make(chan struct{}, 1)}
}

// Name returns the task name.
func (v *Value[T]) Name() string { return v.name }

// Materialize evaluates v, or returns the result of an earlier evaluation.
func (v *Value[T]) Materialize(ctx context.Context) (T, error) {
	var zero T
	select {
	case v.lock <- struct{}{}:
	case <-ctx.Done():
		return zero, fmt.Errorf("%s: %w", v.name, ctx.Err())
	}
	defer func() { <-v.lock }()

	if v.done {
		return v.val, v.err
	}
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%s: %w", v.name, err)
	}
	v.s.evaluated.Add(1)
	val, err := v.fn(ctx)
	if err != nil {
		err = fmt.Errorf("%s: %w", v.name, err)
		if interrupted(err) {
			return zero, err
		}
	}
	v.val, v.err, v.done = val, err, true
	return v.val, v.err
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Then describes fn applied to the result of v.
func Then[T, U any](v *Value[T], name string, fn func(ctx context.Context, t T) (U, error)) *Value[U] {
	return Describe(v.s, name, func(ctx context.Context) (U, error) {
		t, err := v.Materialize(ctx)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(ctx, t)
	})
}

// All describes the evaluation of every part, in parallel up to the
// scheduler's worker limit. Results keep the order of parts. The first
// failure cancels the remaining parts.
func All[T any](s *Scheduler, name string, parts []*Value[T]) *Value[[]T] {
	return Describe(s, name, func(ctx context.Context) ([]T, error) {
		out := make([]T, len(parts))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for i, p := range parts {
			g.Go(func() error {
				v, err := p.Materialize(gctx)
				if err != nil {
					return err
				}
				out[i] = v
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	})
}
