// Package workers runs network calls on a bounded goroutine pool and hands
// their outcomes back as single-value channels.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

const DefaultSize = 4

// ErrPoolClosed is delivered for work submitted after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// Result is the outcome of one asynchronous call.
type Result[T any] struct {
	Value T
	Err   error
}

// Pool is a bounded worker pool. Go blocks while all workers are busy.
type Pool struct {
	mu     sync.RWMutex
	closed bool
	p      *pool.Pool
	logger *slog.Logger
}

// New creates a pool running at most size tasks at once.
func New(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		p:      pool.New().WithMaxGoroutines(size),
		logger: logger,
	}
}

// Go schedules fn. It reports false when the pool is already closed.
func (p *Pool) Go(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	p.p.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("worker task panicked", "panic", r)
			}
		}()
		fn()
	})
	return true
}

// Close stops accepting work and waits for running tasks.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.p.Wait()
}

// Submit runs fn on the pool. The returned channel receives exactly one
// Result and is then closed.
func Submit[T any](p *Pool, fn func() (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	ok := p.Go(func() {
		defer close(out)
		var res Result[T]
		func() {
			defer func() {
				if r := recover(); r != nil {
					res.Err = fmt.Errorf("worker task panicked: %v", r)
				}
			}()
			res.Value, res.Err = fn()
		}()
		out <- res
	})
	if !ok {
		out <- Result[T]{Err: ErrPoolClosed}
		close(out)
	}
	return out
}

// Await waits for a result or for ctx to end. The task keeps running when
// ctx ends first.
func Await[T any](ctx context.Context, ch <-chan Result[T]) (T, error) {
	select {
	case res, ok := <-ch:
		if !ok {
			var zero T
			return zero, ErrPoolClosed
		}
		return res.Value, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done converts a result channel into an error-only channel.
func Done[T any](ch <-chan Result[T]) <-chan error {
	out := make(chan error, 1)
	go func() {
		defer close(out)
		res, ok := <-ch
		if !ok {
			out <- ErrPoolClosed
			return
		}
		out <- res.Err
	}()
	return out
}
