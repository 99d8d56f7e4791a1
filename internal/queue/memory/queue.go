// Package memory provides the bounded in-memory task queue used by crawl runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained, and by
// Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO queue with context-aware operations.
//
// The buffer channel is never closed; Close signals through done so that a late
// producer gets ErrClosed instead of a panic.
type Queue[T any] struct {
	ch      chan T
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity. A capacity below
// one is raised to one.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a value into the queue, blocking while it is full, or returns if
// the context ends.
func (q *Queue[T]) Enqueue(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- v:
		return nil
	}
}

// TryEnqueue pushes a value without blocking. It reports false when the queue is
// full.
func (q *Queue[T]) TryEnqueue(v T) (bool, error) {
	select {
	case <-q.done:
		return false, ErrClosed
	default:
	}
	select {
	case q.ch <- v:
		return true, nil
	default:
		return false, nil
	}
}

// Dequeue pops the next value, respecting context cancellation. Values queued
// before Close are still delivered.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case v := <-q.ch:
		return v, nil
	case <-q.done:
		select {
		case v := <-q.ch:
			return v, nil
		default:
			return zero, ErrClosed
		}
	}
}

// Close stops the queue. It is safe to call more than once.
func (q *Queue[T]) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.done)
	q.closed = true
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}
