// Package stream provides an unbounded multi-producer, single-consumer channel.
package stream

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by Push after Close.
	ErrClosed = errors.New("stream closed")
	// ErrAbandoned is returned by Push once the consumer side has gone away.
	ErrAbandoned = errors.New("stream abandoned")
)

// Unbounded buffers every pushed value until the consumer reads it from Out.
// Push never blocks.
type Unbounded[T any] struct {
	mu        sync.Mutex
	buf       []T
	closed    bool
	abandoned bool
	wake      chan struct{}
	out       chan T
}

// NewUnbounded starts the pump goroutine. When ctx ends, Out is closed without
// delivering the remaining buffer.
func NewUnbounded[T any](ctx context.Context) *Unbounded[T] {
	u := &Unbounded[T]{
		wake: make(chan struct{}, 1),
		out:  make(chan T),
	}
	go u.pump(ctx)
	return u
}

// Push appends v to the buffer.
func (u *Unbounded[T]) Push(v T) error {
	u.mu.Lock()
	switch {
	case u.abandoned:
		u.mu.Unlock()
		return ErrAbandoned
	case u.closed:
		u.mu.Unlock()
		return ErrClosed
	}
	u.buf = append(u.buf, v)
	u.mu.Unlock()
	u.signal()
	return nil
}

// Close marks the end of input. Out closes after the buffer is drained.
func (u *Unbounded[T]) Close() {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()
	u.signal()
}

// Out returns the consumer channel.
func (u *Unbounded[T]) Out() <-chan T {
	return u.out
}

// Len returns the number of values buffered but not yet delivered.
func (u *Unbounded[T]) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.buf)
}

func (u *Unbounded[T]) signal() {
	select {
	case u.wake <- struct{}{}:
	default:
	}
}

func (u *Unbounded[T]) pump(ctx context.Context) {
	defer close(u.out)
	for {
		u.mu.Lock()
		if len(u.buf) == 0 {
			closed := u.closed
			u.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-u.wake:
				continue
			case <-ctx.Done():
				u.abandon()
				return
			}
		}
		next := u.buf[0]
		u.mu.Unlock()

		select {
		case u.out <- next:
			u.mu.Lock()
			var zero T
			u.buf[0] = zero
			u.buf = u.buf[1:]
			u.mu.Unlock()
		case <-ctx.Done():
			u.abandon()
			return
		}
	}
}

func (u *Unbounded[T]) abandon() {
	u.mu.Lock()
	u.abandoned = true
	u.buf = nil
	u.mu.Unlock()
}
