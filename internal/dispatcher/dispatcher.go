// Package dispatcher runs queued work with a bounded number of concurrent executions.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Source yields work items until it is closed.
type Source[T any] interface {
	Dequeue(ctx context.Context) (T, error)
}

// ExecFunc runs one work item. The slot is held on entry and released after the
// function returns.
type ExecFunc[T any] func(ctx context.Context, item T, slot *Slot)

// Gauges receives every change of the held and parked slot counts.
type Gauges interface {
	AddActive(delta int)
	AddParked(delta int)
}

type nopGauges struct{}

func (nopGauges) AddActive(int) {}
func (nopGauges) AddParked(int) {}

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	gauges Gauges
}

// WithGauges reports slot changes to g as they happen.
func WithGauges(g Gauges) Option {
	return func(o *options) {
		if g != nil {
			o.gauges = g
		}
	}
}

// Dispatcher admits work from a Source while fewer than limit executions hold a slot.
type Dispatcher[T any] struct {
	limit    int64
	sem      *semaphore.Weighted
	logger   *zap.Logger
	gauges   Gauges
	active   atomic.Int64
	inFlight atomic.Int64
	parked   atomic.Int64
	waiting  atomic.Int64
}

// New creates a Dispatcher with the given concurrency limit.
func New[T any](limit int, logger *zap.Logger, opts ...Option) (*Dispatcher[T], error) {
	if limit <= 0 {
		return nil, fmt.Errorf("dispatcher limit must be > 0, got %d", limit)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{gauges: nopGauges{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Dispatcher[T]{
		limit:  int64(limit),
		sem:    semaphore.NewWeighted(int64(limit)),
		logger: logger,
		gauges: o.gauges,
	}, nil
}

// Run dequeues and launches executions until the source fails or ctx ends, then
// waits for every launched execution to return. The returned error is the one
// that stopped admission.
//
// An item is dequeued before its slot is acquired, so no permit is held while
// the source is empty. An item in hand when ctx ends is dropped.
func (d *Dispatcher[T]) Run(ctx context.Context, src Source[T], exec ExecFunc[T]) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		item, err := src.Dequeue(ctx)
		if err != nil {
			return fmt.Errorf("dequeue: %w", err)
		}

		d.waiting.Add(1)
		if err := d.acquireSlot(ctx); err != nil {
			d.waiting.Add(-1)
			return fmt.Errorf("acquire slot: %w", err)
		}
		d.inFlight.Add(1)
		d.waiting.Add(-1)

		slot := &Slot{d: d, held: true}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer d.inFlight.Add(-1)
			defer slot.release()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("execution panicked", zap.Any("panic", r))
				}
			}()
			exec(ctx, item, slot)
		}()
	}
}

// Limit returns the concurrency limit.
func (d *Dispatcher[T]) Limit() int {
	return int(d.limit)
}

// Active returns the number of held slots.
func (d *Dispatcher[T]) Active() int {
	return int(d.active.Load())
}

// InFlight returns the number of launched executions that have not returned,
// including parked ones.
func (d *Dispatcher[T]) InFlight() int {
	return int(d.inFlight.Load())
}

// Parked returns the number of executions that gave their slot back and have
// not taken one again.
func (d *Dispatcher[T]) Parked() int {
	return int(d.parked.Load())
}

// Waiting returns the number of dequeued items waiting for a slot.
func (d *Dispatcher[T]) Waiting() int {
	return int(d.waiting.Load())
}

type slotOwner interface {
	releaseSlot()
	acquireSlot(ctx context.Context) error
	markParked(delta int64)
}

func (d *Dispatcher[T]) releaseSlot() {
	d.active.Add(-1)
	d.gauges.AddActive(-1)
	d.sem.Release(1)
}

func (d *Dispatcher[T]) acquireSlot(ctx context.Context) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	d.active.Add(1)
	d.gauges.AddActive(1)
	return nil
}

func (d *Dispatcher[T]) markParked(delta int64) {
	d.parked.Add(delta)
	d.gauges.AddParked(int(delta))
}

// ErrNotParked is returned by Resume when the slot is already held.
var ErrNotParked = errors.New("slot not parked")

// Slot is the concurrency permit of one execution. It is owned by the execution
// goroutine and is not safe for concurrent use.
type Slot struct {
	d      slotOwner
	held   bool
	parked bool
}

// Park gives the permit back so other work can run while the execution waits.
func (s *Slot) Park() {
	if s == nil || !s.held {
		return
	}
	s.held = false
	s.parked = true
	s.d.markParked(1)
	s.d.releaseSlot()
}

// Resume takes a permit again after Park.
func (s *Slot) Resume(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if !s.parked {
		return ErrNotParked
	}
	if err := s.d.acquireSlot(ctx); err != nil {
		return fmt.Errorf("resume slot: %w", err)
	}
	s.parked = false
	s.d.markParked(-1)
	s.held = true
	return nil
}

// Held reports whether the slot currently holds a permit.
func (s *Slot) Held() bool {
	return s != nil && s.held
}

func (s *Slot) release() {
	if s.parked {
		s.parked = false
		s.d.markParked(-1)
	}
	if !s.held {
		return
	}
	s.held = false
	s.d.releaseSlot()
}
