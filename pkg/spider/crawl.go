package spider

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/webspider/internal/dispatcher"
	"github.com/JakeFAU/webspider/internal/metrics"
	"github.com/JakeFAU/webspider/internal/queue/memory"
	"github.com/JakeFAU/webspider/internal/stream"
)

// Run is one crawl in progress.
type Run[I any] struct {
	id    string
	items *stream.Unbounded[I]
	done  chan struct{}
	phase atomic.Int32
	err   error

	executed          atomic.Int64
	transportFailures atomic.Int64
	itemSinkFailures  atomic.Int64
	queueSinkFailures atomic.Int64
	itemsRouted       atomic.Int64
	followed          atomic.Int64

	queued   func() int
	inFlight func() int
	parked   func() int
}

// ID returns the run identifier carried on every log line of the run.
func (r *Run[I]) ID() string {
	return r.id
}

// Items returns the item stream. It closes when the run completes or is canceled.
func (r *Run[I]) Items() <-chan I {
	return r.items.Out()
}

// Done is closed after every execution returned.
func (r *Run[I]) Done() <-chan struct{} {
	return r.done
}

// Err returns the context error that stopped a canceled run, after Done is closed.
func (r *Run[I]) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// State returns the current lifecycle phase.
func (r *Run[I]) State() State {
	s := State(r.phase.Load())
	if s != StateRunning {
		return s
	}
	if r.queued() == 0 && r.parked() == 0 && r.inFlight() > 0 {
		return StateDraining
	}
	return StateRunning
}

// Stats returns a snapshot of the run counters.
func (r *Run[I]) Stats() Stats {
	return Stats{
		Executed:          r.executed.Load(),
		TransportFailures: r.transportFailures.Load(),
		ItemSinkFailures:  r.itemSinkFailures.Load(),
		QueueSinkFailures: r.queueSinkFailures.Load(),
		Items:             r.itemsRouted.Load(),
		Followed:          r.followed.Load(),
		Queued:            r.queued(),
		InFlight:          r.inFlight(),
		Parked:            r.parked(),
	}
}

// crawl is the shared state of one run. Every pendingCallback points at it.
type crawl[I, C any] struct {
	run        *Run[I]
	transport  Transport
	logger     *zap.Logger
	metrics    *metrics.Collector
	queue      *memory.Queue[*pendingCallback[I, C]]
	items      *stream.Unbounded[I]
	dispatcher *dispatcher.Dispatcher[*pendingCallback[I, C]]

	// outstanding counts callbacks that are queued or executing. The queue is
	// closed when it drops to zero.
	outstanding atomic.Int64
}

var errEmptyOutcome = errors.New("outcome is neither an item nor a follow-up")

// pendingCallback is a callback bound to the run it was queued on.
type pendingCallback[I, C any] struct {
	cb    *Callback[I, C]
	crawl *crawl[I, C]
}

// Crawl seeds the task queue and starts dispatching. Cancelling ctx stops
// admission, cancels in-flight executions and closes the item stream.
func (w *Web[I, C]) Crawl(ctx context.Context) (*Run[I], error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("new run id: %w", err)
	}
	logger := w.spider.logger.With(zap.String("run_id", id.String()))

	d, err := dispatcher.New[*pendingCallback[I, C]](w.concurrency, logger,
		dispatcher.WithGauges(w.spider.metrics))
	if err != nil {
		return nil, fmt.Errorf("new dispatcher: %w", err)
	}
	q := memory.NewQueue[*pendingCallback[I, C]](w.capacity)
	items := stream.NewUnbounded[I](ctx)

	r := &Run[I]{
		id:       id.String(),
		items:    items,
		done:     make(chan struct{}),
		queued:   func() int { return q.Len() + d.Waiting() },
		inFlight: d.InFlight,
		parked:   d.Parked,
	}
	r.phase.Store(int32(StateSeeded))

	c := &crawl[I, C]{
		run:        r,
		transport:  w.spider.transport,
		logger:     logger,
		metrics:    w.spider.metrics,
		queue:      q,
		items:      items,
		dispatcher: d,
	}

	c.outstanding.Add(1)
	if ok, err := q.TryEnqueue(&pendingCallback[I, C]{cb: w.seed, crawl: c}); err != nil || !ok {
		items.Close()
		if err == nil {
			err = errors.New("task queue full")
		}
		return nil, fmt.Errorf("seed task queue: %w", err)
	}

	logger.Info("crawl started",
		zap.Stringer("seed", w.seed),
		zap.Int("concurrent_requests", w.concurrency),
		zap.Int("task_queue_capacity", q.Cap()),
	)
	go c.manage(ctx)
	return r, nil
}

func (c *crawl[I, C]) manage(ctx context.Context) {
	c.run.phase.Store(int32(StateRunning))
	start := time.Now()

	err := c.dispatcher.Run(ctx, c.queue, c.execute)
	c.items.Close()

	stats := c.run.Stats()
	fields := []zap.Field{
		zap.Int64("executed", stats.Executed),
		zap.Int64("failed", stats.Failed()),
		zap.Int64("items", stats.Items),
		zap.Duration("elapsed", time.Since(start)),
	}
	switch {
	case errors.Is(err, memory.ErrClosed):
		c.run.phase.Store(int32(StateComplete))
		c.logger.Info("crawl complete", fields...)
	case ctx.Err() != nil:
		c.run.err = ctx.Err()
		c.run.phase.Store(int32(StateCanceled))
		c.logger.Info("crawl canceled", append(fields, zap.Error(ctx.Err()))...)
	default:
		c.run.err = err
		c.run.phase.Store(int32(StateCanceled))
		c.logger.Error("crawl stopped", append(fields, zap.Error(err))...)
	}
	close(c.run.done)
}

// finish retires one outstanding callback.
func (c *crawl[I, C]) finish() {
	if c.outstanding.Add(-1) == 0 {
		c.queue.Close()
	}
}

func (c *crawl[I, C]) execute(ctx context.Context, p *pendingCallback[I, C], slot *dispatcher.Slot) {
	defer c.finish()
	start := time.Now()
	c.metrics.CallbackStarted()

	result := "ok"
	if err := p.run(ctx, slot); err != nil {
		var cbErr *CallbackError
		if errors.As(err, &cbErr) {
			result = cbErr.Kind.String()
			switch cbErr.Kind {
			case KindTransport:
				c.run.transportFailures.Add(1)
			case KindItemSink:
				c.run.itemSinkFailures.Add(1)
			case KindQueueSink:
				c.run.queueSinkFailures.Add(1)
			}
		}
		c.logger.Error("error occurred while executing the callback", zap.Error(err))
	}
	c.run.executed.Add(1)
	c.metrics.CallbackFinished(result, time.Since(start))
}

// run fetches the target, feeds the response to the handler and routes every
// outcome in production order. The first routing failure ends the execution.
func (p *pendingCallback[I, C]) run(ctx context.Context, slot *dispatcher.Slot) error {
	c := p.crawl
	logger := c.logger.With(zap.Stringer("callback", p.cb))
	logger.Debug("running callback")
	defer logger.Debug("finishing callback")

	execCtx, cancel := context.WithCancel(ContextWithLogger(ctx, logger))
	defer cancel()

	resp, err := p.cb.fetch(execCtx, c.transport)
	if err != nil {
		return &CallbackError{Kind: KindTransport, Callback: p.cb.String(), Err: err}
	}
	c.metrics.ObserveFetch(resp.URL.String(), resp.StatusCode, len(resp.Body))

	outcomes := p.cb.handler.Handle(execCtx, resp, p.cb.meta)
	if outcomes == nil {
		return nil
	}
	for o := range outcomes {
		if next, ok := o.Callback(); ok {
			if err := c.enqueue(execCtx, next, slot); err != nil {
				return &CallbackError{Kind: KindQueueSink, Callback: p.cb.String(), Err: err}
			}
			continue
		}
		item, ok := o.Item()
		if !ok {
			return &CallbackError{Kind: KindItemSink, Callback: p.cb.String(), Err: errEmptyOutcome}
		}
		if err := c.items.Push(item); err != nil {
			return &CallbackError{Kind: KindItemSink, Callback: p.cb.String(), Err: err}
		}
		c.run.itemsRouted.Add(1)
		c.metrics.ItemRouted()
	}
	return nil
}

// enqueue submits a follow-up. When the queue is full the execution parks its
// slot while it waits for space and takes a slot again before returning.
func (c *crawl[I, C]) enqueue(ctx context.Context, cb *Callback[I, C], slot *dispatcher.Slot) error {
	if !cb.valid() {
		return ErrInvalidCallback
	}
	next := &pendingCallback[I, C]{cb: cb, crawl: c}

	c.outstanding.Add(1)
	ok, err := c.queue.TryEnqueue(next)
	if err != nil {
		c.finish()
		return fmt.Errorf("task queue: %w", err)
	}
	if !ok {
		slot.Park()
		err = c.queue.Enqueue(ctx, next)
		resumeErr := slot.Resume(ctx)
		if err != nil {
			c.finish()
			return fmt.Errorf("task queue: %w", err)
		}
		c.run.followed.Add(1)
		c.metrics.FollowQueued()
		// The follow-up is queued even if this execution cannot continue.
		return resumeErr
	}
	c.run.followed.Add(1)
	c.metrics.FollowQueued()
	return nil
}
