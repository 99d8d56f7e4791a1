package spider

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/webspider/internal/metrics"
)

const (
	// DefaultConcurrentRequests is the default number of concurrent executions.
	DefaultConcurrentRequests = 20
	// DefaultTaskQueueSizeBytes is the default byte budget of the task queue.
	DefaultTaskQueueSizeBytes = 10_000_000
)

// Spider holds what every crawl shares: the transport, the logger and the metrics.
type Spider struct {
	transport Transport
	logger    *zap.Logger
	metrics   *metrics.Collector
}

// Option configures a Spider.
type Option func(*Spider) error

// WithLogger sets the diagnostics logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Spider) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// WithRegisterer registers crawl metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Spider) error {
		c, err := metrics.New(reg)
		if err != nil {
			return fmt.Errorf("crawl metrics: %w", err)
		}
		s.metrics = c
		return nil
	}
}

// New creates a Spider over transport.
func New(transport Transport, opts ...Option) (*Spider, error) {
	if transport == nil {
		return nil, errors.New("spider transport is required")
	}
	s := &Spider{
		transport: transport,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Logger returns the spider logger.
func (s *Spider) Logger() *zap.Logger {
	return s.logger
}

// Metrics returns the collector registered by WithRegisterer, or nil.
func (s *Spider) Metrics() *metrics.Collector {
	return s.metrics
}

// WebBuilder collects the parameters of a crawl.
type WebBuilder[I, C any] struct {
	spider      *Spider
	start       *Request
	handler     Handler[I, C]
	meta        C
	concurrency int
	budget      int
}

// NewWeb starts building a crawl on s.
func NewWeb[I, C any](s *Spider) *WebBuilder[I, C] {
	return &WebBuilder[I, C]{
		spider:      s,
		concurrency: DefaultConcurrentRequests,
		budget:      DefaultTaskQueueSizeBytes,
	}
}

// Start sets the seed request.
func (b *WebBuilder[I, C]) Start(req *Request) *WebBuilder[I, C] {
	b.start = req
	return b
}

// Handler sets the handler of the seed request.
func (b *WebBuilder[I, C]) Handler(h Handler[I, C]) *WebBuilder[I, C] {
	b.handler = h
	return b
}

// Meta sets the context value of the seed callback. It defaults to the zero value.
func (b *WebBuilder[I, C]) Meta(meta C) *WebBuilder[I, C] {
	b.meta = meta
	return b
}

// ConcurrentRequests sets the maximum number of concurrent executions.
func (b *WebBuilder[I, C]) ConcurrentRequests(n int) *WebBuilder[I, C] {
	b.concurrency = n
	return b
}

// TaskQueueSizeBytes sets the memory budget of the task queue.
func (b *WebBuilder[I, C]) TaskQueueSizeBytes(n int) *WebBuilder[I, C] {
	b.budget = n
	return b
}

// Build validates the parameters.
func (b *WebBuilder[I, C]) Build() (*Web[I, C], error) {
	switch {
	case b.spider == nil:
		return nil, errors.New("web builder: spider is required")
	case b.start == nil || b.start.URL == nil:
		return nil, errors.New("web builder: start request is required")
	case b.handler == nil:
		return nil, errors.New("web builder: handler is required")
	case b.concurrency <= 0:
		return nil, fmt.Errorf("web builder: concurrent requests must be > 0, got %d", b.concurrency)
	case b.budget <= 0:
		return nil, fmt.Errorf("web builder: task queue size must be > 0, got %d", b.budget)
	}
	return &Web[I, C]{
		spider:      b.spider,
		seed:        NewCallback(b.handler, b.start, b.meta),
		concurrency: b.concurrency,
		capacity:    QueueCapacity[I, C](b.budget),
	}, nil
}

// Web is an immutable crawl definition. Each Crawl call starts an independent run.
type Web[I, C any] struct {
	spider      *Spider
	seed        *Callback[I, C]
	concurrency int
	capacity    int
}

// ConcurrentRequests returns the concurrency limit.
func (w *Web[I, C]) ConcurrentRequests() int {
	return w.concurrency
}

// QueueCapacity returns the task queue capacity in entries.
func (w *Web[I, C]) QueueCapacity() int {
	return w.capacity
}

// EntrySize estimates the memory held by one queued callback.
func EntrySize[I, C any]() int {
	var (
		p pendingCallback[I, C]
		c Callback[I, C]
		r Request
	)
	return int(unsafe.Sizeof(p) + unsafe.Sizeof(c) + unsafe.Sizeof(r))
}

// QueueCapacity converts a byte budget into a task queue capacity of at least one.
func QueueCapacity[I, C any](budget int) int {
	return max(budget/EntrySize[I, C](), 1)
}
