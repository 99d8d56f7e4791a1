package spider

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// Handler interprets one response. Handle is called once per execution and
// returns a channel of outcomes that the handler closes when it is done. A nil
// channel is treated as no outcomes. Handlers are shared by concurrent
// executions and must be safe for concurrent use.
type Handler[I, C any] interface {
	Name() string
	Handle(ctx context.Context, resp *Response, meta C) <-chan Outcome[I, C]
}

// ProduceFunc is a handler body written top to bottom, emitting outcomes as it
// discovers them.
type ProduceFunc[I, C any] func(ctx context.Context, resp *Response, meta C, out *Emitter[I, C]) error

type funcHandler[I, C any] struct {
	name string
	fn   ProduceFunc[I, C]
}

// Func builds a named handler from a produce function.
func Func[I, C any](name string, fn ProduceFunc[I, C]) Handler[I, C] {
	return &funcHandler[I, C]{name: name, fn: fn}
}

// Wrap builds a handler named after the function symbol, e.g. "links.Parse".
func Wrap[I, C any](fn ProduceFunc[I, C]) Handler[I, C] {
	return Func(funcName(fn), fn)
}

func (h *funcHandler[I, C]) Name() string {
	return h.name
}

func (h *funcHandler[I, C]) Handle(ctx context.Context, resp *Response, meta C) <-chan Outcome[I, C] {
	return Produce(ctx, func(out *Emitter[I, C]) error {
		return h.fn(ctx, resp, meta, out)
	})
}

func funcName(fn any) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "handler"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// ErrStopped is returned by Emitter methods once the execution stopped
// consuming outcomes.
var ErrStopped = errors.New("outcome consumer stopped")

// Produce runs body in its own goroutine and returns the channel it emits on.
// The channel is closed when body returns. Errors other than ErrStopped and
// panics are logged with the logger from ctx.
func Produce[I, C any](ctx context.Context, body func(out *Emitter[I, C]) error) <-chan Outcome[I, C] {
	ch := make(chan Outcome[I, C])
	go func() {
		defer close(ch)
		logger := LoggerFrom(ctx)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panicked", zap.Any("panic", r))
			}
		}()
		if err := body(&Emitter[I, C]{ctx: ctx, ch: ch}); err != nil && !errors.Is(err, ErrStopped) {
			logger.Warn("handler returned an error", zap.Error(err))
		}
	}()
	return ch
}

// Emitter hands outcomes to the execution routine. Each call blocks until the
// outcome is taken.
type Emitter[I, C any] struct {
	ctx context.Context
	ch  chan<- Outcome[I, C]
}

// Emit sends one outcome.
func (e *Emitter[I, C]) Emit(o Outcome[I, C]) error {
	select {
	case e.ch <- o:
		return nil
	case <-e.ctx.Done():
		return fmt.Errorf("%w: %w", ErrStopped, e.ctx.Err())
	}
}

// Item emits a finished item.
func (e *Emitter[I, C]) Item(item I) error {
	return e.Emit(NewItem[I, C](item))
}

// Follow emits a follow-up callback.
func (e *Emitter[I, C]) Follow(cb *Callback[I, C]) error {
	if cb == nil {
		return ErrInvalidCallback
	}
	return e.Emit(NewFollow(cb))
}

type loggerKey struct{}

// ContextWithLogger attaches logger to ctx.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom returns the logger attached to ctx, or a no-op logger.
func LoggerFrom(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}
