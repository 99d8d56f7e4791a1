package spider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed callback execution.
type ErrorKind int

const (
	// KindTransport means the request could not be executed.
	KindTransport ErrorKind = iota + 1
	// KindItemSink means an item could not be delivered to the item stream.
	KindItemSink
	// KindQueueSink means a follow-up could not be submitted to the task queue.
	KindQueueSink
)

// Sentinels matched by CallbackError.Is.
var (
	ErrTransport = errors.New("transport failure")
	ErrItemSink  = errors.New("item sink failure")
	ErrQueueSink = errors.New("queue sink failure")
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindItemSink:
		return "item_sink"
	case KindQueueSink:
		return "queue_sink"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindItemSink:
		return ErrItemSink
	case KindQueueSink:
		return ErrQueueSink
	default:
		return nil
	}
}

// CallbackError reports why one execution stopped. It is only surfaced through
// diagnostics.
type CallbackError struct {
	Kind     ErrorKind
	Callback string
	Err      error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Callback, e.Kind.sentinel(), e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error kind.
func (e *CallbackError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}
