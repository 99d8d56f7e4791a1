package spider

import (
	"context"
	"errors"
)

// ErrInvalidCallback is reported when a callback lacks a request or a handler.
var ErrInvalidCallback = errors.New("callback needs a request and a handler")

// Callback binds a request to the handler that interprets its response and the
// context value handed to that handler. It is immutable once built.
type Callback[I, C any] struct {
	request *Request
	handler Handler[I, C]
	meta    C
}

// NewCallback builds a callback. The request is copied.
func NewCallback[I, C any](handler Handler[I, C], req *Request, meta C) *Callback[I, C] {
	return &Callback[I, C]{
		request: req.Clone(),
		handler: handler,
		meta:    meta,
	}
}

// Target returns a copy of the request.
func (c *Callback[I, C]) Target() *Request {
	return c.request.Clone()
}

// Meta returns the context value.
func (c *Callback[I, C]) Meta() C {
	return c.meta
}

// HandlerName returns the display name of the handler.
func (c *Callback[I, C]) HandlerName() string {
	if c.handler == nil {
		return "<nil handler>"
	}
	return c.handler.Name()
}

func (c *Callback[I, C]) String() string {
	target := "<nil>"
	if c.request != nil && c.request.URL != nil {
		target = c.request.URL.String()
	}
	return c.HandlerName() + " -> " + target
}

func (c *Callback[I, C]) valid() bool {
	return c != nil && c.handler != nil && c.request != nil && c.request.URL != nil
}

// fetch executes the request, filling in the response URL when the transport leaves it empty.
func (c *Callback[I, C]) fetch(ctx context.Context, t Transport) (*Response, error) {
	resp, err := t.Execute(ctx, c.request)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("transport returned no response")
	}
	if resp.Request == nil {
		resp.Request = c.request
	}
	if resp.URL == nil {
		resp.URL = c.request.URL
	}
	return resp, nil
}
