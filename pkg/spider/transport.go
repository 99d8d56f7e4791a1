package spider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Request describes one network operation.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// NewRequest parses rawURL and builds a request. An empty method means GET.
func NewRequest(method, rawURL string, body []byte) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("request url %q is not absolute", rawURL)
	}
	if method == "" {
		method = http.MethodGet
	}
	return &Request{
		Method: strings.ToUpper(method),
		URL:    u,
		Header: make(http.Header),
		Body:   body,
	}, nil
}

// Get builds a GET request for rawURL.
func Get(rawURL string) (*Request, error) {
	return NewRequest(http.MethodGet, rawURL, nil)
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := &Request{
		Method: r.Method,
		Header: r.Header.Clone(),
		Body:   slices.Clone(r.Body),
	}
	if r.URL != nil {
		u := *r.URL
		out.URL = &u
	}
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	return out
}

func (r *Request) String() string {
	if r == nil || r.URL == nil {
		return "<nil request>"
	}
	return r.Method + " " + r.URL.String()
}

// Response is the result of executing a Request.
type Response struct {
	Request    *Request
	URL        *url.URL
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Reader returns a reader over the body.
func (r *Response) Reader() io.Reader {
	return bytes.NewReader(r.Body)
}

// Join resolves ref against the final URL of the response.
func (r *Response) Join(ref string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("parse reference %q: %w", ref, err)
	}
	base := r.URL
	if base == nil && r.Request != nil {
		base = r.Request.URL
	}
	if base == nil {
		return u, nil
	}
	return base.ResolveReference(u), nil
}

// Transport executes requests. A returned error is a transport failure; a
// response with an error status is not.
type Transport interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Execute calls f.
func (f TransportFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
