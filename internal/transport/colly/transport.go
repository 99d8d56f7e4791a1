// Package collytransport executes crawl requests with gocolly.
package collytransport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/webspider/pkg/spider"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodySize caps the response body in bytes. Zero keeps the colly default.
	MaxBodySize int
}

// Transport implements spider.Transport using the Colly collector.
type Transport struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Transport.
func New(cfg Config) *Transport {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())

	return &Transport{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Execute performs one request. Error statuses come back as responses.
func (t *Transport) Execute(ctx context.Context, req *spider.Request) (*spider.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("colly request has no url")
	}
	var (
		result   *spider.Response
		fetchErr error
	)
	collector := t.buildCollector(ctx)
	t.configureCollectorHooks(collector, req, &result, &fetchErr)

	if err := t.runCollector(ctx, collector, req, &fetchErr); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("colly returned no response")
	}
	return result, nil
}

func (t *Transport) buildCollector(ctx context.Context) *colly.Collector {
	collector := t.baseCollector.Clone()
	collector.Context = ctx
	if t.cfg.UserAgent != "" {
		collector.UserAgent = t.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !t.cfg.RespectRobots
	// Deduplication is left to handlers.
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	if t.cfg.MaxBodySize > 0 {
		collector.MaxBodySize = t.cfg.MaxBodySize
	}
	timeout := t.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (t *Transport) configureCollectorHooks(
	hooks collectorHooks,
	req *spider.Request,
	result **spider.Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(req.Header, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		resp := &spider.Response{
			Request:    req,
			StatusCode: r.StatusCode,
			Header:     http.Header{},
			Body:       append([]byte(nil), r.Body...),
		}
		if r.Request != nil && r.Request.URL != nil {
			u := *r.Request.URL
			resp.URL = &u
		} else {
			resp.URL = req.URL
		}
		if r.Headers != nil {
			resp.Header = r.Headers.Clone()
		}
		*result = resp
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (t *Transport) runCollector(ctx context.Context, collector *colly.Collector, req *spider.Request, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		var body io.Reader
		if len(req.Body) > 0 {
			body = bytes.NewReader(req.Body)
		}
		done <- collector.Request(req.Method, req.URL.String(), body, nil, nil)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func copyHeaders(headers http.Header, r *colly.Request) {
	if headers == nil {
		return
	}
	for key, values := range headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
