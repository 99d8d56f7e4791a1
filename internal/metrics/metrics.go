// Package metrics exposes Prometheus collectors for crawl runs and the status server.
package metrics

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the crawl collectors registered on one registry. A nil
// *Collector is valid and records nothing.
type Collector struct {
	callbacksStarted   prometheus.Counter
	callbacksFinished  *prometheus.CounterVec
	callbackDuration   *prometheus.HistogramVec
	itemsTotal         prometheus.Counter
	followsTotal       prometheus.Counter
	activeExecutions   prometheus.Gauge
	parkedProducers    prometheus.Gauge
	fetchTotal         *prometheus.CounterVec
	fetchBytesTotal    *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestSeconds *prometheus.HistogramVec
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		return nil, errors.New("metrics registerer is required")
	}
	c := &Collector{
		callbacksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spider_callbacks_started_total",
			Help: "Total number of callback executions started.",
		}),
		callbacksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spider_callbacks_finished_total",
			Help: "Total number of callback executions finished, labeled by result.",
		}, []string{"result"}),
		callbackDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spider_callback_duration_seconds",
			Help:    "Histogram of callback execution time, labeled by result.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"result"}),
		itemsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spider_items_total",
			Help: "Total number of items delivered to the item stream.",
		}),
		followsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spider_follows_total",
			Help: "Total number of follow-up callbacks accepted by the task queue.",
		}),
		activeExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spider_active_executions",
			Help: "Number of executions currently holding a concurrency slot.",
		}),
		parkedProducers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spider_parked_producers",
			Help: "Number of executions waiting for task queue space.",
		}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spider_fetch_total",
			Help: "Total number of fetched responses, labeled by site and status class.",
		}, []string{"site", "status_class"}),
		fetchBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spider_fetch_bytes_total",
			Help: "Total number of response body bytes fetched, labeled by site.",
		}, []string{"site"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	for _, col := range []prometheus.Collector{
		c.callbacksStarted, c.callbacksFinished, c.callbackDuration,
		c.itemsTotal, c.followsTotal, c.activeExecutions, c.parkedProducers,
		c.fetchTotal, c.fetchBytesTotal, c.httpRequestsTotal, c.httpRequestSeconds,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return c, nil
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ClassifyStatus groups HTTP status codes into coarse classes.
func ClassifyStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}

// CallbackStarted counts a started execution.
func (c *Collector) CallbackStarted() {
	if c == nil {
		return
	}
	c.callbacksStarted.Inc()
}

// CallbackFinished records the result and duration of an execution.
func (c *Collector) CallbackFinished(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.callbacksFinished.WithLabelValues(result).Inc()
	c.callbackDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ItemRouted counts an item delivered to the item stream.
func (c *Collector) ItemRouted() {
	if c == nil {
		return
	}
	c.itemsTotal.Inc()
}

// FollowQueued counts a follow-up accepted by the task queue.
func (c *Collector) FollowQueued() {
	if c == nil {
		return
	}
	c.followsTotal.Inc()
}

// AddActive moves the active executions gauge by delta.
func (c *Collector) AddActive(delta int) {
	if c == nil {
		return
	}
	c.activeExecutions.Add(float64(delta))
}

// AddParked moves the parked producers gauge by delta.
func (c *Collector) AddParked(delta int) {
	if c == nil {
		return
	}
	c.parkedProducers.Add(float64(delta))
}

// ObserveFetch records a fetched response.
func (c *Collector) ObserveFetch(rawURL string, status int, bytesFetched int) {
	if c == nil {
		return
	}
	site := SanitizeSite(rawURL)
	c.fetchTotal.WithLabelValues(site, ClassifyStatus(status)).Inc()
	if bytesFetched > 0 {
		c.fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest records a request served by the status server.
func (c *Collector) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	c.httpRequestSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
