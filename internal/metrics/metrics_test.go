package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2xx", ClassifyStatus(204))
	require.Equal(t, "3xx", ClassifyStatus(301))
	require.Equal(t, "4xx", ClassifyStatus(404))
	require.Equal(t, "5xx", ClassifyStatus(503))
	require.Equal(t, "other", ClassifyStatus(0))
}

func TestNewRegistersOnce(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "register collector")

	_, err = New(nil)
	require.EqualError(t, err, "metrics registerer is required")
}

func TestCollectorRecords(t *testing.T) {
	t.Parallel()

	c, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	c.CallbackStarted()
	c.CallbackFinished("ok", 20*time.Millisecond)
	c.CallbackFinished("transport", time.Millisecond)
	c.ItemRouted()
	c.ItemRouted()
	c.FollowQueued()
	c.AddActive(3)
	c.AddActive(-1)
	c.AddParked(1)
	c.ObserveFetch("https://Example.com/a", 200, 512)
	c.ObserveFetch("https://example.com/b", 404, 0)

	require.Equal(t, float64(1), testutil.ToFloat64(c.callbacksStarted))
	require.Equal(t, float64(1), testutil.ToFloat64(c.callbacksFinished.WithLabelValues("ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(c.callbacksFinished.WithLabelValues("transport")))
	require.Equal(t, float64(2), testutil.ToFloat64(c.itemsTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(c.followsTotal))
	require.Equal(t, float64(2), testutil.ToFloat64(c.activeExecutions))
	require.Equal(t, float64(1), testutil.ToFloat64(c.parkedProducers))
	require.Equal(t, float64(1), testutil.ToFloat64(c.fetchTotal.WithLabelValues("example.com", "2xx")))
	require.Equal(t, float64(1), testutil.ToFloat64(c.fetchTotal.WithLabelValues("example.com", "4xx")))
	require.Equal(t, float64(512), testutil.ToFloat64(c.fetchBytesTotal.WithLabelValues("example.com")))
	require.Equal(t, 2, testutil.CollectAndCount(c.callbackDuration))
}

func TestNilCollectorIsNoop(t *testing.T) {
	t.Parallel()

	var c *Collector
	require.NotPanics(t, func() {
		c.CallbackStarted()
		c.CallbackFinished("ok", time.Second)
		c.ItemRouted()
		c.FollowQueued()
		c.AddActive(1)
		c.AddParked(1)
		c.ObserveFetch("https://example.com", 200, 1)
		c.ObserveHTTPRequest("GET", "/", 200, time.Second)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	c, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/notfound", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/test", "/notfound"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, float64(1), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "200")))
	require.Equal(t, float64(1), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "404")))
	require.Positive(t, testutil.CollectAndCount(c.httpRequestSeconds))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
