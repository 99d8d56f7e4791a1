package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/webspider/internal/config"
	collytransport "github.com/JakeFAU/webspider/internal/transport/colly"
	"github.com/JakeFAU/webspider/internal/transport/headless"
	"github.com/JakeFAU/webspider/internal/transport/promote"
	"github.com/JakeFAU/webspider/pkg/spider"
)

var errNoBrowser = errors.New("no browser on this host")

func failingRenderer(headless.Config) (spider.Transport, func(), error) {
	return nil, nil, errNoBrowser
}

func transportConfig(mode string) config.Config {
	cfg := config.Config{}
	cfg.HTTP.TimeoutSeconds = 5
	cfg.Headless = config.HeadlessConfig{Mode: mode, MaxParallel: 1, NavTimeoutSec: 5, PromotionThreshold: 2048}
	return cfg
}

func TestBuildTransportOff(t *testing.T) {
	t.Parallel()

	tr, closeFn, err := buildTransport(transportConfig(config.HeadlessOff), zap.NewNop(), failingRenderer)
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &collytransport.Transport{}, tr)
}

func TestBuildTransportAlwaysNeedsRenderer(t *testing.T) {
	t.Parallel()

	_, _, err := buildTransport(transportConfig(config.HeadlessAlways), zap.NewNop(), failingRenderer)
	require.ErrorIs(t, err, errNoBrowser)
}

func TestBuildTransportPromoteFallsBackToNoop(t *testing.T) {
	t.Parallel()

	// An SPA shell: tiny body with a root mount point, which the heuristic promotes.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`)
	}))
	t.Cleanup(srv.Close)

	tr, closeFn, err := buildTransport(transportConfig(config.HeadlessPromote), zap.NewNop(), failingRenderer)
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &promote.Transport{}, tr)

	req, err := spider.Get(srv.URL + "/")
	require.NoError(t, err)
	resp, err := tr.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Text(), `id="root"`)
}

func TestBuildTransportUsesRenderer(t *testing.T) {
	t.Parallel()

	var closed bool
	renderer := spider.TransportFunc(func(_ context.Context, req *spider.Request) (*spider.Response, error) {
		return &spider.Response{Request: req, URL: req.URL, StatusCode: http.StatusOK, Body: []byte("rendered")}, nil
	})
	factory := func(headless.Config) (spider.Transport, func(), error) {
		return renderer, func() { closed = true }, nil
	}

	tr, closeFn, err := buildTransport(transportConfig(config.HeadlessAlways), zap.NewNop(), factory)
	require.NoError(t, err)
	req, err := spider.Get("http://site.test/")
	require.NoError(t, err)
	resp, err := tr.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "rendered", resp.Text())
	closeFn()
	require.True(t, closed)
}
