// Package promote renders pages in a browser only when a plain fetch looks
// like an unrendered single-page app.
package promote

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/webspider/pkg/spider"
)

// Transport fetches with Primary and re-fetches GET requests with Renderer when
// Detector asks for it.
type Transport struct {
	primary  spider.Transport
	renderer spider.Transport
	detector Detector
	logger   *zap.Logger
}

// New builds a promoting transport. A nil detector uses NewHeuristic(0).
func New(primary, renderer spider.Transport, detector Detector, logger *zap.Logger) (*Transport, error) {
	if primary == nil || renderer == nil {
		return nil, errors.New("promote transport needs a primary and a renderer")
	}
	if detector == nil {
		detector = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		primary:  primary,
		renderer: renderer,
		detector: detector,
		logger:   logger,
	}, nil
}

// Execute implements spider.Transport. A failed render falls back to the
// primary response.
func (t *Transport) Execute(ctx context.Context, req *spider.Request) (*spider.Response, error) {
	resp, err := t.primary.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Method != http.MethodGet || !t.detector.ShouldPromote(resp) {
		return resp, nil
	}
	t.logger.Debug("promoting to headless", zap.Stringer("url", req.URL))
	rendered, err := t.renderer.Execute(ctx, req)
	if err != nil {
		t.logger.Warn("headless render failed, keeping plain response",
			zap.Stringer("url", req.URL), zap.Error(err))
		return resp, nil
	}
	return rendered, nil
}
