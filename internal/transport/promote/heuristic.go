package promote

import (
	"bytes"
	"net/http"

	"github.com/JakeFAU/webspider/pkg/spider"
)

// DefaultBodyLengthThreshold is the body size below which script-heavy pages
// are promoted.
const DefaultBodyLengthThreshold = 2048

// Detector decides whether a response needs a browser render.
type Detector interface {
	ShouldPromote(resp *spider.Response) bool
}

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyLengthThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version="),
}

// ShouldPromote reports whether a 200 response looks like an unrendered
// single-page app: an empty body, a small script-dominated body, or a known
// framework mount point.
func (h *Heuristic) ShouldPromote(resp *spider.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptCoverage(body)*100/len(body) >= 25 {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptCoverage returns how many bytes of body sit inside script elements,
// tags included. An unterminated script runs to the end of the body.
func scriptCoverage(body []byte) int {
	lower := bytes.ToLower(body)
	var (
		openTag  = []byte("<script")
		closeTag = []byte("</script>")
		covered  int
		pos      int
	)
	for pos < len(lower) {
		rel := bytes.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := bytes.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			covered += len(lower) - start
			break
		}
		contentStart := start + tagEnd + 1
		end := len(lower)
		if relEnd := bytes.Index(lower[contentStart:], closeTag); relEnd != -1 {
			end = contentStart + relEnd + len(closeTag)
		}
		covered += end - start
		pos = end
	}
	return covered
}
