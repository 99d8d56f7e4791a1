// Package links walks a site, reporting every anchor it sees.
package links

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/webspider/pkg/scrape"
	"github.com/JakeFAU/webspider/pkg/spider"
)

// Link is one anchor found on a page.
type Link struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Depth int    `json:"depth"`
}

// Hop tracks how far a page is from the start page. MaxDepth < 0 means no limit.
type Hop struct {
	Depth    int
	MaxDepth int
}

// Start returns the metadata for a start page.
func Start(maxDepth int) Hop {
	return Hop{MaxDepth: maxDepth}
}

func (h Hop) canFollow() bool {
	return h.MaxDepth < 0 || h.Depth < h.MaxDepth
}

// Handler returns the walking handler.
func Handler() spider.Handler[Link, Hop] {
	return spider.Wrap(Walk)
}

// Walk emits a Link for every distinct http(s) anchor on the page and follows
// the ones on the same host while the hop budget allows.
func Walk(ctx context.Context, resp *spider.Response, hop Hop, out *spider.Emitter[Link, Hop]) error {
	doc, err := scrape.Document(resp)
	if err != nil {
		return err
	}
	var from, host string
	if doc.Url != nil {
		from, host = doc.Url.String(), doc.Url.Host
	}
	follow := hop.canFollow()
	next := Hop{Depth: hop.Depth + 1, MaxDepth: hop.MaxDepth}
	seen := make(map[string]struct{})
	logger := spider.LoggerFrom(ctx)

	var emitErr error
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		target, err := resp.Join(href)
		if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
			return true
		}
		target.Fragment = ""
		to := target.String()
		if _, dup := seen[to]; dup {
			return true
		}
		seen[to] = struct{}{}

		if emitErr = out.Item(Link{From: from, To: to, Depth: hop.Depth}); emitErr != nil {
			return false
		}
		if !follow || target.Host != host {
			return true
		}
		req, err := spider.Get(to)
		if err != nil {
			logger.Debug("skipping link", zap.String("link", to), zap.Error(err))
			return true
		}
		emitErr = out.Follow(spider.NewCallback(Handler(), req, next))
		return emitErr == nil
	})
	return emitErr
}
