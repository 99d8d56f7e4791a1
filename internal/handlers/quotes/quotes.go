// Package quotes scrapes quotes.toscrape.com-style listing pages.
package quotes

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/webspider/pkg/scrape"
	"github.com/JakeFAU/webspider/pkg/spider"
)

// Name identifies the handler in logs and callback descriptions.
const Name = "quotes"

// Quote is one scraped quote.
type Quote struct {
	Text   string   `json:"text"`
	Person string   `json:"person"`
	Tags   []string `json:"tags"`
}

// Page is the 1-based number of the page being handled.
type Page int

// Handler yields the quotes on a page and follows the next-page link until MaxPages.
type Handler struct {
	MaxPages int
}

// New returns a Handler that stops after maxPages pages. Non-positive means no limit.
func New(maxPages int) *Handler {
	return &Handler{MaxPages: maxPages}
}

// Name implements spider.Handler.
func (h *Handler) Name() string {
	return Name
}

// Handle implements spider.Handler. The next page is emitted before the
// quotes so it can start fetching while items drain.
func (h *Handler) Handle(ctx context.Context, resp *spider.Response, page Page) <-chan spider.Outcome[Quote, Page] {
	return spider.Produce(ctx, func(out *spider.Emitter[Quote, Page]) error {
		doc, err := scrape.Document(resp)
		if err != nil {
			return err
		}
		quotes, err := parseQuotes(doc)
		if err != nil {
			return err
		}

		if next, ok := h.next(ctx, resp, doc, page); ok {
			if err := out.Follow(next); err != nil {
				return err
			}
		}
		for _, q := range quotes {
			if err := out.Item(q); err != nil {
				return err
			}
		}
		return nil
	})
}

func (h *Handler) next(
	ctx context.Context,
	resp *spider.Response,
	doc *goquery.Document,
	page Page,
) (*spider.Callback[Quote, Page], bool) {
	if h.MaxPages > 0 && int(page) >= h.MaxPages {
		return nil, false
	}
	href, err := scrape.ParseAttr(doc.Find(".next a"), "href")
	if err != nil {
		return nil, false
	}
	target, err := resp.Join(href)
	if err != nil {
		spider.LoggerFrom(ctx).Warn("bad next page link", zap.String("href", href), zap.Error(err))
		return nil, false
	}
	req, err := spider.Get(target.String())
	if err != nil {
		return nil, false
	}
	spider.LoggerFrom(ctx).Info("found next page", zap.String("link", target.String()))
	return spider.NewCallback[Quote, Page](h, req, page+1), true
}

func parseQuotes(doc *goquery.Document) ([]Quote, error) {
	var (
		quotes []Quote
		err    error
	)
	doc.Find(".quote").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		text, e := scrape.UniqueElement(sel.Find(".text"))
		if e != nil {
			err = fmt.Errorf("quote %d text: %w", i, e)
			return false
		}
		person, e := scrape.UniqueElement(sel.Find("small"))
		if e != nil {
			err = fmt.Errorf("quote %d author: %w", i, e)
			return false
		}
		tags := sel.Find(".tag").Map(func(_ int, t *goquery.Selection) string {
			return strings.TrimSpace(t.Text())
		})
		quotes = append(quotes, Quote{
			Text:   strings.TrimSpace(text.Text()),
			Person: strings.TrimSpace(person.Text()),
			Tags:   tags,
		})
		return true
	})
	return quotes, err
}
