package quotes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collytransport "github.com/JakeFAU/webspider/internal/transport/colly"
	"github.com/JakeFAU/webspider/pkg/spider"
)

const pageTemplate = `<html><body>
<div class="quote">
  <span class="text">Quote %[1]d</span>
  <span>by <small class="author">Author %[1]d</small></span>
  <div class="tags"><a class="tag" href="/tag/t%[1]d/">t%[1]d</a><a class="tag" href="/tag/all/">all</a></div>
</div>
%[2]s
</body></html>`

func quoteSite(t *testing.T, pages int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for i := 1; i <= pages; i++ {
		next := ""
		if i < pages {
			next = fmt.Sprintf(`<ul class="pager"><li class="next"><a href="/page/%d/">Next</a></li></ul>`, i+1)
		}
		body := fmt.Sprintf(pageTemplate, i, next)
		mux.HandleFunc(fmt.Sprintf("/page/%d/", i), func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func crawl(t *testing.T, srv *httptest.Server, maxPages int) []Quote {
	t.Helper()
	transport := collytransport.New(collytransport.Config{Timeout: 5 * time.Second})
	s, err := spider.New(transport, spider.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	req, err := spider.Get(srv.URL + "/page/1/")
	require.NoError(t, err)
	web, err := spider.NewWeb[Quote, Page](s).Start(req).Handler(New(maxPages)).Meta(1).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := web.Crawl(ctx)
	require.NoError(t, err)
	var got []Quote
	for q := range run.Items() {
		got = append(got, q)
	}
	<-run.Done()
	require.NoError(t, run.Err())
	return got
}

func TestQuotesFollowsUntilMaxPages(t *testing.T) {
	t.Parallel()

	got := crawl(t, quoteSite(t, 5), 2)
	require.Len(t, got, 2)
	people := []string{got[0].Person, got[1].Person}
	assert.ElementsMatch(t, []string{"Author 1", "Author 2"}, people)
	for _, q := range got {
		assert.Len(t, q.Tags, 2)
		assert.Contains(t, q.Tags, "all")
	}
}

func TestQuotesStopsWithoutNextLink(t *testing.T) {
	t.Parallel()

	got := crawl(t, quoteSite(t, 3), 0)
	require.Len(t, got, 3)
}

func TestQuotesParsesOnePage(t *testing.T) {
	t.Parallel()

	req, err := spider.Get("http://quotes.test/page/1/")
	require.NoError(t, err)
	resp := &spider.Response{
		Request: req,
		URL:     req.URL,
		Body:    []byte(fmt.Sprintf(pageTemplate, 7, `<li class="next"><a href="/page/8/">Next</a></li>`)),
	}
	h := New(10)
	var items []Quote
	var follows []*spider.Callback[Quote, Page]
	for o := range h.Handle(context.Background(), resp, 7) {
		if cb, ok := o.Callback(); ok {
			follows = append(follows, cb)
			continue
		}
		q, _ := o.Item()
		items = append(items, q)
	}

	require.Len(t, follows, 1)
	assert.Equal(t, "http://quotes.test/page/8/", follows[0].Target().URL.String())
	assert.Equal(t, Page(8), follows[0].Meta())
	assert.Equal(t, "quotes -> http://quotes.test/page/8/", follows[0].String())
	require.Equal(t, []Quote{{Text: "Quote 7", Person: "Author 7", Tags: []string{"t7", "all"}}}, items)
}

func TestQuotesBrokenMarkupYieldsNothing(t *testing.T) {
	t.Parallel()

	req, err := spider.Get("http://quotes.test/")
	require.NoError(t, err)
	resp := &spider.Response{
		Request: req,
		URL:     req.URL,
		Body:    []byte(`<div class="quote"><span class="text">a</span><span class="text">b</span></div>`),
	}
	var n int
	for range New(0).Handle(context.Background(), resp, 1) {
		n++
	}
	assert.Zero(t, n)
}
