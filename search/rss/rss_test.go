package rss

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gurpartap/newsagent/news"
)

const wireFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Wire</title>
<item>
  <title>AI &amp; chips: new export rules</title>
  <link>https://wire.example/ai-chips</link>
  <description><![CDATA[<p>Officials <b>tightened</b> rules.</p> <script>alert(1)</script>More soon.]]></description>
  <pubDate>Sat, 17 Oct 2026 09:00:00 GMT</pubDate>
</item>
<item>
  <title>Old story</title>
  <link>https://wire.example/old</link>
  <description>Ancient.</description>
  <pubDate>Mon, 01 Jun 2026 09:00:00 GMT</pubDate>
</item>
<item>
  <title>Undated note</title>
  <link>https://wire.example/undated</link>
  <description>No date here.</description>
</item>
</channel></rss>`

const dailyFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>Daily</title>
<entry>
  <title>Climate summit opens</title>
  <link href="https://daily.example/climate"/>
  <updated>2026-10-18T05:00:00Z</updated>
  <summary>Delegates arrived.</summary>
</entry>
</feed>`

var fixedNow = time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/wire.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, wireFeed)
	})
	mux.HandleFunc("/daily.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, dailyFeed)
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newSearcher(t *testing.T, feeds ...Feed) *Searcher {
	t.Helper()
	searcher, err := New(Config{Feeds: feeds, Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return searcher
}

func TestSearch_MergesFeedsNewestFirst(t *testing.T) {
	t.Parallel()

	server := feedServer(t)
	searcher := newSearcher(t,
		Feed{Name: "Wire", URL: server.URL + "/wire.xml"},
		Feed{Name: "Daily", URL: server.URL + "/daily.xml"},
	)

	articles, err := searcher.Search(context.Background(), news.Query{Text: "anything"})
	require.NoError(t, err)
	require.Len(t, articles, 3)

	assert.Equal(t, "Climate summit opens", articles[0].Title)
	assert.Equal(t, "Daily", articles[0].SourceName)
	assert.Equal(t, "AI & chips: new export rules", articles[1].Title)
	assert.Equal(t, "Officials tightened rules. More soon.", articles[1].RawSnippet)
	assert.Equal(t, "Undated note", articles[2].Title)
	assert.Nil(t, articles[2].PublishedAt)
	for _, article := range articles {
		assert.NotEmpty(t, article.ID)
	}
}

func TestSearch_SelectsSourcesAndTruncates(t *testing.T) {
	t.Parallel()

	server := feedServer(t)
	searcher := newSearcher(t,
		Feed{Name: "Wire", URL: server.URL + "/wire.xml"},
		Feed{Name: "Daily", URL: server.URL + "/daily.xml"},
	)

	articles, err := searcher.Search(context.Background(), news.Query{Sources: []string{"wire"}, MaxResults: 1})
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Wire", articles[0].SourceName)

	none, err := searcher.Search(context.Background(), news.Query{Sources: []string{"Unknown"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearch_PartialAndTotalFailure(t *testing.T) {
	t.Parallel()

	server := feedServer(t)
	partial := newSearcher(t,
		Feed{Name: "Broken", URL: server.URL + "/broken.xml"},
		Feed{Name: "Daily", URL: server.URL + "/daily.xml"},
	)
	articles, err := partial.Search(context.Background(), news.Query{})
	require.NoError(t, err)
	assert.Len(t, articles, 1)

	total := newSearcher(t, Feed{Name: "Broken", URL: server.URL + "/broken.xml"})
	_, err = total.Search(context.Background(), news.Query{})
	assert.ErrorContains(t, err, "all 1 feeds failed")
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Feeds: []Feed{{Name: "x"}}})
	assert.Error(t, err)
}
