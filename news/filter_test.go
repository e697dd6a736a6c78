package news_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gurpartap/newsagent/news"
)

func at(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return &parsed
}

func TestFilterArticles_AcceptsOnlyMatchingTopic(t *testing.T) {
	t.Parallel()

	cfg := news.TopicConfig{Topics: []string{"AI"}, Keywords: []string{}}
	articles := []news.Article{
		{Title: "AI breakthrough", URL: "https://example.com/ai", RawSnippet: "Researchers report progress.", PublishedAt: at(t, "2026-10-17T08:00:00Z")},
		{Title: "Sports recap", URL: "https://example.com/sports", RawSnippet: "The home team won.", PublishedAt: at(t, "2026-10-17T09:00:00Z")},
	}

	accepted := news.FilterArticles(articles, cfg)
	require.Len(t, accepted, 1)
	assert.Equal(t, "AI breakthrough", accepted[0].Title)
	assert.Equal(t, []string{"AI"}, accepted[0].TopicsMatched)
	assert.NotEmpty(t, accepted[0].ID)
	assert.Empty(t, articles[0].TopicsMatched, "input must not be annotated in place")
}

func TestFilterArticles_EmptyConfigAcceptsNothing(t *testing.T) {
	t.Parallel()

	articles := []news.Article{
		{Title: "AI breakthrough", URL: "https://example.com/ai"},
		{Title: "Anything at all", URL: "https://example.com/any"},
	}
	for _, cfg := range []news.TopicConfig{
		{},
		{Topics: []string{}, Keywords: []string{}},
		{Topics: []string{"  "}, Keywords: []string{""}},
	} {
		assert.Empty(t, news.FilterArticles(articles, cfg))
	}
}

func TestFilterArticles_EmptyCandidates(t *testing.T) {
	t.Parallel()

	accepted := news.FilterArticles(nil, news.TopicConfig{Topics: []string{"AI"}})
	require.NotNil(t, accepted)
	assert.Empty(t, accepted)
}

func TestFilterArticles_MatchesSnippetAndOrdersMatches(t *testing.T) {
	t.Parallel()

	cfg := news.TopicConfig{
		Topics:   []string{"Climate", "Energy"},
		Keywords: []string{"solar", "climate"},
	}
	article := news.Article{
		Title:      "Solar farms expand",
		URL:        "https://example.com/solar",
		RawSnippet: "A boost for the ENERGY transition and the climate.",
	}

	accepted := news.FilterArticles([]news.Article{article}, cfg)
	require.Len(t, accepted, 1)
	assert.Equal(t, []string{"Climate", "Energy", "solar"}, accepted[0].TopicsMatched)
	assert.InDelta(t, 0.75, accepted[0].RelevanceScore, 1e-9)
	assert.Equal(t, "matched Climate, Energy, solar", accepted[0].RelevanceReason)
	assert.Equal(t, news.FilterMethodKeyword, accepted[0].FilterMethod)
}

func TestRelevanceScore(t *testing.T) {
	t.Parallel()

	article := news.Article{Title: "AI chips rally", RawSnippet: "Semiconductor stocks rose."}
	tests := []struct {
		name string
		cfg  news.TopicConfig
		want float64
	}{
		{name: "no terms", cfg: news.TopicConfig{}, want: 0},
		{name: "one of two topics", cfg: news.TopicConfig{Topics: []string{"AI", "Climate"}}, want: 0.5},
		{name: "topic and keyword", cfg: news.TopicConfig{Topics: []string{"AI"}, Keywords: []string{"stocks"}}, want: 0.75},
		{name: "keyword only", cfg: news.TopicConfig{Topics: []string{"Climate"}, Keywords: []string{"chips"}}, want: 0.25},
		{name: "every topic", cfg: news.TopicConfig{Topics: []string{"ai", "chips"}}, want: 1},
		{name: "keywords weigh half", cfg: news.TopicConfig{Topics: []string{"ai"}, Keywords: []string{"chips", "rose"}}, want: 4.0 / 6.0},
		{name: "duplicates count once", cfg: news.TopicConfig{Topics: []string{"AI", "ai", " AI "}}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, news.RelevanceScore(article, tt.cfg), 1e-9)
		})
	}
}

func TestFilterArticles_ExcludeKeywords(t *testing.T) {
	t.Parallel()

	cfg := news.TopicConfig{Topics: []string{"AI"}, ExcludeKeywords: []string{"sponsored"}}
	articles := []news.Article{
		{Title: "AI chips sold out", URL: "https://example.com/a"},
		{Title: "AI webinar", URL: "https://example.com/b", RawSnippet: "Sponsored content from a vendor."},
	}

	accepted := news.FilterArticles(articles, cfg)
	require.Len(t, accepted, 1)
	assert.Equal(t, "AI chips sold out", accepted[0].Title)
}

func TestDeduplicate_KeepsEarliestForSameURL(t *testing.T) {
	t.Parallel()

	articles := []news.Article{
		{Title: "AI model launch (update)", URL: "https://www.example.com/story/?utm_source=rss", PublishedAt: at(t, "2026-10-17T12:00:00Z")},
		{Title: "AI model launch", URL: "http://example.com/story#top", PublishedAt: at(t, "2026-10-17T07:00:00Z")},
	}

	deduped := news.Deduplicate(articles)
	require.Len(t, deduped, 1)
	assert.Equal(t, "AI model launch", deduped[0].Title)
}

func TestDeduplicate_TieBreaks(t *testing.T) {
	t.Parallel()

	same := "2026-10-17T07:00:00Z"
	testCases := []struct {
		name      string
		articles  []news.Article
		wantTitle string
	}{
		{
			name: "timestamp beats none",
			articles: []news.Article{
				{Title: "Undated", URL: "https://example.com/x", RawSnippet: "a much longer snippet than the other one"},
				{Title: "Dated", URL: "https://example.com/x", PublishedAt: at(t, same)},
			},
			wantTitle: "Dated",
		},
		{
			name: "longer snippet on equal time",
			articles: []news.Article{
				{Title: "Short", URL: "https://example.com/x", RawSnippet: "short", PublishedAt: at(t, same)},
				{Title: "Long", URL: "https://example.com/x", RawSnippet: "considerably longer", PublishedAt: at(t, same)},
			},
			wantTitle: "Long",
		},
		{
			name: "first seen on full tie",
			articles: []news.Article{
				{Title: "First", URL: "https://example.com/x", RawSnippet: "same"},
				{Title: "Second", URL: "https://example.com/x", RawSnippet: "same"},
			},
			wantTitle: "First",
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			deduped := news.Deduplicate(tc.articles)
			require.Len(t, deduped, 1)
			assert.Equal(t, tc.wantTitle, deduped[0].Title)
		})
	}
}

func TestDeduplicate_TitleKeyAndTransitiveGroups(t *testing.T) {
	t.Parallel()

	articles := []news.Article{
		{Title: "Chip  Shortage Eases", URL: "https://a.example/1"},
		{Title: "Unrelated", URL: "https://b.example/2"},
		{Title: "chip shortage eases", URL: "https://c.example/3"},
		{Title: "Chip shortage eases, analysts say", URL: "https://c.example/3/"},
	}

	deduped := news.Deduplicate(articles)
	require.Len(t, deduped, 2)
	assert.Equal(t, "Chip  Shortage Eases", deduped[0].Title)
	assert.Equal(t, "Unrelated", deduped[1].Title)
}

func TestDeduplicate_Idempotent(t *testing.T) {
	t.Parallel()

	articles := []news.Article{
		{Title: "A", URL: "https://example.com/a?utm_campaign=x", PublishedAt: at(t, "2026-10-17T07:00:00Z")},
		{Title: "A", URL: "https://example.com/a", PublishedAt: at(t, "2026-10-16T07:00:00Z")},
		{Title: "B", URL: "https://example.com/b"},
		{Title: "C", URL: "https://example.com/c", RawSnippet: "x"},
		{Title: "c", URL: "https://example.com/c2", RawSnippet: "longer"},
	}

	once := news.Deduplicate(articles)
	twice := news.Deduplicate(once)
	assert.Equal(t, once, twice)

	cfg := news.TopicConfig{Keywords: []string{"a", "b", "c"}}
	filteredOnce := news.FilterArticles(articles, cfg)
	assert.Equal(t, filteredOnce, news.FilterArticles(filteredOnce, cfg))
}

func TestURLKey(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
	}{
		{in: "https://www.Example.com/News/?b=2&a=1&utm_medium=email#frag", want: "example.com/News?a=1&b=2"},
		{in: "http://example.com:80/path//to/", want: "example.com/path/to"},
		{in: "example.com/story?fbclid=abc", want: "example.com/story"},
		{in: "https://example.com:8443/x", want: "example.com:8443/x"},
		{in: "https://example.com", want: "example.com"},
		{in: "", want: ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, news.URLKey(tc.in), "input %q", tc.in)
	}
}

func TestArticleIDIsStable(t *testing.T) {
	t.Parallel()

	id := news.ArticleID("Reuters", "Markets rally", "https://example.com/m")
	assert.Len(t, id, 32)
	assert.Equal(t, id, news.ArticleID("Reuters", "Markets rally", "https://example.com/m"))
	assert.NotEqual(t, id, news.ArticleID("Reuters", "Markets rally", "https://example.com/n"))
}

func TestTopicConfigNormalized(t *testing.T) {
	t.Parallel()

	cfg := news.TopicConfig{
		Topics:   []string{" AI ", "ai", "Climate"},
		Keywords: nil,
	}.Normalized()
	assert.Equal(t, []string{"AI", "Climate"}, cfg.Topics)
	assert.NotNil(t, cfg.Keywords)
	assert.Empty(t, cfg.Keywords)
}
