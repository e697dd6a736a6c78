// Package rss turns configured RSS and Atom feeds into a news.Searcher.
package rss

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/Gurpartap/newsagent/news"
)

const (
	DefaultMaxAge      = 48 * time.Hour
	defaultConcurrency = 4
	maxSnippetRunes    = 1000
)

// Feed is one configured source.
type Feed struct {
	Name string `mapstructure:"name" yaml:"name"`
	URL  string `mapstructure:"url" yaml:"url"`
}

type Config struct {
	Feeds      []Feed
	MaxAge     time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// Searcher reads feeds on every call. Feeds cannot be queried, so the query
// text does not narrow results; relevance is left to the filter. Query.Sources
// selects feeds by name.
type Searcher struct {
	feeds  []Feed
	maxAge time.Duration
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
	policy *bluemonday.Policy
}

var _ news.Searcher = (*Searcher)(nil)

func New(cfg Config) (*Searcher, error) {
	if len(cfg.Feeds) == 0 {
		return nil, fmt.Errorf("new rss searcher: no feeds configured")
	}
	for i, feed := range cfg.Feeds {
		if strings.TrimSpace(feed.URL) == "" {
			return nil, fmt.Errorf("new rss searcher: feed %d has no url", i)
		}
	}
	s := &Searcher{
		feeds:  slices.Clone(cfg.Feeds),
		maxAge: cfg.MaxAge,
		client: cfg.HTTPClient,
		logger: cfg.Logger,
		now:    cfg.Now,
		policy: bluemonday.StrictPolicy(),
	}
	if s.maxAge <= 0 {
		s.maxAge = DefaultMaxAge
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 20 * time.Second}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Search fetches the selected feeds concurrently and returns recent items,
// newest first. A failing feed is logged and skipped; the call fails only when
// every selected feed fails.
func (s *Searcher) Search(ctx context.Context, query news.Query) ([]news.Article, error) {
	feeds := s.selectFeeds(query.Sources)
	if len(feeds) == 0 {
		return []news.Article{}, nil
	}
	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = news.DefaultMaxResults
	}

	var (
		mu       sync.Mutex
		articles []news.Article
		failures []error
	)
	var group errgroup.Group
	group.SetLimit(defaultConcurrency)
	for _, feed := range feeds {
		group.Go(func() error {
			items, err := s.fetch(ctx, feed)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("feed fetch failed", "feed", feed.Name, tint.Err(err))
				failures = append(failures, err)
				return nil
			}
			articles = append(articles, items...)
			return nil
		})
	}
	_ = group.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if len(failures) == len(feeds) {
		return nil, fmt.Errorf("all %d feeds failed: %w", len(feeds), failures[0])
	}

	slices.SortStableFunc(articles, newestFirst)
	if len(articles) > maxResults {
		articles = articles[:maxResults]
	}
	return articles, nil
}

func (s *Searcher) selectFeeds(sources []string) []Feed {
	if len(sources) == 0 {
		return s.feeds
	}
	var out []Feed
	for _, feed := range s.feeds {
		for _, source := range sources {
			if strings.EqualFold(strings.TrimSpace(source), feed.Name) {
				out = append(out, feed)
				break
			}
		}
	}
	return out
}

func (s *Searcher) fetch(ctx context.Context, feed Feed) ([]news.Article, error) {
	parser := gofeed.NewParser()
	parser.Client = s.client
	parsed, err := parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", feed.Name, err)
	}

	name := feed.Name
	if name == "" {
		name = strings.TrimSpace(parsed.Title)
	}
	cutoff := s.now().Add(-s.maxAge)
	out := make([]news.Article, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published != nil {
			if published.Before(cutoff) {
				continue
			}
			utc := published.UTC()
			published = &utc
		}

		snippet := item.Description
		if strings.TrimSpace(snippet) == "" {
			snippet = item.Content
		}
		out = append(out, news.Article{
			Title:       s.plainText(item.Title),
			URL:         strings.TrimSpace(item.Link),
			SourceName:  name,
			PublishedAt: published,
			RawSnippet:  truncateRunes(s.plainText(snippet), maxSnippetRunes),
		}.WithID())
	}
	return out, nil
}

// plainText strips markup and decodes the entities bluemonday leaves behind.
func (s *Searcher) plainText(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(value))
	return strings.Join(strings.Fields(stripped), " ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func newestFirst(a, b news.Article) int {
	switch {
	case a.PublishedAt == nil && b.PublishedAt == nil:
		return 0
	case a.PublishedAt == nil:
		return 1
	case b.PublishedAt == nil:
		return -1
	}
	return b.PublishedAt.Compare(*a.PublishedAt)
}
