// Package newstools exposes the news domain to the model as tools. A Session
// holds the effects of one run's tool calls so the pipeline can assemble the
// digest from real data instead of the model's prose.
package newstools

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/Gurpartap/newsagent/news"
)

// Session is per run. Tools of one assistant turn run concurrently, so every
// access goes through mu.
type Session struct {
	mu sync.Mutex

	topics     news.TopicConfig
	sources    []string
	maxResults int
	searcher   news.Searcher
	summarizer news.Summarizer
	logger     *slog.Logger
	exclude    map[string]struct{}

	pool      []news.Article
	poolIndex map[string]int
	accepted  []news.Article
	searches  int
	filters   int
	summaries int
}

type SessionConfig struct {
	Topics     news.TopicConfig
	Sources    []string
	MaxResults int
	Searcher   news.Searcher
	Summarizer news.Summarizer
	Logger     *slog.Logger
	// Exclude holds IDs of articles already reported; search drops them.
	Exclude map[string]struct{}
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("new session: searcher is nil")
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = news.DefaultMaxResults
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		topics:     cfg.Topics.Normalized(),
		sources:    append([]string(nil), cfg.Sources...),
		maxResults: cfg.MaxResults,
		searcher:   cfg.Searcher,
		summarizer: cfg.Summarizer,
		logger:     cfg.Logger,
		exclude:    cfg.Exclude,
		poolIndex:  make(map[string]int),
	}, nil
}

// Search runs the searcher and adds hits to the session pool. Articles already in
// the pool keep their first version.
func (s *Session) Search(ctx context.Context, query news.Query) ([]news.Article, error) {
	if len(query.Sources) == 0 {
		query.Sources = append([]string(nil), s.sources...)
	}
	if query.MaxResults <= 0 {
		query.MaxResults = s.maxResults
	}

	found, err := s.searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(found) > query.MaxResults {
		found = found[:query.MaxResults]
	}

	out := make([]news.Article, 0, len(found))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches++
	for _, article := range found {
		article = article.WithID()
		if _, seen := s.exclude[article.ID]; seen {
			continue
		}
		out = append(out, article)
		if _, ok := s.poolIndex[article.ID]; ok {
			continue
		}
		s.poolIndex[article.ID] = len(s.pool)
		s.pool = append(s.pool, article.Clone())
	}
	s.logger.Debug("search finished", "query", query.Text, "results", len(out), "pool", len(s.pool))
	return out, nil
}

// Filter applies the relevance filter. Nil candidates mean the whole pool; nil
// topics and keywords fall back to the run's topic config. Accepted articles are
// merged into the session's accepted set, which is deduplicated again.
func (s *Session) Filter(candidates []news.Article, topics, keywords []string) []news.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters++

	if candidates == nil {
		candidates = s.pool
	} else {
		candidates = s.resolveLocked(candidates)
	}
	cfg := s.topics
	if topics != nil || keywords != nil {
		cfg = news.TopicConfig{
			Topics:          topics,
			Keywords:        keywords,
			ExcludeKeywords: s.topics.ExcludeKeywords,
		}
	}

	accepted := news.FilterArticles(candidates, cfg)
	s.accepted = news.Deduplicate(append(s.accepted, accepted...))
	s.logger.Debug("filter finished", "candidates", len(candidates), "accepted", len(accepted), "total_accepted", len(s.accepted))
	return accepted
}

// Summarize summarizes the given articles, or the accepted set when nil.
func (s *Session) Summarize(articles []news.Article) news.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries++

	if articles == nil {
		articles = s.accepted
	} else {
		articles = s.resolveAcceptedLocked(articles)
	}
	return s.summarizer.Summarize(articles)
}

// resolveAcceptedLocked prefers the accepted copy of an article, which carries
// the filter's annotations. Articles only found in the pool keep the caller's
// annotations on top of the pool's data.
func (s *Session) resolveAcceptedLocked(articles []news.Article) []news.Article {
	accepted := make(map[string]int, len(s.accepted))
	for i, article := range s.accepted {
		accepted[article.ID] = i
	}

	resolved := s.resolveLocked(articles)
	for i := range resolved {
		if j, ok := accepted[resolved[i].ID]; ok {
			resolved[i] = s.accepted[j].Clone()
			continue
		}
		if len(resolved[i].TopicsMatched) == 0 {
			resolved[i].TopicsMatched = slices.Clone(articles[i].TopicsMatched)
			resolved[i].RelevanceScore = articles[i].RelevanceScore
			resolved[i].RelevanceReason = articles[i].RelevanceReason
			resolved[i].FilterMethod = articles[i].FilterMethod
		}
	}
	return resolved
}

// resolveLocked prefers the pool's copy of an article the model refers to, so
// paraphrased titles or trimmed snippets do not leak into the digest.
func (s *Session) resolveLocked(articles []news.Article) []news.Article {
	out := make([]news.Article, 0, len(articles))
	for _, article := range articles {
		if strings.TrimSpace(article.ID) != "" {
			if i, ok := s.poolIndex[article.ID]; ok {
				out = append(out, s.pool[i].Clone())
				continue
			}
		}
		out = append(out, article.WithID())
	}
	return out
}

// Accepted returns the union of every filter call's output.
func (s *Session) Accepted() []news.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]news.Article, len(s.accepted))
	for i := range s.accepted {
		out[i] = s.accepted[i].Clone()
	}
	return out
}

// Pool returns every distinct article found by search calls, in discovery order.
func (s *Session) Pool() []news.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]news.Article, len(s.pool))
	for i := range s.pool {
		out[i] = s.pool[i].Clone()
	}
	return out
}

// Stats counts tool invocations that reached the session.
type Stats struct {
	Searches  int
	Filters   int
	Summaries int
	Pool      int
	Accepted  int
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Searches:  s.searches,
		Filters:   s.filters,
		Summaries: s.summaries,
		Pool:      len(s.pool),
		Accepted:  len(s.accepted),
	}
}
