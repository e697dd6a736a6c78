package news

import (
	"strings"
	"unicode/utf8"
)

// MatchTopics returns the configured topics, then keywords, that occur
// case-insensitively in the article title or snippet. A keyword equal to an
// already matched topic is not repeated.
func MatchTopics(article Article, cfg TopicConfig) []string {
	title := strings.ToLower(article.Title)
	snippet := strings.ToLower(article.RawSnippet)
	contains := func(term string) bool {
		term = strings.ToLower(term)
		return strings.Contains(title, term) || strings.Contains(snippet, term)
	}

	var matched []string
	seen := make(map[string]struct{})
	for _, group := range [][]string{cfg.Topics, cfg.Keywords} {
		for _, term := range dedupeTerms(group) {
			key := strings.ToLower(term)
			if _, dup := seen[key]; dup {
				continue
			}
			if contains(term) {
				seen[key] = struct{}{}
				matched = append(matched, term)
			}
		}
	}
	return matched
}

// FilterMethodKeyword marks articles accepted by term matching.
const FilterMethodKeyword = "keyword"

// RelevanceScore weighs topic hits twice as much as keyword hits:
// (2*topic_hits + keyword_hits) / (2*terms), capped at 1. A config without
// terms scores 0.
func RelevanceScore(article Article, cfg TopicConfig) float64 {
	text := strings.ToLower(article.Title + " " + article.RawSnippet)
	topics := dedupeTerms(cfg.Topics)
	keywords := dedupeTerms(cfg.Keywords)
	total := len(topics) + len(keywords)
	if total == 0 {
		return 0
	}

	hits := 0
	for _, topic := range topics {
		if strings.Contains(text, strings.ToLower(topic)) {
			hits += 2
		}
	}
	for _, keyword := range keywords {
		if strings.Contains(text, strings.ToLower(keyword)) {
			hits++
		}
	}
	return min(float64(hits)/float64(2*total), 1)
}

func excluded(article Article, cfg TopicConfig) bool {
	title := strings.ToLower(article.Title)
	snippet := strings.ToLower(article.RawSnippet)
	for _, term := range dedupeTerms(cfg.ExcludeKeywords) {
		term = strings.ToLower(term)
		if strings.Contains(title, term) || strings.Contains(snippet, term) {
			return true
		}
	}
	return false
}

// FilterArticles accepts candidates with at least one topic or keyword match and
// no excluded term, annotates them with their matches and relevance score, and
// deduplicates them.
// An empty config accepts nothing. The input is not modified.
func FilterArticles(candidates []Article, cfg TopicConfig) []Article {
	if len(candidates) == 0 || cfg.Empty() {
		return []Article{}
	}

	accepted := make([]Article, 0, len(candidates))
	for _, candidate := range candidates {
		matched := MatchTopics(candidate, cfg)
		if len(matched) == 0 || excluded(candidate, cfg) {
			continue
		}
		annotated := candidate.WithID()
		annotated.TopicsMatched = matched
		annotated.RelevanceScore = RelevanceScore(candidate, cfg)
		annotated.RelevanceReason = "matched " + strings.Join(matched, ", ")
		annotated.FilterMethod = FilterMethodKeyword
		accepted = append(accepted, annotated)
	}
	return Deduplicate(accepted)
}

// Deduplicate collapses articles that share a normalized URL or a normalized
// title, transitively. Each group keeps its earliest published article (a
// timestamp beats none), then the longer snippet, then the first seen. Groups
// are emitted in first-seen order. Deduplicate is idempotent.
func Deduplicate(articles []Article) []Article {
	if len(articles) == 0 {
		return []Article{}
	}

	groups := newUnionFind(len(articles))
	byURL := make(map[string]int)
	byTitle := make(map[string]int)
	for i, article := range articles {
		if key := URLKey(article.URL); key != "" {
			if first, ok := byURL[key]; ok {
				groups.union(first, i)
			} else {
				byURL[key] = i
			}
		}
		if key := TitleKey(article.Title); key != "" {
			if first, ok := byTitle[key]; ok {
				groups.union(first, i)
			} else {
				byTitle[key] = i
			}
		}
	}

	best := make(map[int]int)
	var order []int
	for i := range articles {
		root := groups.find(i)
		current, ok := best[root]
		if !ok {
			best[root] = i
			order = append(order, root)
			continue
		}
		if preferArticle(articles[i], articles[current]) {
			best[root] = i
		}
	}

	out := make([]Article, 0, len(order))
	for _, root := range order {
		out = append(out, articles[best[root]].Clone())
	}
	return out
}

// preferArticle reports whether candidate should replace current; ties keep current.
func preferArticle(candidate, current Article) bool {
	switch {
	case candidate.PublishedAt != nil && current.PublishedAt == nil:
		return true
	case candidate.PublishedAt == nil && current.PublishedAt != nil:
		return false
	case candidate.PublishedAt != nil && current.PublishedAt != nil:
		if candidate.PublishedAt.Before(*current.PublishedAt) {
			return true
		}
		if candidate.PublishedAt.After(*current.PublishedAt) {
			return false
		}
	}
	return utf8.RuneCountInString(candidate.RawSnippet) > utf8.RuneCountInString(current.RawSnippet)
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union keeps the smaller index as root so roots stay first-seen members.
func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
