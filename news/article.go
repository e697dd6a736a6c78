// Package news holds the digest domain: articles, topic configuration, relevance
// filtering, deduplication and bullet summarization. Everything here is pure and
// deterministic; I/O lives in the search providers and the pipeline.
package news

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"
)

// Article is one search hit. Values are treated as immutable once fetched: the
// filter and summarizer return annotated copies.
type Article struct {
	ID            string     `json:"id" yaml:"id"`
	Title         string     `json:"title" yaml:"title"`
	URL           string     `json:"url" yaml:"url"`
	SourceName    string     `json:"source_name" yaml:"source_name"`
	PublishedAt   *time.Time `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	RawSnippet    string     `json:"raw_snippet,omitempty" yaml:"raw_snippet,omitempty"`
	TopicsMatched []string   `json:"topics_matched,omitempty" yaml:"topics_matched,omitempty"`

	// Set by the relevance filter.
	RelevanceScore  float64 `json:"relevance_score,omitempty" yaml:"relevance_score,omitempty"`
	RelevanceReason string  `json:"relevance_reason,omitempty" yaml:"relevance_reason,omitempty"`
	FilterMethod    string  `json:"filter_method,omitempty" yaml:"filter_method,omitempty"`
}

// ArticleID is the stable identity of an article: hex of the first 16 bytes of
// sha256(source \x00 title \x00 url).
func ArticleID(sourceName, title, url string) string {
	sum := sha256.Sum256([]byte(sourceName + "\x00" + title + "\x00" + url))
	return hex.EncodeToString(sum[:16])
}

// WithID returns a copy carrying its stable ID, computing it when missing.
func (a Article) WithID() Article {
	out := a.Clone()
	if out.ID == "" {
		out.ID = ArticleID(out.SourceName, out.Title, out.URL)
	}
	return out
}

// Clone returns a deep copy.
func (a Article) Clone() Article {
	out := a
	if a.PublishedAt != nil {
		published := *a.PublishedAt
		out.PublishedAt = &published
	}
	out.TopicsMatched = slices.Clone(a.TopicsMatched)
	return out
}

// FirstTopic is the grouping key used by the summarizer.
func (a Article) FirstTopic() string {
	if len(a.TopicsMatched) == 0 {
		return OtherTopic
	}
	return a.TopicsMatched[0]
}
