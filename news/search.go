package news

import "context"

// DefaultMaxResults bounds a search when the caller does not.
const DefaultMaxResults = 10

// Query is one search request. Sources narrows the search to named sources; empty
// means every enabled source.
type Query struct {
	Text       string   `json:"query"`
	Sources    []string `json:"sources,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
}

// Searcher finds candidate articles. Zero results is not an error.
type Searcher interface {
	Search(ctx context.Context, query Query) ([]Article, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, query Query) ([]Article, error)

func (f SearcherFunc) Search(ctx context.Context, query Query) ([]Article, error) {
	return f(ctx, query)
}
