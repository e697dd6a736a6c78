// Package search combines news providers behind one news.Searcher.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/Gurpartap/newsagent/news"
)

// Provider is a named searcher.
type Provider struct {
	Name     string
	Searcher news.Searcher
}

// Multi queries every provider concurrently and concatenates their hits in
// provider order. A failing provider is skipped; the search fails only when
// all of them fail.
type Multi struct {
	providers []Provider
	logger    *slog.Logger
}

var _ news.Searcher = (*Multi)(nil)

func NewMulti(logger *slog.Logger, providers ...Provider) (*Multi, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("new multi searcher: no providers")
	}
	for _, provider := range providers {
		if provider.Searcher == nil {
			return nil, fmt.Errorf("new multi searcher: provider %q has no searcher", provider.Name)
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Multi{providers: providers, logger: logger}, nil
}

func (m *Multi) Search(ctx context.Context, query news.Query) ([]news.Article, error) {
	results := make([][]news.Article, len(m.providers))
	errs := make([]error, len(m.providers))

	var group errgroup.Group
	for i, provider := range m.providers {
		group.Go(func() error {
			articles, err := provider.Searcher.Search(ctx, query)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", provider.Name, err)
				return nil
			}
			results[i] = articles
			return nil
		})
	}
	_ = group.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var (
		out    []news.Article
		failed []error
	)
	for i := range m.providers {
		if errs[i] != nil {
			m.logger.Warn("search provider failed", "provider", m.providers[i].Name, tint.Err(errs[i]))
			failed = append(failed, errs[i])
			continue
		}
		out = append(out, results[i]...)
	}
	if len(failed) == len(m.providers) {
		return nil, errors.Join(failed...)
	}
	if out == nil {
		out = []news.Article{}
	}
	return out, nil
}
