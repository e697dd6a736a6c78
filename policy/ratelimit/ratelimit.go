// Package ratelimit throttles outbound model and search calls with a shared
// token bucket. Limiters are injected so several runs can share one budget.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Gurpartap/newsagent/agent"
	"github.com/Gurpartap/newsagent/news"
)

// PerMinute returns a limiter admitting n calls per minute with a burst of burst.
// n <= 0 yields an unlimited limiter.
func PerMinute(n, burst int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), burst)
}

// Model waits for a token before each Generate call.
type Model struct {
	next    agent.Model
	limiter *rate.Limiter
}

var _ agent.Model = (*Model)(nil)

func NewModel(next agent.Model, limiter *rate.Limiter) *Model {
	return &Model{next: next, limiter: limiter}
}

func (m *Model) Generate(ctx context.Context, request agent.ModelRequest) (agent.Message, error) {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return agent.Message{}, ctx.Err()
			}
			// The wait would outlast the deadline; let the retry policy back off.
			return agent.Message{}, fmt.Errorf("%w: rate limit: %w", agent.ErrModelUnavailable, err)
		}
	}
	return m.next.Generate(ctx, request)
}

// Searcher waits for a token before each Search call.
type Searcher struct {
	next    news.Searcher
	limiter *rate.Limiter
}

var _ news.Searcher = (*Searcher)(nil)

func NewSearcher(next news.Searcher, limiter *rate.Limiter) *Searcher {
	return &Searcher{next: next, limiter: limiter}
}

func (s *Searcher) Search(ctx context.Context, query news.Query) ([]news.Article, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("search rate limit: %w", err)
		}
	}
	return s.next.Search(ctx, query)
}
