// Package idgen provides run ID generators.
package idgen

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Gurpartap/newsagent/agent"
)

// UUID issues random version 4 run IDs. It is the production generator.
type UUID struct{}

var _ agent.IDGenerator = UUID{}

func (UUID) NewRunID(_ context.Context) (agent.RunID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("new run id: %w", err)
	}
	return agent.RunID(id.String()), nil
}

// Counter provides deterministic in-process run IDs such as run-000001.
type Counter struct {
	prefix  string
	counter atomic.Uint64
}

var _ agent.IDGenerator = (*Counter)(nil)

func NewCounter(prefix string) *Counter {
	if prefix == "" {
		prefix = "run"
	}
	return &Counter{prefix: prefix}
}

func (g *Counter) NewRunID(_ context.Context) (agent.RunID, error) {
	next := g.counter.Add(1)
	return agent.RunID(fmt.Sprintf("%s-%06d", g.prefix, next)), nil
}
