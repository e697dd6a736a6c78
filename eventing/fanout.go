// Package eventing combines orchestrator event sinks.
package eventing

import (
	"context"
	"errors"

	"github.com/Gurpartap/newsagent/agent"
)

// Fanout publishes every event to each sink in order. All sinks are attempted;
// their errors are joined.
type Fanout []agent.EventSink

var _ agent.EventSink = Fanout(nil)

func (f Fanout) Publish(ctx context.Context, event agent.Event) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
