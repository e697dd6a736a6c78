// Package promsink turns orchestrator events into Prometheus metrics.
package promsink

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Gurpartap/newsagent/agent"
)

const namespace = "newsagent"

// Sink counts runs, retries and tool results. Run duration is measured between
// run_started and the terminal event of the same run.
type Sink struct {
	runs        *prometheus.CounterVec
	retries     prometheus.Counter
	toolResults *prometheus.CounterVec
	steps       prometheus.Histogram
	duration    prometheus.Histogram

	now     func() time.Time
	mu      sync.Mutex
	started map[agent.RunID]time.Time
}

var _ agent.EventSink = (*Sink)(nil)

// New registers the collectors on registerer. Callers own the registry; the
// CLI passes a private one served on --metrics-addr.
func New(registerer prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished orchestrator runs by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_retries_total",
			Help:      "Model calls retried after a transient failure.",
		}),
		toolResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_results_total",
			Help:      "Tool results by tool and failure reason.",
		}, []string{"tool", "reason"}),
		steps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_steps",
			Help:      "Model steps per finished run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		now:     time.Now,
		started: make(map[agent.RunID]time.Time),
	}
	for _, collector := range []prometheus.Collector{s.runs, s.retries, s.toolResults, s.steps, s.duration} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Sink) Publish(_ context.Context, event agent.Event) error {
	switch event.Type {
	case agent.EventTypeRunStarted:
		s.mu.Lock()
		s.started[event.RunID] = s.now()
		s.mu.Unlock()
	case agent.EventTypeModelRetry:
		s.retries.Inc()
	case agent.EventTypeToolResult:
		if event.ToolResult == nil {
			return nil
		}
		reason := "ok"
		if event.ToolResult.IsError {
			reason = string(event.ToolResult.FailureReason)
		}
		s.toolResults.WithLabelValues(event.ToolResult.Name, reason).Inc()
	case agent.EventTypeRunCompleted:
		s.finish(event, "done")
	case agent.EventTypeRunFailed:
		s.finish(event, string(event.Cause))
	}
	return nil
}

func (s *Sink) finish(event agent.Event, outcome string) {
	s.runs.WithLabelValues(outcome).Inc()
	s.steps.Observe(float64(event.Step))

	s.mu.Lock()
	started, ok := s.started[event.RunID]
	delete(s.started, event.RunID)
	s.mu.Unlock()
	if ok {
		s.duration.Observe(s.now().Sub(started).Seconds())
	}
}
