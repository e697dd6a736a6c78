// Package pipeline runs one digest: it seeds the orchestrator with the
// configured topics and sources, lets the model drive the news tools, and
// turns the session's accepted articles into a news.Digest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"github.com/Gurpartap/newsagent/agent"
	"github.com/Gurpartap/newsagent/eventing"
	eventinginmem "github.com/Gurpartap/newsagent/eventing/inmem"
	"github.com/Gurpartap/newsagent/internal/notify"
	"github.com/Gurpartap/newsagent/internal/output"
	"github.com/Gurpartap/newsagent/news"
	"github.com/Gurpartap/newsagent/newstools"
)

// Archive keeps article history across runs.
type Archive interface {
	SaveArticles(ctx context.Context, runID string, articles []news.Article) error
	SaveDigest(ctx context.Context, digest *news.Digest) error
	RecentArticleIDs(ctx context.Context, since time.Time) (map[string]struct{}, error)
}

// Dependencies are the collaborators of a Runner. Model, Searcher and
// IDGenerator are required.
type Dependencies struct {
	Model       agent.Model
	Searcher    news.Searcher
	IDGenerator agent.IDGenerator
	RunStore    agent.RunStore
	Archive     Archive
	Events      agent.EventSink
	Writers     []output.Writer
	Notifier    notify.Notifier
	Logger      *slog.Logger
	Now         func() time.Time
}

type Options struct {
	Topics       news.TopicConfig
	Sources      []string
	MaxResults   int
	Summarizer   news.Summarizer
	SystemPrompt string
	// RunTimeout bounds the whole conversation. Zero means no bound.
	RunTimeout time.Duration
	// SeenWindow excludes articles reported within the window. Needs an Archive.
	SeenWindow time.Duration
	Agent      agent.Options
}

type Runner struct {
	deps Dependencies
	opts Options
}

func New(deps Dependencies, opts Options) (*Runner, error) {
	if deps.Model == nil {
		return nil, fmt.Errorf("new pipeline: %w", agent.ErrMissingModel)
	}
	if deps.Searcher == nil {
		return nil, errors.New("new pipeline: searcher is nil")
	}
	if deps.IDGenerator == nil {
		return nil, errors.New("new pipeline: id generator is nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	opts.Topics = opts.Topics.Normalized()
	opts.Agent.Events = deps.Events
	return &Runner{deps: deps, opts: opts}, nil
}

// Run produces one digest. Orchestration failures are returned as
// *agent.RunError with a nil digest. A digest that was built but could not be
// written is returned together with the write error. Notification failures are
// logged only.
func (r *Runner) Run(ctx context.Context) (*news.Digest, error) {
	runID, err := r.deps.IDGenerator.NewRunID(ctx)
	if err != nil {
		return nil, fmt.Errorf("new run id: %w", err)
	}
	logger := r.deps.Logger.With("run_id", string(runID))
	started := r.deps.Now()

	session, err := newstools.NewSession(newstools.SessionConfig{
		Topics:     r.opts.Topics,
		Sources:    r.opts.Sources,
		MaxResults: r.opts.MaxResults,
		Searcher:   r.deps.Searcher,
		Summarizer: r.opts.Summarizer,
		Logger:     logger,
		Exclude:    r.reported(ctx, logger, started),
	})
	if err != nil {
		return nil, err
	}
	tools, err := newstools.NewRegistry(session)
	if err != nil {
		return nil, fmt.Errorf("new tool registry: %w", err)
	}
	recorder := eventinginmem.New()
	agentOpts := r.opts.Agent
	agentOpts.Events = eventing.Fanout{agentOpts.Events, recorder}
	orchestrator, err := agent.NewOrchestrator(r.deps.Model, tools, agentOpts)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if r.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.opts.RunTimeout)
		defer cancel()
	}
	state, runErr := orchestrator.Run(runCtx, agent.RunInput{
		RunID:        runID,
		SystemPrompt: r.opts.SystemPrompt,
		UserPrompt:   UserPrompt(r.opts.Topics, r.opts.Sources, started.Format(news.DateLayout)),
		Tools:        tools.Definitions(),
	})

	// Bookkeeping outlives a cancelled run so the failure can be diagnosed.
	persistCtx := context.WithoutCancel(ctx)
	r.persist(persistCtx, logger, state, session.Pool())
	stats := session.Stats()
	retries, toolErrors := eventCounts(recorder)
	if runErr != nil {
		logger.Error("run failed",
			"steps", state.Step,
			"tool_calls", state.ToolCalls,
			"tool_errors", toolErrors,
			"model_retries", retries,
			"searches", stats.Searches,
			"pool", stats.Pool,
			tint.Err(runErr),
		)
		return nil, runErr
	}

	digest := news.NewDigest(string(runID), r.deps.Now(), session.Accepted(), r.opts.Summarizer, state.Output)
	logger.Info("digest ready",
		"steps", state.Step,
		"tool_calls", state.ToolCalls,
		"tool_errors", toolErrors,
		"model_retries", retries,
		"pool", stats.Pool,
		"accepted", len(digest.AcceptedArticles),
		"bullets", digest.BulletCount(),
		"elapsed", r.deps.Now().Sub(started).Round(time.Millisecond),
	)

	if r.deps.Archive != nil {
		if err := r.deps.Archive.SaveDigest(persistCtx, digest); err != nil {
			logger.Warn("archive digest failed", tint.Err(err))
		}
	}

	var writeErr error
	for _, writer := range r.deps.Writers {
		if err := writer.Write(ctx, digest); err != nil {
			writeErr = errors.Join(writeErr, err)
		}
	}
	if writeErr != nil {
		return digest, fmt.Errorf("write digest: %w", writeErr)
	}

	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.Notify(ctx, digest); err != nil {
			logger.Warn("notify failed", tint.Err(err))
		}
	}
	return digest, nil
}

func eventCounts(recorder *eventinginmem.Sink) (retries, toolErrors int) {
	for _, event := range recorder.ByType(agent.EventTypeToolResult) {
		if event.ToolResult != nil && event.ToolResult.IsError {
			toolErrors++
		}
	}
	return len(recorder.ByType(agent.EventTypeModelRetry)), toolErrors
}

func (r *Runner) reported(ctx context.Context, logger *slog.Logger, now time.Time) map[string]struct{} {
	if r.deps.Archive == nil || r.opts.SeenWindow <= 0 {
		return nil
	}
	ids, err := r.deps.Archive.RecentArticleIDs(ctx, now.Add(-r.opts.SeenWindow))
	if err != nil {
		logger.Warn("load reported articles failed", tint.Err(err))
		return nil
	}
	logger.Debug("excluding reported articles", "count", len(ids), "window", r.opts.SeenWindow)
	return ids
}

func (r *Runner) persist(ctx context.Context, logger *slog.Logger, state agent.RunState, pool []news.Article) {
	if r.deps.RunStore != nil && state.ID != "" {
		if err := r.deps.RunStore.Save(ctx, state); err != nil {
			logger.Warn("save run failed", tint.Err(err))
		}
	}
	if r.deps.Archive != nil && len(pool) > 0 {
		if err := r.deps.Archive.SaveArticles(ctx, string(state.ID), pool); err != nil {
			logger.Warn("archive articles failed", tint.Err(err))
		}
	}
}
