package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Gurpartap/newsagent/adapters/idgen"
	"github.com/Gurpartap/newsagent/agent"
	"github.com/Gurpartap/newsagent/eventing"
	"github.com/Gurpartap/newsagent/eventing/logsink"
	"github.com/Gurpartap/newsagent/eventing/promsink"
	"github.com/Gurpartap/newsagent/gateway/openai"
	"github.com/Gurpartap/newsagent/internal/archive"
	"github.com/Gurpartap/newsagent/internal/config"
	"github.com/Gurpartap/newsagent/internal/notify"
	"github.com/Gurpartap/newsagent/internal/output"
	"github.com/Gurpartap/newsagent/news"
	"github.com/Gurpartap/newsagent/policy/ratelimit"
	"github.com/Gurpartap/newsagent/policy/redact"
	"github.com/Gurpartap/newsagent/policy/retry"
	"github.com/Gurpartap/newsagent/runstore/inmem"
	"github.com/Gurpartap/newsagent/search"
	"github.com/Gurpartap/newsagent/search/perplexity"
	"github.com/Gurpartap/newsagent/search/rss"
)

// Env carries process-level choices that are not part of the config file.
type Env struct {
	Logger *slog.Logger
	// Registerer receives the run metrics. Nil disables them.
	Registerer prometheus.Registerer
	// Stdout, when set, also receives the digest encoded as StdoutFormat.
	Stdout       io.Writer
	StdoutFormat string
	NoNotify     bool
	// HTTPClient overrides the client of every outbound adapter.
	HTTPClient *http.Client
}

// Build composes a Runner from configuration. The returned close function
// releases the archive and must be called once the runner is no longer used.
func Build(ctx context.Context, cfg config.Config, env Env) (*Runner, func() error, error) {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	closeFn := func() error { return nil }

	model, err := buildModel(cfg.Model, env.HTTPClient)
	if err != nil {
		return nil, closeFn, err
	}
	searcher, err := buildSearcher(cfg.Search, env.HTTPClient, logger)
	if err != nil {
		return nil, closeFn, err
	}

	sinks := eventing.Fanout{logsink.New(logger)}
	if env.Registerer != nil {
		metrics, err := promsink.New(env.Registerer)
		if err != nil {
			return nil, closeFn, fmt.Errorf("register metrics: %w", err)
		}
		sinks = append(sinks, metrics)
	}

	deps := Dependencies{
		Model:       model,
		Searcher:    searcher,
		IDGenerator: idgen.UUID{},
		RunStore:    inmem.New(),
		Events:      sinks,
		Logger:      logger,
	}

	if cfg.Archive.Path != "" {
		store, err := archive.Open(ctx, cfg.Archive.Path)
		if err != nil {
			return nil, closeFn, err
		}
		deps.Archive = store
		deps.RunStore = store
		closeFn = store.Close
	}

	if cfg.Output.Dir != "" && len(cfg.Output.Formats) > 0 {
		deps.Writers = append(deps.Writers, &output.Dir{Path: cfg.Output.Dir, Formats: cfg.Output.Formats, Logger: logger})
	}
	if env.Stdout != nil && env.StdoutFormat != "" {
		deps.Writers = append(deps.Writers, &output.Stream{Out: env.Stdout, Format: env.StdoutFormat})
	}

	notifiers := notify.Multi{notify.Log{Logger: logger}}
	if cfg.Notify.Enabled && !env.NoNotify {
		slack, err := notify.NewSlack(cfg.Notify.SlackWebhookURL, env.HTTPClient, retry.DefaultPolicy())
		if err != nil {
			_ = closeFn()
			return nil, func() error { return nil }, err
		}
		notifiers = append(notifiers, slack)
	}
	deps.Notifier = notifiers

	runner, err := New(deps, Options{
		Topics:       cfg.Topics,
		Sources:      cfg.Search.Sources,
		MaxResults:   cfg.Search.MaxResults,
		Summarizer:   news.NewSummarizer(cfg.Summary.BulletBudget),
		SystemPrompt: cfg.Agent.SystemPrompt,
		RunTimeout:   cfg.Agent.RunTimeout,
		SeenWindow:   cfg.Archive.SeenWindow,
		Agent: agent.Options{
			MaxIterations: cfg.Agent.MaxIterations,
			ModelRetry: retry.Policy{
				MaxRetries:      cfg.Agent.Retry.MaxRetries,
				InitialInterval: cfg.Agent.Retry.InitialInterval,
				MaxInterval:     cfg.Agent.Retry.MaxInterval,
			},
			ModelTimeout:     cfg.Model.Timeout,
			ToolTimeout:      cfg.Agent.ToolTimeout,
			ToolConcurrency:  cfg.Agent.ToolConcurrency,
			ToolFailureLimit: cfg.Agent.ToolFailureLimit,
		},
	})
	if err != nil {
		_ = closeFn()
		return nil, func() error { return nil }, err
	}
	return runner, closeFn, nil
}

func buildModel(cfg config.ModelConfig, client *http.Client) (agent.Model, error) {
	temperature := cfg.Temperature
	adapter, err := openai.New(openai.Config{
		APIKey:      cfg.APIKey,
		Model:       cfg.Name,
		BaseURL:     cfg.BaseURL,
		Temperature: &temperature,
		HTTPClient:  client,
	})
	if err != nil {
		return nil, err
	}
	var model agent.Model = adapter
	if cfg.Redact {
		model = redact.NewModel(model)
	}
	if cfg.RatePerMinute > 0 {
		model = ratelimit.NewModel(model, ratelimit.PerMinute(cfg.RatePerMinute, 1))
	}
	return model, nil
}

func buildSearcher(cfg config.SearchConfig, client *http.Client, logger *slog.Logger) (news.Searcher, error) {
	var providers []search.Provider
	if cfg.Perplexity.Enabled {
		px, err := perplexity.New(perplexity.Config{
			APIKey:     cfg.Perplexity.APIKey,
			BaseURL:    cfg.Perplexity.BaseURL,
			Model:      cfg.Perplexity.Model,
			Recency:    cfg.Perplexity.Recency,
			HTTPClient: client,
			Logger:     logger.With("provider", "perplexity"),
		})
		if err != nil {
			return nil, err
		}
		var searcher news.Searcher = px
		if cfg.Perplexity.RatePerMinute > 0 {
			searcher = ratelimit.NewSearcher(searcher, ratelimit.PerMinute(cfg.Perplexity.RatePerMinute, 1))
		}
		providers = append(providers, search.Provider{Name: "perplexity", Searcher: searcher})
	}
	if cfg.RSS.Enabled {
		feeds, err := rss.New(rss.Config{
			Feeds:      cfg.RSS.Feeds,
			MaxAge:     cfg.RSS.MaxAge,
			HTTPClient: client,
			Logger:     logger.With("provider", "rss"),
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, search.Provider{Name: "rss", Searcher: feeds})
	}
	if len(providers) == 1 {
		return providers[0].Searcher, nil
	}
	return search.NewMulti(logger, providers...)
}
