// Package config loads newsagent settings from newsagent.yaml, NEWSAGENT_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/Gurpartap/newsagent/news"
	"github.com/Gurpartap/newsagent/search/rss"
)

const (
	EnvPrefix = "NEWSAGENT"
	FileName  = "newsagent"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// Output formats understood by the writers.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "md"
	FormatYAML     = "yaml"
)

type Config struct {
	Log      LogConfig        `mapstructure:"log"`
	Model    ModelConfig      `mapstructure:"model"`
	Agent    AgentConfig      `mapstructure:"agent"`
	Topics   news.TopicConfig `mapstructure:"topics"`
	Search   SearchConfig     `mapstructure:"search"`
	Summary  SummaryConfig    `mapstructure:"summary"`
	Output   OutputConfig     `mapstructure:"output"`
	Archive  ArchiveConfig    `mapstructure:"archive"`
	Notify   NotifyConfig     `mapstructure:"notify"`
	Schedule ScheduleConfig   `mapstructure:"schedule"`
	Metrics  MetricsConfig    `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string    `mapstructure:"level"`
	Format LogFormat `mapstructure:"format"`
}

// ModelConfig points at any OpenAI-compatible chat-completions endpoint. The
// default is a local Ollama server.
type ModelConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Name          string        `mapstructure:"name"`
	Temperature   float64       `mapstructure:"temperature"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
	Redact        bool          `mapstructure:"redact"`
}

type AgentConfig struct {
	MaxIterations    int           `mapstructure:"max_iterations"`
	ToolConcurrency  int           `mapstructure:"tool_concurrency"`
	ToolFailureLimit int           `mapstructure:"tool_failure_limit"`
	ToolTimeout      time.Duration `mapstructure:"tool_timeout"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
	SystemPrompt     string        `mapstructure:"system_prompt"`
	Retry            RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type SearchConfig struct {
	MaxResults int              `mapstructure:"max_results"`
	Sources    []string         `mapstructure:"sources"`
	Perplexity PerplexityConfig `mapstructure:"perplexity"`
	RSS        RSSConfig        `mapstructure:"rss"`
}

type PerplexityConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	Model         string `mapstructure:"model"`
	Recency       string `mapstructure:"recency"`
	RatePerMinute int    `mapstructure:"rate_per_minute"`
}

type RSSConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Feeds   []rss.Feed    `mapstructure:"feeds"`
	MaxAge  time.Duration `mapstructure:"max_age"`
}

type SummaryConfig struct {
	BulletBudget int `mapstructure:"bullet_budget"`
}

type OutputConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

// ArchiveConfig enables the SQLite archive when Path is set. Articles reported
// within SeenWindow are left out of new digests; zero disables that.
type ArchiveConfig struct {
	Path       string        `mapstructure:"path"`
	SeenWindow time.Duration `mapstructure:"seen_window"`
}

type NotifyConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SlackWebhookURL string `mapstructure:"slack_webhook_url"`
}

type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// New returns a viper instance with every key defaulted, so environment
// overrides work for keys absent from the file.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", string(LogFormatText))

	v.SetDefault("model.base_url", "http://localhost:11434/v1")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.name", "llama3.2")
	v.SetDefault("model.temperature", 0.2)
	v.SetDefault("model.timeout", "60s")
	v.SetDefault("model.rate_per_minute", 0)
	v.SetDefault("model.redact", true)

	v.SetDefault("agent.max_iterations", 10)
	v.SetDefault("agent.tool_concurrency", 4)
	v.SetDefault("agent.tool_failure_limit", 3)
	v.SetDefault("agent.tool_timeout", "30s")
	v.SetDefault("agent.run_timeout", "10m")
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("agent.retry.max_retries", 3)
	v.SetDefault("agent.retry.initial_interval", "1s")
	v.SetDefault("agent.retry.max_interval", "30s")

	v.SetDefault("topics.topics", []string{})
	v.SetDefault("topics.keywords", []string{})
	v.SetDefault("topics.exclude_keywords", []string{})

	v.SetDefault("search.max_results", news.DefaultMaxResults)
	v.SetDefault("search.sources", []string{})
	v.SetDefault("search.perplexity.enabled", false)
	v.SetDefault("search.perplexity.api_key", "")
	v.SetDefault("search.perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("search.perplexity.model", "sonar")
	v.SetDefault("search.perplexity.recency", "day")
	v.SetDefault("search.perplexity.rate_per_minute", 20)
	v.SetDefault("search.rss.enabled", false)
	v.SetDefault("search.rss.max_age", "48h")

	v.SetDefault("summary.bullet_budget", news.DefaultBulletBudget)
	v.SetDefault("output.dir", "data/summaries")
	v.SetDefault("output.formats", []string{FormatJSON, FormatMarkdown})
	v.SetDefault("archive.path", "")
	v.SetDefault("archive.seen_window", "0s")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.slack_webhook_url", "")
	v.SetDefault("schedule.cron", "0 7 * * *")
	v.SetDefault("metrics.addr", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional provider variables are honoured as fallbacks.
	_ = v.BindEnv("model.api_key", EnvPrefix+"_MODEL_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("search.perplexity.api_key", EnvPrefix+"_SEARCH_PERPLEXITY_API_KEY", "PERPLEXITY_API_KEY")
	_ = v.BindEnv("notify.slack_webhook_url", EnvPrefix+"_NOTIFY_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL")
	return v
}

// Load reads path, or newsagent.yaml from the working directory and
// $XDG_CONFIG_HOME/newsagent when path is empty. A missing default file is not an
// error; a missing explicit file is.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "newsagent"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Topics = cfg.Topics.Normalized()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("validate config: unsupported log.format %q (allowed: %q, %q)", c.Log.Format, LogFormatText, LogFormatJSON)
	}

	if strings.TrimSpace(c.Model.Name) == "" {
		return errors.New("validate config: model.name is required")
	}
	if strings.TrimSpace(c.Model.BaseURL) == "" {
		return errors.New("validate config: model.base_url is required")
	}
	if c.Model.Timeout <= 0 {
		return errors.New("validate config: model.timeout must be > 0")
	}
	if c.Agent.MaxIterations <= 0 {
		return errors.New("validate config: agent.max_iterations must be > 0")
	}
	if c.Agent.ToolTimeout <= 0 {
		return errors.New("validate config: agent.tool_timeout must be > 0")
	}

	if !c.Search.Perplexity.Enabled && !c.Search.RSS.Enabled {
		return errors.New("validate config: enable at least one of search.perplexity and search.rss")
	}
	if c.Search.Perplexity.Enabled && strings.TrimSpace(c.Search.Perplexity.APIKey) == "" {
		return errors.New("validate config: search.perplexity requires an api key (NEWSAGENT_SEARCH_PERPLEXITY_API_KEY or PERPLEXITY_API_KEY)")
	}
	if c.Search.RSS.Enabled && len(c.Search.RSS.Feeds) == 0 {
		return errors.New("validate config: search.rss requires at least one feed")
	}

	for _, format := range c.Output.Formats {
		switch format {
		case FormatJSON, FormatCSV, FormatMarkdown, FormatYAML:
		default:
			return fmt.Errorf("validate config: unsupported output format %q (allowed: %q, %q, %q, %q)", format, FormatJSON, FormatCSV, FormatMarkdown, FormatYAML)
		}
	}
	if c.Notify.Enabled && strings.TrimSpace(c.Notify.SlackWebhookURL) == "" {
		return errors.New("validate config: notify requires a slack webhook url")
	}
	return nil
}

func ParseLogLevel(input string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf(
			"validate config: unsupported log.level %q (allowed: %q, %q, %q, %q)",
			input,
			slog.LevelDebug.String(),
			slog.LevelInfo.String(),
			slog.LevelWarn.String(),
			slog.LevelError.String(),
		)
	}
}
