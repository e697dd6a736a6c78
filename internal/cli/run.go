package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/Gurpartap/newsagent/internal/config"
	"github.com/Gurpartap/newsagent/internal/pipeline"
	"github.com/Gurpartap/newsagent/news"
)

type runFlags struct {
	noNotify bool
	format   string
}

func (a *app) runCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Produce today's digest once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			if err := validateStdoutFormat(flags.format); err != nil {
				return err
			}
			ctx, stop := a.withMetrics(cmd.Context(), cfg, logger)
			defer stop()

			runner, closeRunner, err := pipeline.Build(ctx, cfg, a.env(logger, flags))
			if err != nil {
				return err
			}
			defer closeRunner()

			_, err = runOnce(ctx, runner, logger)
			return err
		},
	}
	cmd.Flags().BoolVar(&flags.noNotify, "no-notify", false, "skip the Slack notification")
	cmd.Flags().StringVar(&flags.format, "format", "", "also print the digest to stdout as json, csv, md or yaml")
	cmd.Flags().String("output-dir", "", "directory for summary files (overrides output.dir)")
	_ = a.v.BindPFlag("output.dir", cmd.Flags().Lookup("output-dir"))
	return cmd
}

func (a *app) env(logger *slog.Logger, flags runFlags) pipeline.Env {
	env := pipeline.Env{
		Logger:   logger,
		NoNotify: flags.noNotify,
	}
	if a.registry != nil {
		env.Registerer = a.registry
	}
	if flags.format != "" {
		env.Stdout = a.stdout
		env.StdoutFormat = flags.format
	}
	return env
}

// withMetrics starts the metrics endpoint when configured. stop shuts it down.
func (a *app) withMetrics(ctx context.Context, cfg config.Config, logger *slog.Logger) (context.Context, func()) {
	if cfg.Metrics.Addr == "" {
		return ctx, func() {}
	}
	a.registry = newRegistry()
	ctx, cancel := context.WithCancel(ctx)
	wait, err := serveMetrics(ctx, cfg.Metrics.Addr, a.registry, logger)
	if err != nil {
		logger.Warn("metrics disabled", "addr", cfg.Metrics.Addr, tint.Err(err))
		return ctx, cancel
	}
	return ctx, func() {
		cancel()
		wait()
	}
}

func runOnce(ctx context.Context, runner *pipeline.Runner, logger *slog.Logger) (*news.Digest, error) {
	digest, err := runner.Run(ctx)
	if err != nil {
		return digest, fmt.Errorf("run digest: %w", err)
	}
	if digest.NoRelevantArticles {
		logger.Info("no relevant articles today", "run_id", digest.RunID)
	}
	return digest, nil
}

func validateStdoutFormat(format string) error {
	switch format {
	case "", config.FormatJSON, config.FormatCSV, config.FormatMarkdown, config.FormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported --format %q (allowed: %q, %q, %q, %q)", format, config.FormatJSON, config.FormatCSV, config.FormatMarkdown, config.FormatYAML)
	}
}
