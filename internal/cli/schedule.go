package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/Gurpartap/newsagent/agent"
	"github.com/Gurpartap/newsagent/internal/pipeline"
)

func (a *app) scheduleCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Produce a digest on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			expr, err := cronexpr.Parse(cfg.Schedule.Cron)
			if err != nil {
				return fmt.Errorf("parse schedule %q: %w", cfg.Schedule.Cron, err)
			}
			ctx, stop := a.withMetrics(cmd.Context(), cfg, logger)
			defer stop()

			runner, closeRunner, err := pipeline.Build(ctx, cfg, a.env(logger, flags))
			if err != nil {
				return err
			}
			defer closeRunner()

			s := &scheduler{
				next: expr.Next,
				run: func(ctx context.Context) error {
					_, err := runOnce(ctx, runner, logger)
					return err
				},
				logger: logger,
			}
			return s.loop(ctx)
		},
	}
	cmd.Flags().String("cron", "", `cron expression, e.g. "0 7 * * *" (overrides schedule.cron)`)
	cmd.Flags().BoolVar(&flags.noNotify, "no-notify", false, "skip the Slack notification")
	_ = a.v.BindPFlag("schedule.cron", cmd.Flags().Lookup("cron"))
	return cmd
}

// scheduler fires run at every cron tick. A failed run is logged and the loop
// waits for the next tick; runs never overlap.
type scheduler struct {
	next   func(time.Time) time.Time
	run    func(context.Context) error
	logger *slog.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

func (s *scheduler) loop(ctx context.Context) error {
	if s.now == nil {
		s.now = time.Now
	}
	if s.after == nil {
		s.after = time.After
	}
	for {
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return nil
		}
		now := s.now()
		at := s.next(now)
		if at.IsZero() {
			return errors.New("schedule has no future occurrence")
		}
		s.logger.Info("next digest scheduled", "at", at.Format(time.RFC3339), "in", at.Sub(now).Round(time.Second))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.after(at.Sub(now)):
		}

		if err := s.run(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("scheduler stopped")
				return nil
			}
			attrs := []any{tint.Err(err)}
			if cause, ok := agent.CauseOf(err); ok {
				attrs = append(attrs, "cause", string(cause))
			}
			s.logger.Error("scheduled digest failed", attrs...)
		}
	}
}
