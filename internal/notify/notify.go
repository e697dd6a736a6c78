// Package notify announces finished digests. Delivery failures are reported to
// the caller, which logs them; they never fail a run.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Gurpartap/newsagent/news"
)

type Notifier interface {
	Notify(ctx context.Context, digest *news.Digest) error
}

// Log writes a one-line digest summary to the logger.
type Log struct {
	Logger *slog.Logger
}

var _ Notifier = Log{}

func (l Log) Notify(ctx context.Context, digest *news.Digest) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topics := make([]string, 0, len(digest.BulletSummary))
	for _, group := range digest.BulletSummary {
		topics = append(topics, group.Topic)
	}
	logger.InfoContext(ctx, "digest ready",
		"run_id", digest.RunID,
		"date", digest.Date,
		"articles", len(digest.AcceptedArticles),
		"bullets", digest.BulletCount(),
		"topics", topics,
		"no_relevant_articles", digest.NoRelevantArticles,
	)
	return nil
}

// Multi notifies every notifier and joins their errors.
type Multi []Notifier

var _ Notifier = Multi(nil)

func (m Multi) Notify(ctx context.Context, digest *news.Digest) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, digest); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
