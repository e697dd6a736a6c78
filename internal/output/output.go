// Package output renders digests as JSON, CSV, YAML or Markdown and writes
// them to disk.
package output

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Gurpartap/newsagent/internal/config"
	"github.com/Gurpartap/newsagent/news"
)

// Writer delivers a finished digest somewhere.
type Writer interface {
	Write(ctx context.Context, digest *news.Digest) error
}

// Extension maps a format to its file extension.
func Extension(format string) string {
	switch format {
	case config.FormatMarkdown:
		return "md"
	default:
		return format
	}
}

// Encode renders digest in format.
func Encode(w io.Writer, format string, digest *news.Digest) error {
	switch format {
	case config.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		encoder.SetEscapeHTML(false)
		return encoder.Encode(digest)
	case config.FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(digest); err != nil {
			return err
		}
		return encoder.Close()
	case config.FormatCSV:
		return encodeCSV(w, digest)
	case config.FormatMarkdown:
		_, err := io.WriteString(w, Markdown(digest))
		return err
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

var csvHeader = []string{"topic", "title", "source", "url", "published_at", "bullet", "relevance_score", "relevance_reason"}

// encodeCSV writes one row per bullet, in summary order.
func encodeCSV(w io.Writer, digest *news.Digest) error {
	articles := digest.ArticleByID()
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, group := range digest.BulletSummary {
		for i, bullet := range group.Bullets {
			article := articles[group.ArticleID(i)]
			published := ""
			if article.PublishedAt != nil {
				published = article.PublishedAt.UTC().Format(time.RFC3339)
			}
			score := ""
			if article.FilterMethod != "" {
				score = strconv.FormatFloat(article.RelevanceScore, 'f', 2, 64)
			}
			record := []string{group.Topic, article.Title, article.SourceName, article.URL, published, bullet, score, article.RelevanceReason}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// Markdown renders the bullet summary grouped by topic, linking each bullet to
// its article.
func Markdown(digest *news.Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Daily News Summary - %s\n\n", digest.Date)
	if digest.NoRelevantArticles {
		b.WriteString("_No relevant articles today._\n")
		return b.String()
	}

	articles := digest.ArticleByID()
	fmt.Fprintf(&b, "%d articles in %d topics.\n", len(digest.AcceptedArticles), len(digest.BulletSummary))
	for _, group := range digest.BulletSummary {
		fmt.Fprintf(&b, "\n## %s\n\n", group.Topic)
		for i, bullet := range group.Bullets {
			article := articles[group.ArticleID(i)]
			b.WriteString("- ")
			b.WriteString(bullet)
			switch {
			case article.URL != "" && article.SourceName != "":
				fmt.Fprintf(&b, " ([%s](%s))", article.SourceName, article.URL)
			case article.URL != "":
				fmt.Fprintf(&b, " (<%s>)", article.URL)
			case article.SourceName != "":
				fmt.Fprintf(&b, " (%s)", article.SourceName)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
