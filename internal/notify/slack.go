package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Gurpartap/newsagent/news"
	"github.com/Gurpartap/newsagent/policy/retry"
)

const (
	maxBulletsPerMessage = 30
	maxSectionText       = 2900
)

var errSlackTransient = errors.New("slack transient failure")

// Slack posts the digest to an incoming webhook as Block Kit sections, one per
// topic. Throttling and server errors are retried.
type Slack struct {
	webhookURL string
	client     *http.Client
	retry      retry.Policy
}

var _ Notifier = (*Slack)(nil)

func NewSlack(webhookURL string, client *http.Client, policy retry.Policy) (*Slack, error) {
	if strings.TrimSpace(webhookURL) == "" {
		return nil, fmt.Errorf("new slack notifier: webhook url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if policy.Retryable == nil {
		policy.Retryable = func(err error) bool { return errors.Is(err, errSlackTransient) }
	}
	return &Slack{webhookURL: webhookURL, client: client, retry: policy}, nil
}

func (s *Slack) Notify(ctx context.Context, digest *news.Digest) error {
	payload, err := json.Marshal(slackMessage(digest))
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}
	return s.retry.Do(ctx, func(ctx context.Context) error {
		return s.post(ctx, payload)
	}, nil)
}

func (s *Slack) post(ctx context.Context, payload []byte) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %w", errSlackTransient, err)
	}
	defer response.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(response.Body, 4<<10))

	switch {
	case response.StatusCode == http.StatusOK:
		return nil
	case response.StatusCode == http.StatusTooManyRequests || response.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: slack status=%d body=%s", errSlackTransient, response.StatusCode, strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("slack status=%d body=%s", response.StatusCode, strings.TrimSpace(string(body)))
	}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// slackMessage renders the Block Kit payload for digest.
func slackMessage(digest *news.Digest) slackPayload {
	title := fmt.Sprintf("Daily News Digest - %s", digest.Date)
	payload := slackPayload{
		Text: title,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: title}},
		},
	}
	if digest.NoRelevantArticles {
		payload.Blocks = append(payload.Blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "_No relevant articles today._"},
		})
		return payload
	}

	articles := digest.ArticleByID()
	shown := 0
	for _, group := range digest.BulletSummary {
		if shown >= maxBulletsPerMessage {
			break
		}
		var b strings.Builder
		fmt.Fprintf(&b, "*%s*\n", escapeMrkdwn(group.Topic))
		for i, bullet := range group.Bullets {
			if shown >= maxBulletsPerMessage {
				break
			}
			line := "• " + escapeMrkdwn(bullet)
			if url := articles[group.ArticleID(i)].URL; url != "" {
				line += fmt.Sprintf(" <%s|link>", url)
			}
			if b.Len()+len(line)+1 > maxSectionText {
				break
			}
			b.WriteString(line)
			b.WriteString("\n")
			shown++
		}
		payload.Blocks = append(payload.Blocks,
			slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: strings.TrimRight(b.String(), "\n")}},
			slackBlock{Type: "divider"},
		)
	}

	footer := fmt.Sprintf("%d articles, %d bullets", len(digest.AcceptedArticles), digest.BulletCount())
	if total := digest.BulletCount(); shown < total {
		footer = fmt.Sprintf("Showing %d of %d bullets", shown, total)
	}
	payload.Blocks = append(payload.Blocks, slackBlock{
		Type:     "context",
		Elements: []slackText{{Type: "mrkdwn", Text: footer}},
	})
	return payload
}

func escapeMrkdwn(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
