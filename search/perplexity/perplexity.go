// Package perplexity searches the web for news through Perplexity's
// chat-completions endpoint and parses the returned article list.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/Gurpartap/newsagent/news"
)

const (
	DefaultBaseURL = "https://api.perplexity.ai"
	DefaultModel   = "sonar"
	DefaultRecency = "day"

	defaultTimeout  = 30 * time.Second
	maxResponseSize = 4 << 20
	systemPrompt    = "You are a news aggregator. Return news articles in structured JSON format."
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Recency is Perplexity's search_recency_filter: hour, day, week or month.
	Recency    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// Client implements news.Searcher. A query naming several sources is split
// into one request per source, issued concurrently.
type Client struct {
	apiKey      string
	model       string
	recency     string
	endpointURL string
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time
}

var _ news.Searcher = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("new perplexity client: api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	recency := strings.TrimSpace(cfg.Recency)
	if recency == "" {
		recency = DefaultRecency
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		apiKey:      apiKey,
		model:       model,
		recency:     recency,
		endpointURL: strings.TrimRight(baseURL, "/") + "/chat/completions",
		httpClient:  httpClient,
		logger:      logger,
		now:         now,
	}, nil
}

func (c *Client) Search(ctx context.Context, query news.Query) ([]news.Article, error) {
	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = news.DefaultMaxResults
	}
	if len(query.Sources) == 0 {
		return c.searchOne(ctx, query.Text, "", maxResults)
	}

	perSource := make([][]news.Article, len(query.Sources))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, source := range query.Sources {
		group.Go(func() error {
			articles, err := c.searchOne(groupCtx, query.Text, source, maxResults)
			if err != nil {
				return err
			}
			perSource[i] = articles
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var out []news.Article
	for _, articles := range perSource {
		out = append(out, articles...)
	}
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

type chatRequest struct {
	Model         string        `json:"model"`
	Messages      []chatMessage `json:"messages"`
	Temperature   float64       `json:"temperature"`
	RecencyFilter string        `json:"search_recency_filter,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) searchOne(ctx context.Context, text, source string, maxResults int) ([]news.Article, error) {
	search := text
	if source != "" {
		search = fmt.Sprintf("%s site:%s", text, strings.ToLower(source))
	}
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(search, maxResults)},
		},
		Temperature:   0.2,
		RecencyFilter: c.recency,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("perplexity request encode: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("perplexity request build: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("perplexity request execute: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("perplexity response read: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		detail := gjson.GetBytes(body, "error.message").String()
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("perplexity response status=%d: %s", response.StatusCode, detail)
	}

	articles := ParseResponse(body, source, c.now())
	c.logger.Debug("perplexity search", "query", search, "articles", len(articles))
	if len(articles) > maxResults {
		articles = articles[:maxResults]
	}
	return articles, nil
}

func userPrompt(search string, maxResults int) string {
	return fmt.Sprintf(`Find the %d most recent news articles about: %s

For each article, provide:
- title: Article headline
- url: Article URL
- snippet: Brief excerpt (2-3 sentences)
- source: Publication name
- published_date: Publication date (YYYY-MM-DD format)

Return as JSON array with these fields.`, maxResults, search)
}

// ParseResponse extracts articles from a chat-completions body. The JSON array
// embedded in the answer is preferred; without one, each citation becomes an
// article. An answer with neither yields nothing. Articles missing a
// published_date carry no timestamp rather than a guessed one.
func ParseResponse(body []byte, source string, now time.Time) []news.Article {
	content := gjson.GetBytes(body, "choices.0.message.content").String()

	var out []news.Article
	if list, ok := embeddedArray(content); ok {
		list.ForEach(func(_, item gjson.Result) bool {
			if !item.IsObject() {
				return true
			}
			title := strings.TrimSpace(item.Get("title").String())
			link := strings.TrimSpace(item.Get("url").String())
			if title == "" && link == "" {
				return true
			}
			if title == "" {
				title = titleFromURL(link)
			}
			name := strings.TrimSpace(item.Get("source").String())
			if name == "" {
				name = fallbackSource(source, link)
			}
			out = append(out, news.Article{
				Title:       title,
				URL:         link,
				SourceName:  name,
				PublishedAt: parseDate(item.Get("published_date").String(), now),
				RawSnippet:  strings.TrimSpace(item.Get("snippet").String()),
			}.WithID())
			return true
		})
	}
	if len(out) > 0 {
		return out
	}

	gjson.GetBytes(body, "citations").ForEach(func(_, citation gjson.Result) bool {
		link := strings.TrimSpace(citation.String())
		if link == "" {
			return true
		}
		out = append(out, news.Article{
			Title:      titleFromURL(link),
			URL:        link,
			SourceName: fallbackSource(source, link),
		}.WithID())
		return true
	})
	return out
}

// embeddedArray finds the outermost JSON array in free text, e.g. inside a
// fenced code block.
func embeddedArray(content string) (gjson.Result, bool) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return gjson.Result{}, false
	}
	raw := content[start : end+1]
	if !gjson.Valid(raw) {
		return gjson.Result{}, false
	}
	return gjson.Parse(raw), true
}

func parseDate(value string, now time.Time) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", news.DateLayout} {
		if parsed, err := time.Parse(layout, value); err == nil {
			if parsed.After(now) {
				return nil
			}
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}

func fallbackSource(source, link string) string {
	if source != "" {
		return source
	}
	if parsed, err := url.Parse(link); err == nil && parsed.Host != "" {
		return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	}
	return "Perplexity"
}

func titleFromURL(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return strings.TrimPrefix(parsed.Hostname(), "www.")
	}
	last = strings.TrimSuffix(last, ".html")
	words := strings.FieldsFunc(last, func(r rune) bool { return r == '-' || r == '_' })
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}
