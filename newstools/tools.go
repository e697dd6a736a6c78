package newstools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/Gurpartap/newsagent/agent"
	"github.com/Gurpartap/newsagent/news"
	"github.com/Gurpartap/newsagent/tooling/registry"
)

const (
	SearchNewsTool        = "search_news"
	FilterArticlesTool    = "filter_articles"
	SummarizeArticlesTool = "summarize_articles"
)

var articleSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":               map[string]any{"type": "string"},
		"title":            map[string]any{"type": "string"},
		"url":              map[string]any{"type": "string"},
		"source_name":      map[string]any{"type": "string"},
		"published_at":     map[string]any{"type": []any{"string", "null"}, "format": "date-time"},
		"raw_snippet":      map[string]any{"type": "string"},
		"topics_matched":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"relevance_score":  map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"relevance_reason": map[string]any{"type": "string"},
		"filter_method":    map[string]any{"type": "string"},
	},
	"required": []any{"title"},
}

var stringList = map[string]any{
	"type":  "array",
	"items": map[string]any{"type": "string"},
}

// Tools binds the three news tools to a session.
func Tools(session *Session) []registry.Tool {
	return []registry.Tool{
		{
			Definition: agent.ToolDefinition{
				Name:        SearchNewsTool,
				Description: "Search configured news sources for recent articles. Returns a JSON list of articles with id, title, url, source_name, published_at and raw_snippet. Zero results is a valid answer.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query":       map[string]any{"type": "string", "minLength": 1},
						"sources":     stringList,
						"max_results": map[string]any{"type": "integer", "minimum": 1, "maximum": 50},
					},
					"required":             []any{"query"},
					"additionalProperties": false,
				},
			},
			Handler: session.handleSearch,
		},
		{
			Definition: agent.ToolDefinition{
				Name:        FilterArticlesTool,
				Description: "Keep articles that mention a configured topic or keyword and drop duplicates. Accepted articles carry topics_matched, relevance_score and relevance_reason. Without candidates every article found so far is filtered; without topics and keywords the configured interests apply.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"candidates": map[string]any{"type": "array", "items": articleSchema},
						"topics":     stringList,
						"keywords":   stringList,
					},
					"additionalProperties": false,
				},
			},
			Handler: session.handleFilter,
		},
		{
			Definition: agent.ToolDefinition{
				Name:        SummarizeArticlesTool,
				Description: "Compress accepted articles into one bullet each, grouped by first matched topic. Without articles the accepted set of this run is summarized. Returns status no_relevant_articles when there is nothing to summarize.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"articles": map[string]any{"type": "array", "items": articleSchema},
					},
					"additionalProperties": false,
				},
			},
			Handler: session.handleSummarize,
		},
	}
}

// NewRegistry returns a registry holding the news tools of one session.
func NewRegistry(session *Session) (*registry.Registry, error) {
	return registry.New(Tools(session)...)
}

type searchArgs struct {
	Query      string   `json:"query"`
	Sources    []string `json:"sources"`
	MaxResults int      `json:"max_results"`
}

type filterArgs struct {
	Candidates []news.Article `json:"candidates"`
	Topics     []string       `json:"topics"`
	Keywords   []string       `json:"keywords"`
}

type summarizeArgs struct {
	Articles []news.Article `json:"articles"`
}

type searchResult struct {
	Status   string         `json:"status"`
	Count    int            `json:"count"`
	Articles []news.Article `json:"articles"`
}

type filterResult struct {
	Status        string         `json:"status"`
	OriginalCount int            `json:"original_count"`
	FilteredCount int            `json:"filtered_count"`
	Articles      []news.Article `json:"articles"`
}

type summarizeResult struct {
	Status string            `json:"status"`
	Count  int               `json:"count,omitempty"`
	Groups []news.TopicGroup `json:"groups,omitempty"`
}

func (s *Session) handleSearch(ctx context.Context, arguments map[string]any) (string, error) {
	var args searchArgs
	if err := decodeArguments(arguments, &args); err != nil {
		return "", err
	}
	articles, err := s.Search(ctx, news.Query{Text: args.Query, Sources: args.Sources, MaxResults: args.MaxResults})
	if err != nil {
		return "", fmt.Errorf("search %q: %w", args.Query, err)
	}
	return encodeResult(searchResult{Status: "success", Count: len(articles), Articles: articles})
}

func (s *Session) handleFilter(_ context.Context, arguments map[string]any) (string, error) {
	var args filterArgs
	if err := decodeArguments(arguments, &args); err != nil {
		return "", err
	}
	original := len(args.Candidates)
	if args.Candidates == nil {
		original = len(s.Pool())
	}
	accepted := s.Filter(args.Candidates, args.Topics, args.Keywords)
	return encodeResult(filterResult{
		Status:        "success",
		OriginalCount: original,
		FilteredCount: len(accepted),
		Articles:      accepted,
	})
}

func (s *Session) handleSummarize(_ context.Context, arguments map[string]any) (string, error) {
	var args summarizeArgs
	if err := decodeArguments(arguments, &args); err != nil {
		return "", err
	}
	summary := s.Summarize(args.Articles)
	if summary.NoRelevantArticles {
		return encodeResult(summarizeResult{Status: "no_relevant_articles"})
	}
	count := 0
	for _, group := range summary.Groups {
		count += len(group.Bullets)
	}
	return encodeResult(summarizeResult{Status: "success", Count: count, Groups: summary.Groups})
}

// decodeArguments maps validated arguments onto out using the json tags.
func decodeArguments(arguments map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     out,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := decoder.Decode(arguments); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}

func encodeResult(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(raw), nil
}
