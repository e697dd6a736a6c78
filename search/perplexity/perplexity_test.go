package perplexity

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gurpartap/newsagent/news"
)

var fixedNow = time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)

func completion(t *testing.T, content string, citations ...string) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices":   []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		"citations": citations,
	})
	require.NoError(t, err)
	return string(body)
}

func TestParseResponse_EmbeddedArray(t *testing.T) {
	t.Parallel()

	content := "Here you go:\n```json\n[" +
		`{"title":"AI chip export rules","url":"https://www.reuters.com/tech/ai-chips","snippet":"New rules. More text.","source":"Reuters","published_date":"2026-10-17"},` +
		`{"title":"","url":"https://example.com/climate-talks-open","snippet":"Delegates met."},` +
		`{"title":"Tomorrow's news","url":"https://example.com/future","published_date":"2026-12-01"},` +
		`"not an object"` +
		"]\n```"
	articles := ParseResponse([]byte(completion(t, content)), "", fixedNow)

	require.Len(t, articles, 3)
	assert.Equal(t, "AI chip export rules", articles[0].Title)
	assert.Equal(t, "Reuters", articles[0].SourceName)
	require.NotNil(t, articles[0].PublishedAt)
	assert.Equal(t, "2026-10-17", articles[0].PublishedAt.Format(news.DateLayout))
	assert.NotEmpty(t, articles[0].ID)

	assert.Equal(t, "Climate Talks Open", articles[1].Title)
	assert.Equal(t, "example.com", articles[1].SourceName)
	assert.Nil(t, articles[1].PublishedAt)

	assert.Nil(t, articles[2].PublishedAt, "future dates are dropped")
}

func TestParseResponse_CitationFallback(t *testing.T) {
	t.Parallel()

	body := completion(t, "No structured data today.", "https://www.bbc.co.uk/news/ai-regulation", "")
	articles := ParseResponse([]byte(body), "BBC", fixedNow)

	require.Len(t, articles, 1)
	assert.Equal(t, "Ai Regulation", articles[0].Title)
	assert.Equal(t, "BBC", articles[0].SourceName)
	assert.Equal(t, "https://www.bbc.co.uk/news/ai-regulation", articles[0].URL)
}

func TestParseResponse_NothingUsable(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ParseResponse([]byte(completion(t, "I could not find anything.")), "", fixedNow))
	assert.Empty(t, ParseResponse([]byte(`{"choices":[]}`), "", fixedNow))
	assert.Empty(t, ParseResponse([]byte(completion(t, "[broken")), "", fixedNow))
}

func TestSearch_SplitsSourcesAndKeepsOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var prompts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pplx-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		var payload chatRequest
		if !assert.NoError(t, json.Unmarshal(raw, &payload)) {
			return
		}
		assert.Equal(t, "sonar", payload.Model)
		assert.Equal(t, "day", payload.RecencyFilter)
		prompt := payload.Messages[1].Content
		mu.Lock()
		prompts = append(prompts, prompt)
		mu.Unlock()

		source := "wire"
		if strings.Contains(prompt, "site:daily") {
			source = "daily"
		}
		_, _ = io.WriteString(w, completion(t, `[{"title":"AI from `+source+`","url":"https://`+source+`.example/ai","source":"`+source+`"}]`))
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{APIKey: "pplx-key", BaseURL: server.URL, Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)

	articles, err := client.Search(context.Background(), news.Query{Text: "AI", Sources: []string{"Wire", "Daily"}, MaxResults: 5})
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "AI from wire", articles[0].Title)
	assert.Equal(t, "AI from daily", articles[1].Title)
	assert.Len(t, prompts, 2)
}

func TestSearch_StatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key"}}`)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{APIKey: "bad", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Search(context.Background(), news.Query{Text: "AI"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.Error(t, err)
}
