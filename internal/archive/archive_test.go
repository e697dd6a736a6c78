package archive_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gurpartap/newsagent/agent"
	"github.com/Gurpartap/newsagent/internal/archive"
	"github.com/Gurpartap/newsagent/news"
)

func openStore(t *testing.T) *archive.Store {
	t.Helper()
	store, err := archive.Open(context.Background(), filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func article(title, source string, topics ...string) news.Article {
	published := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	return news.Article{
		Title:         title,
		URL:           "https://" + source + ".example/" + title,
		SourceName:    source,
		PublishedAt:   &published,
		RawSnippet:    title + " happened.",
		TopicsMatched: topics,
	}.WithID()
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)

	state := agent.RunState{
		ID:     "run-1",
		Status: agent.RunStatusAwaitingModel,
		Step:   1,
		Messages: []agent.Message{
			{Role: agent.RoleUser, Content: "daily digest"},
			{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCall{{ID: "call_1", Name: "search_news", Arguments: map[string]any{"query": "ai"}}}},
			{Role: agent.RoleTool, ToolCallID: "call_1", Name: "search_news", Content: `{"status":"success"}`},
		},
		ToolCalls: 1,
	}
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, agent.RunStatusAwaitingModel, loaded.Status)
	assert.Equal(t, 1, loaded.ToolCalls)
	require.Len(t, loaded.Messages, 3)
	assert.Equal(t, "ai", loaded.Messages[1].ToolCalls[0].Arguments["query"])
	assert.Equal(t, "call_1", loaded.Messages[2].ToolCallID)

	loaded.Status = agent.RunStatusDone
	loaded.Output = "done"
	require.NoError(t, store.Save(ctx, loaded))

	final, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Version)
	assert.Equal(t, "done", final.Output)
}

func TestStore_SaveRejectsStaleVersion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)

	state := agent.RunState{ID: "run-1", Status: agent.RunStatusPending}
	require.NoError(t, store.Save(ctx, state))

	err := store.Save(ctx, state)
	assert.True(t, errors.Is(err, agent.ErrRunVersionConflict), "got %v", err)

	state.Version = 3
	state.ID = "run-2"
	err = store.Save(ctx, state)
	assert.True(t, errors.Is(err, agent.ErrRunVersionConflict), "got %v", err)
}

func TestStore_LoadErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)

	_, err := store.Load(ctx, "missing")
	assert.True(t, errors.Is(err, agent.ErrRunNotFound), "got %v", err)

	_, err = store.Load(ctx, " ")
	assert.True(t, errors.Is(err, agent.ErrRunStateInvalid), "got %v", err)

	err = store.Save(ctx, agent.RunState{ID: "bad", Status: "bogus"})
	assert.True(t, errors.Is(err, agent.ErrRunStateInvalid), "got %v", err)
}

func TestStore_DigestsAndRecentArticles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)

	latest, err := store.LatestDigest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	ai := article("ai-chip", "wire", "AI")
	climate := article("summit", "daily", "Climate")
	sports := article("match", "wire")

	older := time.Date(2026, 10, 10, 7, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveArticles(ctx, "run-old", []news.Article{climate}))
	require.NoError(t, store.SaveDigest(ctx, news.NewDigest("run-old", older, []news.Article{climate}, news.NewSummarizer(0), "")))

	recent := time.Date(2026, 10, 17, 7, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveArticles(ctx, "run-new", []news.Article{ai, sports, ai}))
	require.NoError(t, store.SaveDigest(ctx, news.NewDigest("run-new", recent, []news.Article{ai}, news.NewSummarizer(0), "")))

	ids, err := store.RecentArticleIDs(ctx, recent.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{ai.ID: {}}, ids)

	ids, err = store.RecentArticleIDs(ctx, older.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, climate.ID)

	latest, err = store.LatestDigest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-new", latest.RunID)
	assert.Equal(t, "2026-10-17", latest.Date)
	require.Len(t, latest.AcceptedArticles, 1)
	assert.Equal(t, ai.ID, latest.AcceptedArticles[0].ID)
}

func TestStore_SaveDigestIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)

	generated := time.Date(2026, 10, 17, 7, 0, 0, 0, time.UTC)
	digest := news.NewDigest("run-1", generated, []news.Article{article("ai-chip", "wire", "AI")}, news.NewSummarizer(0), "")
	require.NoError(t, store.SaveDigest(ctx, digest))
	require.NoError(t, store.SaveDigest(ctx, digest))

	ids, err := store.RecentArticleIDs(ctx, generated)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}
