// Package archive persists runs, the articles they found and the digests they
// produced in a local SQLite database.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Gurpartap/newsagent/agent"
	"github.com/Gurpartap/newsagent/news"
)

// Fixed-width UTC so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	conn *sql.DB
	now  func() time.Time
}

var _ agent.RunStore = (*Store)(nil)

// Open creates or migrates the database at path. ":memory:" is accepted for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}
	store := &Store{conn: conn, now: time.Now}
	if err := store.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id         TEXT    PRIMARY KEY,
			version    INTEGER NOT NULL,
			status     TEXT    NOT NULL,
			cause      TEXT    NOT NULL DEFAULT '',
			step       INTEGER NOT NULL DEFAULT 0,
			tool_calls INTEGER NOT NULL DEFAULT 0,
			output     TEXT    NOT NULL DEFAULT '',
			error      TEXT    NOT NULL DEFAULT '',
			messages   TEXT    NOT NULL DEFAULT '[]',
			updated_at TEXT    NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS articles (
			run_id       TEXT    NOT NULL,
			id           TEXT    NOT NULL,
			title        TEXT    NOT NULL,
			url          TEXT    NOT NULL DEFAULT '',
			source_name  TEXT    NOT NULL DEFAULT '',
			published_at TEXT,
			raw_snippet  TEXT    NOT NULL DEFAULT '',
			accepted     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_id ON articles(id)`,
		`CREATE TABLE IF NOT EXISTS digests (
			run_id       TEXT PRIMARY KEY,
			date         TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			body         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_digests_generated_at ON digests(generated_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// Save stores a run with the same optimistic version rules as the in-memory store.
func (s *Store) Save(ctx context.Context, state agent.RunState) error {
	if err := agent.ValidateRunState(state); err != nil {
		return err
	}
	messages, err := json.Marshal(state.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	updatedAt := s.now().UTC().Format(timeLayout)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM runs WHERE id = ?`, string(state.ID)).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if state.Version != 0 {
			return fmt.Errorf("%w: run %q expected version 0 on create, got %d", agent.ErrRunVersionConflict, state.ID, state.Version)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO runs (id, version, status, cause, step, tool_calls, output, error, messages, updated_at)
			VALUES (?, 1, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(state.ID), string(state.Status), string(state.Cause), state.Step, state.ToolCalls,
			state.Output, state.Error, string(messages), updatedAt)
	case err != nil:
		return fmt.Errorf("load run version: %w", err)
	case current != state.Version:
		return fmt.Errorf("%w: run %q expected version %d, got %d", agent.ErrRunVersionConflict, state.ID, current, state.Version)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE runs SET version = version + 1, status = ?, cause = ?, step = ?, tool_calls = ?,
				output = ?, error = ?, messages = ?, updated_at = ?
			WHERE id = ?`,
			string(state.Status), string(state.Cause), state.Step, state.ToolCalls,
			state.Output, state.Error, string(messages), updatedAt, string(state.ID))
	}
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Load(ctx context.Context, runID agent.RunID) (agent.RunState, error) {
	if strings.TrimSpace(string(runID)) == "" {
		return agent.RunState{}, fmt.Errorf("%w: field=id reason=empty", agent.ErrRunStateInvalid)
	}

	var (
		state    agent.RunState
		status   string
		cause    string
		messages string
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, version, status, cause, step, tool_calls, output, error, messages
		FROM runs WHERE id = ?`, string(runID)).Scan(
		&state.ID, &state.Version, &status, &cause, &state.Step, &state.ToolCalls,
		&state.Output, &state.Error, &messages)
	if errors.Is(err, sql.ErrNoRows) {
		return agent.RunState{}, fmt.Errorf("%w: %q", agent.ErrRunNotFound, runID)
	}
	if err != nil {
		return agent.RunState{}, fmt.Errorf("load run: %w", err)
	}
	state.Status = agent.RunStatus(status)
	state.Cause = agent.FailureCause(cause)
	if err := json.Unmarshal([]byte(messages), &state.Messages); err != nil {
		return agent.RunState{}, fmt.Errorf("decode messages: %w", err)
	}
	return state, nil
}

// SaveArticles records every article a run found. Re-saving the same article
// for a run keeps the first copy.
func (s *Store) SaveArticles(ctx context.Context, runID string, articles []news.Article) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save articles: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO articles (run_id, id, title, url, source_name, published_at, raw_snippet)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare save articles: %w", err)
	}
	defer stmt.Close()

	for _, article := range articles {
		article = article.WithID()
		if _, err := stmt.ExecContext(ctx, runID, article.ID, article.Title, article.URL,
			article.SourceName, formatTime(article.PublishedAt), article.RawSnippet); err != nil {
			return fmt.Errorf("save article %s: %w", article.ID, err)
		}
	}
	return tx.Commit()
}

// SaveDigest stores the digest body and marks its accepted articles.
func (s *Store) SaveDigest(ctx context.Context, digest *news.Digest) error {
	body, err := json.Marshal(digest)
	if err != nil {
		return fmt.Errorf("encode digest: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save digest: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO digests (run_id, date, generated_at, body) VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET date = excluded.date, generated_at = excluded.generated_at, body = excluded.body`,
		digest.RunID, digest.Date, digest.GeneratedAt.UTC().Format(timeLayout), string(body)); err != nil {
		return fmt.Errorf("save digest: %w", err)
	}
	for _, article := range digest.AcceptedArticles {
		article = article.WithID()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO articles (run_id, id, title, url, source_name, published_at, raw_snippet, accepted)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT (run_id, id) DO UPDATE SET accepted = 1`,
			digest.RunID, article.ID, article.Title, article.URL, article.SourceName,
			formatTime(article.PublishedAt), article.RawSnippet); err != nil {
			return fmt.Errorf("mark accepted article %s: %w", article.ID, err)
		}
	}
	return tx.Commit()
}

// LatestDigest returns the most recently generated digest, or nil when none exists.
func (s *Store) LatestDigest(ctx context.Context) (*news.Digest, error) {
	var body string
	err := s.conn.QueryRowContext(ctx, `SELECT body FROM digests ORDER BY generated_at DESC LIMIT 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest digest: %w", err)
	}
	var digest news.Digest
	if err := json.Unmarshal([]byte(body), &digest); err != nil {
		return nil, fmt.Errorf("decode digest: %w", err)
	}
	return &digest, nil
}

// RecentArticleIDs returns the IDs of articles accepted into digests generated
// at or after since.
func (s *Store) RecentArticleIDs(ctx context.Context, since time.Time) (map[string]struct{}, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT DISTINCT a.id FROM articles a
		JOIN digests d ON d.run_id = a.run_id
		WHERE a.accepted = 1 AND d.generated_at >= ?`, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query recent articles: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recent article: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func formatTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}
