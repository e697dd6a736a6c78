package news

import (
	"time"
)

// DateLayout formats Digest.Date.
const DateLayout = "2006-01-02"

// Digest is the final, immutable output of one pipeline run.
type Digest struct {
	RunID              string       `json:"run_id" yaml:"run_id"`
	Date               string       `json:"date" yaml:"date"`
	GeneratedAt        time.Time    `json:"generated_at" yaml:"generated_at"`
	AcceptedArticles   []Article    `json:"accepted_articles" yaml:"accepted_articles"`
	BulletSummary      []TopicGroup `json:"bullet_summary" yaml:"bullet_summary"`
	NoRelevantArticles bool         `json:"no_relevant_articles" yaml:"no_relevant_articles"`
	Answer             string       `json:"answer,omitempty" yaml:"answer,omitempty"`
}

// NewDigest summarizes accepted articles into a digest dated by generatedAt.
// Articles without an ID get their stable one so bullets can refer to them.
func NewDigest(runID string, generatedAt time.Time, accepted []Article, summarizer Summarizer, answer string) *Digest {
	withIDs := make([]Article, 0, len(accepted))
	for _, article := range accepted {
		withIDs = append(withIDs, article.WithID())
	}
	accepted = withIDs
	summary := summarizer.Summarize(accepted)
	return &Digest{
		RunID:              runID,
		Date:               generatedAt.Format(DateLayout),
		GeneratedAt:        generatedAt,
		AcceptedArticles:   accepted,
		BulletSummary:      summary.Groups,
		NoRelevantArticles: summary.NoRelevantArticles,
		Answer:             answer,
	}
}

// ArticleByID indexes the accepted articles.
func (d *Digest) ArticleByID() map[string]Article {
	out := make(map[string]Article, len(d.AcceptedArticles))
	for _, article := range d.AcceptedArticles {
		out[article.ID] = article
	}
	return out
}

// BulletCount returns the number of bullets across all groups.
func (d *Digest) BulletCount() int {
	n := 0
	for _, group := range d.BulletSummary {
		n += len(group.Bullets)
	}
	return n
}
