package news

import (
	"slices"
	"strings"
	"unicode"
)

const (
	DefaultBulletBudget = 240
	// OtherTopic groups articles that carry no matched topic.
	OtherTopic = "other"

	ellipsis = "…"
)

// TopicGroup is one section of the bullet summary. ArticleIDs is parallel to Bullets.
type TopicGroup struct {
	Topic      string   `json:"topic" yaml:"topic"`
	Bullets    []string `json:"bullets" yaml:"bullets"`
	ArticleIDs []string `json:"article_ids" yaml:"article_ids"`
}

// ArticleID returns the ID behind bullet i, or "" when the group has none for it.
func (g TopicGroup) ArticleID(i int) string {
	if i < 0 || i >= len(g.ArticleIDs) {
		return ""
	}
	return g.ArticleIDs[i]
}

// Summary is the summarizer output. NoRelevantArticles distinguishes "ran on
// nothing" from "not run yet".
type Summary struct {
	Groups             []TopicGroup `json:"groups"`
	NoRelevantArticles bool         `json:"no_relevant_articles,omitempty"`
}

// Summarizer compresses accepted articles into bullets grouped by first matched topic.
type Summarizer struct {
	BulletBudget int
}

func NewSummarizer(bulletBudget int) Summarizer {
	if bulletBudget <= 0 {
		bulletBudget = DefaultBulletBudget
	}
	return Summarizer{BulletBudget: bulletBudget}
}

func (s Summarizer) budget() int {
	if s.BulletBudget <= 0 {
		return DefaultBulletBudget
	}
	return s.BulletBudget
}

// Summarize groups articles in first-seen topic order; inside a group the most
// recent article comes first and undated articles keep their input order at the end.
func (s Summarizer) Summarize(articles []Article) Summary {
	if len(articles) == 0 {
		return Summary{Groups: []TopicGroup{}, NoRelevantArticles: true}
	}

	var topics []string
	members := make(map[string][]Article)
	for _, article := range articles {
		topic := article.FirstTopic()
		if _, ok := members[topic]; !ok {
			topics = append(topics, topic)
		}
		members[topic] = append(members[topic], article)
	}

	groups := make([]TopicGroup, 0, len(topics))
	for _, topic := range topics {
		group := members[topic]
		slices.SortStableFunc(group, compareRecency)

		out := TopicGroup{
			Topic:      topic,
			Bullets:    make([]string, 0, len(group)),
			ArticleIDs: make([]string, 0, len(group)),
		}
		for _, article := range group {
			out.Bullets = append(out.Bullets, Bullet(article, s.budget()))
			out.ArticleIDs = append(out.ArticleIDs, article.WithID().ID)
		}
		groups = append(groups, out)
	}
	return Summary{Groups: groups}
}

func compareRecency(a, b Article) int {
	switch {
	case a.PublishedAt == nil && b.PublishedAt == nil:
		return 0
	case a.PublishedAt == nil:
		return 1
	case b.PublishedAt == nil:
		return -1
	default:
		return b.PublishedAt.Compare(*a.PublishedAt)
	}
}

// Bullet renders "Title — first sentence of the snippet", whitespace collapsed and
// cut at a word boundary so that it fits budget runes including the ellipsis.
func Bullet(article Article, budget int) string {
	if budget <= 0 {
		budget = DefaultBulletBudget
	}
	title := collapseSpace(article.Title)
	sentence := firstSentence(collapseSpace(article.RawSnippet))

	text := title
	switch {
	case title == "":
		text = sentence
	case sentence != "" && !strings.EqualFold(strings.TrimRight(sentence, ".!?"), strings.TrimRight(title, ".!?")):
		text = title + " — " + sentence
	}
	return truncateWords(text, budget)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstSentence(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
			return string(runes[:i+1])
		}
	}
	return s
}

// truncateWords never splits a word. A text whose first word alone does not fit
// becomes a bare ellipsis.
func truncateWords(text string, budget int) string {
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	if budget <= 1 {
		return ellipsis
	}

	limit := budget - 1
	cut := -1
	if unicode.IsSpace(runes[limit]) {
		cut = limit
	} else {
		for i := limit - 1; i >= 0; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
	}
	if cut <= 0 {
		return ellipsis
	}
	kept := strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':' || r == '—' || r == '-'
	})
	if kept == "" {
		return ellipsis
	}
	return kept + ellipsis
}
