package pipeline

import (
	"fmt"
	"strings"

	"github.com/Gurpartap/newsagent/news"
	"github.com/Gurpartap/newsagent/newstools"
)

// DefaultSystemPrompt is used unless agent.system_prompt overrides it.
var DefaultSystemPrompt = strings.Join([]string{
	"You are a news research assistant that prepares a daily digest.",
	"Work through the tools in order: " + newstools.SearchNewsTool + " to collect recent articles from the configured sources, " +
		newstools.FilterArticlesTool + " to keep the relevant ones, then " + newstools.SummarizeArticlesTool + " to compress them into bullets.",
	"Search once per topic or keyword when that helps coverage. Zero search results is a normal outcome, not an error.",
	"Never invent articles: only articles returned by the tools can appear in the digest.",
	"When the summary is ready, reply with a short plain-text overview without calling more tools.",
}, "\n")

// UserPrompt describes the run's interests and sources to the model.
func UserPrompt(topics news.TopicConfig, sources []string, date string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prepare the news digest for %s.\n", date)
	if len(topics.Topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s.\n", strings.Join(topics.Topics, ", "))
	}
	if len(topics.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s.\n", strings.Join(topics.Keywords, ", "))
	}
	if len(topics.ExcludeKeywords) > 0 {
		fmt.Fprintf(&b, "Ignore stories about: %s.\n", strings.Join(topics.ExcludeKeywords, ", "))
	}
	if len(sources) > 0 {
		fmt.Fprintf(&b, "Sources: %s.\n", strings.Join(sources, ", "))
	} else {
		b.WriteString("Sources: any configured source.\n")
	}
	b.WriteString("Search, filter and summarize, then give a brief overview of the day.")
	return b.String()
}
