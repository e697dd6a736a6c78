package news

import "strings"

// TopicConfig describes what the reader cares about. Topics are ordered; keywords
// have set semantics but keep their configured order for deterministic output.
type TopicConfig struct {
	Topics          []string `json:"topics" yaml:"topics" mapstructure:"topics"`
	Keywords        []string `json:"keywords" yaml:"keywords" mapstructure:"keywords"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty" yaml:"exclude_keywords,omitempty" mapstructure:"exclude_keywords"`
}

// Normalized trims entries, drops blanks and removes case-insensitive duplicates
// while preserving first occurrence order. Nil sequences become empty ones.
func (c TopicConfig) Normalized() TopicConfig {
	return TopicConfig{
		Topics:          dedupeTerms(c.Topics),
		Keywords:        dedupeTerms(c.Keywords),
		ExcludeKeywords: dedupeTerms(c.ExcludeKeywords),
	}
}

// Empty reports whether no interest is configured; such a config accepts nothing.
func (c TopicConfig) Empty() bool {
	return len(dedupeTerms(c.Topics)) == 0 && len(dedupeTerms(c.Keywords)) == 0
}

func dedupeTerms(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, term := range in {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, term)
	}
	return out
}
