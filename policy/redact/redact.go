// Package redact scrubs e-mail addresses and phone numbers from conversation
// content before it leaves the process.
package redact

import (
	"context"
	"regexp"

	"github.com/Gurpartap/newsagent/agent"
)

const (
	EmailPlaceholder = "[REDACTED_EMAIL]"
	PhonePlaceholder = "[REDACTED_PHONE]"
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`(?:\+|\b)\d[\d\s\-()]{6,}\d\b`)
)

// Text replaces e-mail addresses, then phone numbers.
func Text(s string) string {
	s = emailPattern.ReplaceAllString(s, EmailPlaceholder)
	return phonePattern.ReplaceAllString(s, PhonePlaceholder)
}

// Model redacts message content before delegating to next. The caller's
// conversation is left untouched.
type Model struct {
	next agent.Model
}

var _ agent.Model = (*Model)(nil)

func NewModel(next agent.Model) *Model {
	return &Model{next: next}
}

func (m *Model) Generate(ctx context.Context, request agent.ModelRequest) (agent.Message, error) {
	messages := agent.CloneMessages(request.Messages)
	for i := range messages {
		messages[i].Content = Text(messages[i].Content)
	}
	request.Messages = messages
	return m.next.Generate(ctx, request)
}
