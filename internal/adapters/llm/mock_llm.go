package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldwise/agrichat/internal/domain"
)

// MockLLM is a deterministic Completer for local mode. It answers the
// classifier prompts with keyword rules and echoes everything else.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

var (
	farmWords = []string{
		"farm", "crop", "soil", "seed", "harvest", "irrigat", "fertili", "pest",
		"livestock", "cattle", "dairy", "tomato", "rice", "wheat", "maize", "corn",
		"cotton", "plant", "agri", "compost", "organic", "orchard", "yield",
	}
	referentialWords = []string{
		"that", "this", "it ", "more", "elaborate", "earlier", "before",
		"previous", "the document", "the same", "above",
	}
	freshnessWords = []string{"latest", "today", "current", "price", "news", "2025", "2026", "this week"}
)

func (m *MockLLM) Complete(_ context.Context, prompt string, _ domain.CompletionOptions) (domain.Completion, error) {
	switch {
	case strings.Contains(prompt, "Agriculture Domain Validator"):
		query := strings.ToLower(quotedAfter(prompt, "Current User Query:"))
		recent := strings.ToLower(sectionAfter(prompt, "Recent Conversation:"))
		if containsAny(query, farmWords) || (containsAny(query, referentialWords) && containsAny(recent, farmWords)) {
			return reply("AGRICULTURE"), nil
		}
		return reply("NOT_AGRICULTURE"), nil

	case strings.Contains(prompt, "You are a context classifier"):
		if containsAny(strings.ToLower(quotedAfter(prompt, "Message:")), referentialWords) {
			return reply("YES"), nil
		}
		return reply("NO"), nil

	case strings.Contains(prompt, "require searching the web"):
		text := strings.ToLower(quotedAfter(prompt, "Message:") + quotedAfter(prompt, "Query:"))
		if containsAny(text, freshnessWords) {
			return reply("YES"), nil
		}
		return reply("NO"), nil
	}

	question := sectionAfter(prompt, "User Question:")
	if question == "" {
		question = sectionAfter(prompt, "User Query:")
	}
	return reply(fmt.Sprintf("Mock agronomist answer for: %s", firstLine(question))), nil
}

func reply(text string) domain.Completion {
	return domain.Completion{Role: "assistant", Content: text}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// quotedAfter returns the double-quoted text that follows marker.
func quotedAfter(s, marker string) string {
	i := strings.Index(s, marker)
	if i < 0 {
		return ""
	}
	rest := s[i+len(marker):]
	start := strings.Index(rest, `"`)
	if start < 0 {
		return ""
	}
	rest = rest[start+1:]
	end := strings.LastIndex(firstLine(rest), `"`)
	if end < 0 {
		return firstLine(rest)
	}
	return rest[:end]
}

func sectionAfter(s, marker string) string {
	i := strings.Index(s, marker)
	if i < 0 {
		return ""
	}
	rest := strings.TrimSpace(s[i+len(marker):])
	if j := strings.Index(rest, "\n\n"); j >= 0 {
		return rest[:j]
	}
	return rest
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
