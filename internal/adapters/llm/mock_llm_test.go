package llm

import (
	"context"
	"testing"

	"github.com/fieldwise/agrichat/internal/domain"
)

func TestMockLLMGate(t *testing.T) {
	m := NewMockLLM()
	ctx := context.Background()

	cases := []struct {
		prompt string
		want   string
	}{
		{"You are an Agriculture Domain Validator.\nCurrent User Query: \"How do I grow tomatoes?\"\n", "AGRICULTURE"},
		{"You are an Agriculture Domain Validator.\nCurrent User Query: \"What's the capital of France?\"\n", "NOT_AGRICULTURE"},
		{"You are an Agriculture Domain Validator.\nCurrent User Query: \"Tell me more about that\"\n\nRecent Conversation:\nUser: rice cultivation tips\n", "AGRICULTURE"},
		{"You are a context classifier.\nMessage: \"Tell me more about that\"\n", "YES"},
		{"You are a context classifier.\nMessage: \"How do I grow tomatoes?\"\n", "NO"},
	}
	for _, c := range cases {
		got, err := m.Complete(ctx, c.prompt, domain.CompletionOptions{})
		if err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		if got.Content != c.want {
			t.Errorf("prompt %q: got %q, want %q", c.prompt, got.Content, c.want)
		}
	}
}
