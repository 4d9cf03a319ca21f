package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldwise/agrichat/internal/domain"
)

// WebSearchTool exposes a domain.SearchClient as the ask_to_web tool.
type WebSearchTool struct {
	client domain.SearchClient
}

// NewWebSearchTool creates the ask_to_web tool. client may be nil when no
// search provider is configured; Call then fails with ErrUpstreamUnavailable.
func NewWebSearchTool(client domain.SearchClient) *WebSearchTool {
	return &WebSearchTool{client: client}
}

func (t *WebSearchTool) Name() string {
	return "ask_to_web"
}

// Call expects {"query": "..."} and returns
//
//	{"answer": "...", "references": <provider shape>}
//
// The references are passed through untouched.
func (t *WebSearchTool) Call(
	ctx context.Context,
	tctx ToolContext,
	input map[string]any,
) (map[string]any, error) {
	query := strings.TrimSpace(getString(input, "query"))
	if query == "" {
		return nil, fmt.Errorf("ask_to_web: %w: missing query", domain.ErrInvalidInput)
	}
	if t.client == nil {
		return nil, fmt.Errorf("ask_to_web: %w: no search provider configured", domain.ErrUpstreamUnavailable)
	}

	res, err := t.client.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ask_to_web: %w", err)
	}

	return map[string]any{
		"answer":     res.Answer,
		"references": res.References,
	}, nil
}
