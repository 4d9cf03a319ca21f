package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwise/agrichat/internal/domain"
)

type stubSearch struct {
	query string
	res   domain.RawSearchResult
	err   error
}

func (s *stubSearch) Search(_ context.Context, query string) (domain.RawSearchResult, error) {
	s.query = query
	return s.res, s.err
}

func TestWebSearchTool(t *testing.T) {
	refs := []any{map[string]any{"title": "Rust in wheat", "url": "https://example.org/rust"}}
	s := &stubSearch{res: domain.RawSearchResult{Answer: "Use resistant varieties.", References: refs}}
	tool := NewWebSearchTool(s)

	assert.Equal(t, "ask_to_web", tool.Name())

	out, err := tool.Call(context.Background(), ToolContext{UserID: "u1"}, map[string]any{"query": " wheat rust "})
	require.NoError(t, err)
	assert.Equal(t, "wheat rust", s.query)
	assert.Equal(t, "Use resistant varieties.", out["answer"])
	assert.Equal(t, refs, out["references"])
}

func TestWebSearchTool_Errors(t *testing.T) {
	_, err := NewWebSearchTool(&stubSearch{}).Call(context.Background(), ToolContext{}, map[string]any{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = NewWebSearchTool(nil).Call(context.Background(), ToolContext{}, map[string]any{"query": "maize"})
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	boom := errors.New("boom")
	_, err = NewWebSearchTool(&stubSearch{err: boom}).Call(context.Background(), ToolContext{}, map[string]any{"query": "maize"})
	assert.ErrorIs(t, err, boom)
}

func TestCurrentTimeTool(t *testing.T) {
	tool := NewCurrentTimeTool()
	tool.now = func() time.Time { return time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC) }

	out, err := tool.Call(context.Background(), ToolContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T08:30:00Z", out["time"])
	assert.Equal(t, "Current time: 2026-03-01T08:30:00Z", out["text"])
}
