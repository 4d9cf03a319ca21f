package agentflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwise/agrichat/internal/app/agentflow"
	"github.com/fieldwise/agrichat/internal/app/tools"
	"github.com/fieldwise/agrichat/internal/domain"
)

func TestNormalizeReferences(t *testing.T) {
	t.Run("mixed shapes", func(t *testing.T) {
		got := agentflow.NormalizeReferences(mixedReferences())
		require.Len(t, got, 3)
		assert.Equal(t, domain.Source{Title: "Rice blast guide", URL: "https://example.org/blast", Content: "Tricyclazole..."}, got[0])
		assert.Equal(t, domain.Source{Title: "Paddy market", URL: "https://example.org/market", Content: "Prices steady"}, got[1])
		assert.Equal(t, "Field trial", got[2].Content)
		assert.Equal(t, "2026-05-01", got[2].PublishedDate)
	})

	t.Run("json string array", func(t *testing.T) {
		got := agentflow.NormalizeReferences(`[{"title":"A","url":"https://a.example"},{"title":"B","url":"#"}]`)
		require.Len(t, got, 1)
		assert.Equal(t, "https://a.example", got[0].URL)
	})

	t.Run("single object", func(t *testing.T) {
		got := agentflow.NormalizeReferences(map[string]any{"link": "https://one.example", "snippet": "s"})
		require.Len(t, got, 1)
		assert.Equal(t, "Untitled", got[0].Title)
	})

	t.Run("json string object", func(t *testing.T) {
		got := agentflow.NormalizeReferences(`{"name":"N","link":"https://n.example"}`)
		require.Len(t, got, 1)
		assert.Equal(t, "N", got[0].Title)
	})

	for name, raw := range map[string]any{
		"nil":             nil,
		"broken json":     `[{"title": "x"`,
		"plain text":      "search failed",
		"number":          42,
		"no usable urls":  []any{map[string]any{"title": "x", "url": "ftp://x"}, map[string]any{"title": "y"}},
		"non object rows": []any{"a", 1, nil},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Empty(t, agentflow.NormalizeReferences(raw))
		})
	}
}

func newAugmenter(llm *fakeLLM, s *fakeSearch) *agentflow.SearchAugmenter {
	return agentflow.NewSearchAugmenter(
		agentflow.NewClassifier(llm, agentflow.SearchNeedConfig, "", 0),
		tools.NewWebSearchTool(s),
		0,
	)
}

func TestMaybeSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("not opted in", func(t *testing.T) {
		llm, s := newFakeLLM(), &fakeSearch{}
		sc, err := newAugmenter(llm, s).MaybeSearch(ctx, "rice price today", false)
		require.NoError(t, err)
		assert.Nil(t, sc)
		assert.Zero(t, llm.count(kindSearch))
		assert.Zero(t, s.count())
	})

	t.Run("classifier says no", func(t *testing.T) {
		llm, s := newFakeLLM(), &fakeSearch{}
		sc, err := newAugmenter(llm, s).MaybeSearch(ctx, "how to compost", true)
		require.NoError(t, err)
		assert.Nil(t, sc)
		assert.Equal(t, 1, llm.count(kindSearch))
		assert.Zero(t, s.count())
	})

	t.Run("search error degrades", func(t *testing.T) {
		llm := newFakeLLM().set(kindSearch, "YES")
		s := &fakeSearch{err: domain.ErrUpstreamUnavailable}
		sc, err := newAugmenter(llm, s).MaybeSearch(ctx, "rice price today", true)
		require.NoError(t, err)
		assert.Nil(t, sc)
		assert.Equal(t, 1, s.count())
	})

	t.Run("malformed payload degrades", func(t *testing.T) {
		llm := newFakeLLM().set(kindSearch, "YES")
		s := &fakeSearch{res: domain.RawSearchResult{References: "<html>"}}
		sc, err := newAugmenter(llm, s).MaybeSearch(ctx, "rice price today", true)
		require.NoError(t, err)
		assert.Nil(t, sc)
	})

	t.Run("normalizes results", func(t *testing.T) {
		llm := newFakeLLM().set(kindSearch, "YES")
		s := &fakeSearch{res: domain.RawSearchResult{Answer: "Prices rose.", References: mixedReferences()}}
		sc, err := newAugmenter(llm, s).MaybeSearch(ctx, "rice price today", true)
		require.NoError(t, err)
		require.NotNil(t, sc)
		assert.Equal(t, "Prices rose.", sc.Answer)
		assert.Len(t, sc.Sources, 3)
	})

	t.Run("classifier outage ends the turn", func(t *testing.T) {
		llm := newFakeLLM().fail(kindSearch, domain.ErrUpstreamUnavailable)
		_, err := newAugmenter(llm, &fakeSearch{}).MaybeSearch(ctx, "rice price today", true)
		assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	})
}
