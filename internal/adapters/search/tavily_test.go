package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwise/agrichat/internal/domain"
)

func TestTavilySearch(t *testing.T) {
	var got tavilyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"answer": "Wheat prices rose 3% this week.",
			"results": [
				{"title": "Grain report", "url": "https://example.org/grain", "content": "Wheat up"},
				{"name": "Market wire", "link": "https://example.org/wire", "snippet": "Futures"}
			]
		}`))
	}))
	defer srv.Close()

	c, err := NewTavilyClient("tvly-key", WithEndpoint(srv.URL), WithMaxResults(3))
	require.NoError(t, err)

	res, err := c.Search(context.Background(), "wheat price today")
	require.NoError(t, err)

	assert.Equal(t, "wheat price today", got.Query)
	assert.Equal(t, 3, got.MaxResults)
	assert.True(t, got.IncludeAnswer)
	assert.Equal(t, "Wheat prices rose 3% this week.", res.Answer)

	refs, ok := res.References.([]any)
	require.True(t, ok, "references keep the raw array shape")
	assert.Len(t, refs, 2)
}

func TestTavilySearch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewTavilyClient("k", WithEndpoint(srv.URL))
	require.NoError(t, err)

	_, err = c.Search(context.Background(), "rice blast")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	_, err = c.Search(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewTavilyClientRequiresKey(t *testing.T) {
	_, err := NewTavilyClient("  ")
	assert.Error(t, err)
}
