package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fieldwise/agrichat/internal/domain"
)

const defaultTavilyURL = "https://api.tavily.com/search"

// TavilyClient implements domain.SearchClient against the Tavily search API.
type TavilyClient struct {
	apiKey     string
	endpoint   string
	maxResults int
	httpClient *http.Client
}

type Option func(*TavilyClient)

// WithEndpoint overrides the API URL (used by tests).
func WithEndpoint(url string) Option {
	return func(c *TavilyClient) { c.endpoint = url }
}

// WithMaxResults sets how many results are requested per query.
func WithMaxResults(n int) Option {
	return func(c *TavilyClient) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

func NewTavilyClient(apiKey string, opts ...Option) (*TavilyClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("tavily: api key is required")
	}
	c := &TavilyClient{
		apiKey:     apiKey,
		endpoint:   defaultTavilyURL,
		maxResults: 5,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type tavilyRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
	SearchDepth       string `json:"search_depth"`
}

// The results array is kept undecoded so the caller sees the provider's own
// field names.
type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results any    `json:"results"`
}

// Search runs one web search and returns the answer plus raw references.
func (c *TavilyClient) Search(ctx context.Context, query string) (domain.RawSearchResult, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return domain.RawSearchResult{}, fmt.Errorf("tavily: %w: query too short", domain.ErrInvalidInput)
	}

	body, err := json.Marshal(tavilyRequest{
		Query:         query,
		MaxResults:    c.maxResults,
		IncludeAnswer: true,
		SearchDepth:   "basic",
	})
	if err != nil {
		return domain.RawSearchResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.RawSearchResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.RawSearchResult{}, fmt.Errorf("%w: tavily request: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return domain.RawSearchResult{}, fmt.Errorf("%w: tavily: %s", domain.ErrUpstreamUnavailable, resp.Status)
	}
	if resp.StatusCode >= 400 {
		return domain.RawSearchResult{}, fmt.Errorf("tavily: %s", resp.Status)
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.RawSearchResult{}, fmt.Errorf("%w: tavily decode: %v", domain.ErrMalformedResponse, err)
	}

	return domain.RawSearchResult{
		Answer:     out.Answer,
		References: out.Results,
	}, nil
}
