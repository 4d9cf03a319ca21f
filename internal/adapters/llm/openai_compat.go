package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fieldwise/agrichat/internal/domain"
)

const defaultGroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAICompatClient calls any OpenAI-compatible /chat/completions endpoint
// (Groq by default).
type OpenAICompatClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatClient builds the client. baseURL should include the /v1
// prefix; an empty baseURL targets Groq.
func NewOpenAICompatClient(baseURL, apiKey, model string) *OpenAICompatClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	return &OpenAICompatClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Complete implements domain.Completer.
func (c *OpenAICompatClient) Complete(ctx context.Context, prompt string, opts domain.CompletionOptions) (domain.Completion, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	if model == "" {
		return domain.Completion{}, fmt.Errorf("openai-compat: model required")
	}

	reqBody := oaiChatRequest{
		Model:       model,
		Messages:    []oaiMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		reqBody.MaxTokens = opts.MaxTokens
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return domain.Completion{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.Completion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("%w: openai-compat request: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return domain.Completion{}, fmt.Errorf("%w: openai-compat api error: %s", domain.ErrUpstreamUnavailable, msg)
		}
		return domain.Completion{}, fmt.Errorf("openai-compat api error: %s", msg)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return domain.Completion{}, fmt.Errorf("%w: openai-compat read: %w", domain.ErrUpstreamUnavailable, err)
		}
		return domain.Completion{}, fmt.Errorf("%w: openai-compat decode: %v", domain.ErrMalformedResponse, err)
	}
	if len(chatResp.Choices) == 0 {
		return domain.Completion{}, fmt.Errorf("%w: no choices from openai-compat api", domain.ErrMalformedResponse)
	}

	msg := chatResp.Choices[0].Message
	var content string
	if err := json.Unmarshal(msg.Content, &content); err != nil {
		// content may be null or a non-string payload
		return domain.Completion{}, fmt.Errorf("%w: non-text content from openai-compat api", domain.ErrMalformedResponse)
	}
	return domain.Completion{Role: msg.Role, Content: content}, nil
}

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	Temperature float32      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
