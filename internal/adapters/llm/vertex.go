package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fieldwise/agrichat/internal/domain"
	"google.golang.org/genai"
)

type VertexClient struct {
	client    *genai.Client
	modelName string
}

// NewVertexClient creates a Completer based on Vertex AI (Gemini).
func NewVertexClient(ctx context.Context, projectID, location, modelName string) (*VertexClient, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("vertex: project and location must be set")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexClient{
		client:    client,
		modelName: modelName,
	}, nil
}

// NewGeminiClient creates the same Completer against the Gemini developer
// API, authenticated with an API key instead of GCP credentials.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*VertexClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &VertexClient{
		client:    client,
		modelName: modelName,
	}, nil
}

// Complete implements domain.Completer using the genai SDK.
func (v *VertexClient) Complete(
	ctx context.Context,
	prompt string,
	opts domain.CompletionOptions,
) (domain.Completion, error) {
	model := v.modelName
	if opts.Model != "" {
		model = opts.Model
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	temp := opts.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	res, err := v.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("vertex generate content: %w", classifyErr(err))
	}

	// Extract only the text, the role is reported as-is.
	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return domain.Completion{}, fmt.Errorf("vertex returned empty text: %w", domain.ErrMalformedResponse)
	}

	role := "assistant"
	if len(res.Candidates) > 0 && res.Candidates[0].Content != nil {
		role = res.Candidates[0].Content.Role
	}

	return domain.Completion{Role: role, Content: text}, nil
}

// classifyErr tags transport failures, 429 and 5xx API errors as upstream
// unavailability. Other API errors (bad request, unknown model, oversized
// prompt) are returned as plain errors, like the OpenAI-compatible client.
func classifyErr(err error) error {
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
		}
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
}
