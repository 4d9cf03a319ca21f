package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"github.com/fieldwise/agrichat/internal/domain"
)

func TestClassifyErr(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		upstream bool
	}{
		{"bad request", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, false},
		{"unknown model", fmt.Errorf("generate: %w", genai.APIError{Code: 404}), false},
		{"throttled", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, true},
		{"server error", genai.APIError{Code: 503, Status: "UNAVAILABLE"}, true},
		{"transport", errors.New("dial tcp: connection refused"), true},
		{"deadline", context.DeadlineExceeded, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyErr(tc.err)
			assert.Equal(t, tc.upstream, errors.Is(got, domain.ErrUpstreamUnavailable), "err=%v", got)
			assert.Contains(t, got.Error(), tc.err.Error())
		})
	}
}
