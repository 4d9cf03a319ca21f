package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitSetsLevel(t *testing.T) {
	t.Cleanup(func() { Init("info") })

	Init("warn")
	assert.False(t, Logger().Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, Logger().Enabled(context.Background(), slog.LevelWarn))
	assert.Same(t, Logger(), slog.Default())

	Init("bogus")
	assert.True(t, WithFields("component", "test").Enabled(context.Background(), slog.LevelInfo))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-7")

	assert.Equal(t, "req-7", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Same(t, Logger(), LoggerFromContext(context.Background()))
}
