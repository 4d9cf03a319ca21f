package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AGRICHAT_CONFIG", "")
	t.Setenv("AGRICHAT_MODE", "")
	t.Setenv("AGRICHAT_STORAGE_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeLocal, cfg.Mode)
	assert.True(t, cfg.UseMockLLM)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, 60*time.Second, cfg.TurnTimeout)
	assert.Equal(t, 20000, cfg.MaxDocumentChars)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGRICHAT_CONFIG", "")
	t.Setenv("AGRICHAT_PORT", "9090")
	t.Setenv("AGRICHAT_USE_MOCK_LLM", "false")
	t.Setenv("AGRICHAT_LLM_PROVIDER", "OpenAI")
	t.Setenv("AGRICHAT_LLM_API_KEY", "key")
	t.Setenv("AGRICHAT_TEMPERATURE", "0.7")
	t.Setenv("AGRICHAT_TURN_TIMEOUT", "90s")
	t.Setenv("AGRICHAT_PARALLEL_CLASSIFIERS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.False(t, cfg.UseMockLLM)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.InDelta(t, 0.7, cfg.Temperature, 0.001)
	assert.Equal(t, 90*time.Second, cfg.TurnTimeout)
	assert.True(t, cfg.ParallelClassifiers)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agrichat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7070"
storageBackend: mongo
mongoURI: mongodb://localhost:27017
rateLimit: 5
`), 0o600))
	t.Setenv("AGRICHAT_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "mongo", cfg.StorageBackend)
	assert.Equal(t, 5, cfg.RateLimit)
}

func TestLoadInvalidValues(t *testing.T) {
	t.Setenv("AGRICHAT_CONFIG", "")
	t.Setenv("AGRICHAT_MAX_TOKENS", "lots")
	t.Setenv("AGRICHAT_SEARCH_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGRICHAT_MAX_TOKENS")
	assert.Contains(t, err.Error(), "AGRICHAT_SEARCH_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"gcp without project", func(c *Config) { c.Mode = ModeGCP }, false},
		{"openai without key", func(c *Config) { c.UseMockLLM = false }, false},
		{"unknown provider", func(c *Config) { c.UseMockLLM = false; c.LLMProvider = "x" }, false},
		{"vertex with project", func(c *Config) {
			c.UseMockLLM = false
			c.LLMProvider = "vertex"
			c.GCPProjectID = "p"
		}, true},
		{"firestore without project", func(c *Config) { c.StorageBackend = "firestore" }, false},
		{"mongo without uri", func(c *Config) { c.StorageBackend = "mongo" }, false},
		{"unknown backend", func(c *Config) { c.StorageBackend = "sqlite" }, false},
		{"temperature too high", func(c *Config) { c.Temperature = 3 }, false},
		{"zero turn timeout", func(c *Config) { c.TurnTimeout = 0 }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
