package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  base_url: "https://openrouter.ai/api/v1"
  model: "gpt-4o-mini"
  max_tokens: 1000
  temperature: 0.5

embedding:
  model: "text-embedding-3-small"

store:
  backend: "local"
  dir: "vectorstore_multi_pdf"
  vector_dim: 1536
  batch_size: 50
  search_k: 4

ingest:
  pdf_dir: "docs/pdf_source"
  chunk_size: 500
  chunk_overlap: 100

websearch:
  enabled: true
  max_results: 3
  timeout_seconds: 5
  rate_limit: 1.5

livekit:
  room: "workshop"
  agent_id: "allion-agent"
  language: "hi"

voice:
  max_answer_chars: 400

server:
  port: "9090"
  streaming: false
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://openrouter.ai/api/v1", config.LLM.BaseURL)
	assert.Equal(t, "gpt-4o-mini", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "local", config.Store.Backend)
	assert.Equal(t, "vectorstore_multi_pdf", config.Store.Dir)
	assert.Equal(t, 4, config.Store.SearchK)
	assert.Equal(t, 500, config.Ingest.ChunkSize)
	assert.True(t, config.WebSearch.Enabled)
	assert.Equal(t, 5, config.WebSearch.TimeoutSeconds)
	assert.Equal(t, "workshop", config.LiveKit.Room)
	assert.Equal(t, "hi", config.LiveKit.Language)
	assert.Equal(t, 400, config.Voice.MaxAnswerChars)
	assert.Equal(t, "9090", config.Server.Port)
	assert.False(t, config.Server.Streaming)
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", config.LLM.Model)
	assert.Equal(t, "text-embedding-3-small", config.Embedding.Model)
	assert.Equal(t, "local", config.Store.Backend)
	assert.Equal(t, "vectorstore_multi_pdf", config.Store.Dir)
	assert.Equal(t, 1000, config.Ingest.ChunkSize)
	assert.Equal(t, "en", config.LiveKit.Language)
	assert.Equal(t, 500, config.Voice.MaxAnswerChars)
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		c, _ := getDefaultConfig()
		return c
	}

	t.Run("valid defaults", func(t *testing.T) {
		errs := valid().Validate()
		assert.Empty(t, errs)
	})

	t.Run("bad llm settings", func(t *testing.T) {
		c := valid()
		c.LLM.MaxTokens = 50000
		c.LLM.Temperature = 3.0

		errs := c.Validate()
		require.Len(t, errs, 2)
		assert.Contains(t, errs[0].Error(), "max_tokens")
		assert.Contains(t, errs[1].Error(), "temperature")
	})

	t.Run("pgvector requires url", func(t *testing.T) {
		c := valid()
		c.Store.Backend = "pgvector"
		c.Store.URL = ""

		errs := c.Validate()
		require.Len(t, errs, 1)
		assert.Equal(t, "store.url", errs[0].Field)
	})

	t.Run("unknown backend", func(t *testing.T) {
		c := valid()
		c.Store.Backend = "chroma"

		errs := c.Validate()
		require.Len(t, errs, 1)
		assert.Equal(t, "store.backend", errs[0].Field)
	})

	t.Run("chunk overlap must fit in chunk size", func(t *testing.T) {
		c := valid()
		c.Ingest.ChunkSize = 100
		c.Ingest.ChunkOverlap = 100

		errs := c.Validate()
		require.Len(t, errs, 1)
		assert.Equal(t, "ingest.chunk_overlap", errs[0].Field)
	})

	t.Run("websearch checked only when enabled", func(t *testing.T) {
		c := valid()
		c.WebSearch.Enabled = false
		c.WebSearch.MaxResults = 0
		c.WebSearch.RateLimit = 0
		assert.Empty(t, c.Validate())

		c.WebSearch.Enabled = true
		errs := c.Validate()
		assert.Len(t, errs, 2)
	})

	t.Run("unsupported language", func(t *testing.T) {
		c := valid()
		c.LiveKit.Language = "fr"

		errs := c.Validate()
		require.Len(t, errs, 1)
		assert.Equal(t, "livekit.language", errs[0].Field)
	})
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OPENAI_BASE_URL", "https://openrouter.ai/api/v1")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LIVEKIT_URL", "wss://env-livekit")
	t.Setenv("LIVEKIT_ROOM", "env-room")
	t.Setenv("AGENT_ID", "env-agent")
	t.Setenv("VECTORSTORE_DIR", "env-store")
	t.Setenv("WEB_SEARCH_ENABLED", "true")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "https://openrouter.ai/api/v1", config.LLM.BaseURL)
	assert.Equal(t, "sk-test", config.LLM.APIKey)
	assert.Equal(t, "wss://env-livekit", config.LiveKit.URL)
	assert.Equal(t, "env-room", config.LiveKit.Room)
	assert.Equal(t, "env-agent", config.LiveKit.AgentID)
	assert.Equal(t, "env-store", config.Store.Dir)
	assert.True(t, config.WebSearch.Enabled)
}
