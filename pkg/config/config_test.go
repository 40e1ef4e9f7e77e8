package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  base_url: "http://localhost:11434"
  model: "mistral"
  max_tokens: 1000
  temperature: 0.5
  rate_limit: 1.5
  timeout_secs: 30

embedding:
  model: "nomic-embed-text:latest"

store:
  backend: "local"
  snapshot_path: "/tmp/cvscreen/cvs.idx"
  vector_dim: 768
  batch_size: 50

ingest:
  staging_dir: "/tmp/cvscreen/raw"
  chunk_size: 200
  chunk_overlap: 20

screening:
  top_k: 10
  min_similarity: 0.75
  select_threshold: 6
  merge_order: "retrieval"
  extract: true
  workers: 2

server:
  port: "9090"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "http://localhost:11434", config.LLM.BaseURL)
	assert.Equal(t, "mistral", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "local", config.Store.Backend)
	assert.Equal(t, "/tmp/cvscreen/cvs.idx", config.Store.SnapshotPath)
	assert.Equal(t, 200, config.Ingest.ChunkSize)
	assert.Equal(t, 20, config.Ingest.ChunkOverlap)
	assert.Equal(t, 0.75, config.Screening.MinSimilarity)
	assert.Equal(t, 6.0, config.Screening.SelectThreshold)
	assert.True(t, config.Screening.Extract)
	assert.Equal(t, "9090", config.Server.Port)
}

func TestDefaults(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	assert.Equal(t, "http://localhost:11434", config.LLM.BaseURL)
	assert.Equal(t, 200, config.Ingest.ChunkSize)
	assert.Equal(t, 20, config.Ingest.ChunkOverlap)
	assert.Equal(t, 10, config.Screening.TopK)
	assert.Equal(t, "retrieval", config.Screening.MergeOrder)
	assert.Equal(t, 4, config.Screening.Workers)
	assert.Equal(t, "local", config.Store.Backend)
	assert.Zero(t, config.Screening.MinSimilarity, "pre-filter disabled by default")
	assert.Zero(t, config.Screening.SelectThreshold, "selection disabled by default")

	errors := config.Validate()
	assert.Empty(t, errors)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorMessages []string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name: "bad llm settings",
			mutate: func(c *Config) {
				c.LLM.MaxTokens = 5000
				c.LLM.Temperature = 3.0
				c.LLM.RateLimit = -1
			},
			errorMessages: []string{
				"max_tokens must be between 1 and 4096",
				"temperature must be between 0 and 2",
				"rate_limit must be positive",
			},
		},
		{
			name: "unknown store backend",
			mutate: func(c *Config) {
				c.Store.Backend = "faiss"
			},
			errorMessages: []string{"unknown backend: faiss"},
		},
		{
			name: "pgvector requires a database URL",
			mutate: func(c *Config) {
				c.Store.Backend = "pgvector"
				c.Store.URL = ""
			},
			errorMessages: []string{"database URL is required"},
		},
		{
			name: "overlap must stay below chunk size",
			mutate: func(c *Config) {
				c.Ingest.ChunkSize = 100
				c.Ingest.ChunkOverlap = 100
			},
			errorMessages: []string{"chunk_overlap must be non-negative and less than chunk_size"},
		},
		{
			name: "bad screening settings",
			mutate: func(c *Config) {
				c.Screening.MinSimilarity = 1.5
				c.Screening.SelectThreshold = 11
				c.Screening.MergeOrder = "random"
			},
			errorMessages: []string{
				"min_similarity must be between 0 and 1",
				"select_threshold must be between 0 and 10",
				"merge_order must be retrieval or position",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			applyDefaults(config)
			tt.mutate(config)

			errors := config.Validate()
			assert.Len(t, errors, len(tt.errorMessages))

			for i, msg := range tt.errorMessages {
				assert.Contains(t, errors[i].Error(), msg)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	// Set environment variables
	os.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	os.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	os.Setenv("PORT", "9999")
	defer func() {
		os.Unsetenv("OLLAMA_BASE_URL")
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("PORT")
	}()

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Store.URL)
	assert.Equal(t, "9999", config.Server.Port)
}
