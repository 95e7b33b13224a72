package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.Broker.Addr())
	assert.Equal(t, 5*time.Second, cfg.Broker.Timeout)
	assert.False(t, cfg.Broker.SSL)

	assert.Equal(t, 600*time.Second, cfg.Queue.JobTimeout)
	assert.Equal(t, time.Hour, cfg.Queue.JobTTL)
	assert.Equal(t, 24*time.Hour, cfg.Queue.ResultTTL)

	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.LLM.ModelName)
	assert.Equal(t, "https://api.anthropic.com", cfg.LLM.BaseURL)
	assert.Equal(t, 100000, cfg.LLM.MaxTokensPerMinute)
	assert.Equal(t, 50, cfg.LLM.MaxRequestsPerMinute)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 0.2, cfg.LLM.RetryJitter)

	assert.Equal(t, "postgres", cfg.Storage.StorageEngine)

	assert.NotEmpty(t, cfg.Prompts.NoteEnrichment)
	assert.NotEmpty(t, cfg.Prompts.TaskEnrichment)
	assert.NotEmpty(t, cfg.Prompts.ActivitySchema)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_HOST", "redis.internal")
	t.Setenv("BROKER_PORT", "6380")
	t.Setenv("BROKER_SSL", "true")
	t.Setenv("QUEUE_JOB_TIMEOUT", "120")
	t.Setenv("LLM_MAX_REQUESTS_PER_MINUTE", "10")
	t.Setenv("LLM_RETRY_JITTER", "0.5")
	t.Setenv("ROBOLOG_STORAGE_ENGINE", "sqlite")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Broker.Addr())
	assert.True(t, cfg.Broker.SSL)
	assert.Equal(t, 120*time.Second, cfg.Queue.JobTimeout)
	assert.Equal(t, 10, cfg.LLM.MaxRequestsPerMinute)
	assert.Equal(t, 0.5, cfg.LLM.RetryJitter)
	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
}

func TestLoadConfig_UnparseableValuesFallBack(t *testing.T) {
	t.Setenv("BROKER_PORT", "not-a-port")
	t.Setenv("LLM_RETRY_JITTER", "lots")
	t.Setenv("BROKER_SSL", "maybe")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 6379, cfg.Broker.Port)
	assert.Equal(t, 0.2, cfg.LLM.RetryJitter)
	assert.False(t, cfg.Broker.SSL)
}

func TestLoadConfig_PromptsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"note_enrichment: file note prompt\ntask_enrichment: file task prompt\n"), 0o644))
	t.Setenv("ROBOLOG_PROMPTS_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "file note prompt", cfg.Prompts.NoteEnrichment)
	assert.Equal(t, "file task prompt", cfg.Prompts.TaskEnrichment)
	// Fields absent from the file keep the built-in default.
	assert.Equal(t, defaultActivitySchemaPrompt, cfg.Prompts.ActivitySchema)
}

func TestLoadConfig_EnvBeatsPromptsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("note_enrichment: file prompt\n"), 0o644))
	t.Setenv("ROBOLOG_PROMPTS_FILE", path)
	t.Setenv("ROBO_NOTE_ENRICHMENT_PROMPT", "env prompt")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "env prompt", cfg.Prompts.NoteEnrichment)
}

func TestLoadConfig_BadPromptsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - not yaml"), 0o644))
	t.Setenv("ROBOLOG_PROMPTS_FILE", path)

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("ROBOLOG_PROMPTS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		cfg.LLM.APIKey = "sk-test"
		cfg.Storage.StorageEngine = "sqlite"
		return cfg
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.LLM.APIKey = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Storage.StorageEngine = "postgres"
	cfg.Storage.DatabaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Prompts.TaskEnrichment = ""
	assert.Error(t, cfg.Validate())
}
