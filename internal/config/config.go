// Package config provides configuration management for Robolog.
// It loads settings from environment variables and provides sensible
// defaults for all configuration options.
//
// Per-operation system prompts can additionally be overridden from a YAML
// file (ROBOLOG_PROMPTS_FILE); the environment variables take precedence
// over the file, and the file over the built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Robolog worker process.
type Config struct {
	Broker  BrokerConfig
	Queue   QueueConfig
	LLM     LLMConfig
	Storage StorageConfig
	Prompts PromptsConfig
}

// BrokerConfig contains broker (Redis) connection configuration.
type BrokerConfig struct {
	Host     string        // Broker host (default: localhost)
	Port     int           // Broker port (default: 6379)
	DB       int           // Broker database index (default: 0)
	Password string        // Optional broker password
	SSL      bool          // Enable TLS for the broker connection
	Timeout  time.Duration // Connection timeout (default: 5s)
}

// Addr returns the host:port address for the broker connection.
func (c BrokerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// QueueConfig contains per-job timing configuration.
type QueueConfig struct {
	JobTimeout time.Duration // Watchdog timeout per job (default: 600s)
	JobTTL     time.Duration // Time a job may wait in queue (default: 3600s)
	ResultTTL  time.Duration // How long finished job results are retained (default: 86400s)
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	APIKey               string        // Provider API key
	ModelName            string        // Model identifier (default: claude-haiku-4-5-20251001)
	BaseURL              string        // Provider base URL (default: https://api.anthropic.com)
	Timeout              time.Duration // Per-request client timeout (default: 60s)
	MaxTokensPerMinute   int           // Token budget per 60s window (default: 100000)
	MaxRequestsPerMinute int           // Request budget per 60s window (default: 50)
	MaxRetries           int           // Retry attempts for retryable errors (default: 3)
	RetryBaseDelay       time.Duration // Initial backoff delay (default: 2s)
	RetryMaxDelay        time.Duration // Backoff cap (default: 60s)
	RetryJitter          float64       // Jitter fraction applied to backoff (default: 0.2)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: postgres, sqlite (default: postgres)
	DatabaseURL   string // PostgreSQL connection string
	DataPath      string // Data directory for the sqlite engine (default: ./data)
}

// PromptsConfig contains the per-operation system prompts.
type PromptsConfig struct {
	NoteEnrichment string `yaml:"note_enrichment"`
	TaskEnrichment string `yaml:"task_enrichment"`
	ActivitySchema string `yaml:"activity_schema"`
}

// Built-in default system prompts. Overridable via ROBOLOG_PROMPTS_FILE
// and the ROBO_*_PROMPT environment variables.
const (
	defaultNoteEnrichmentPrompt = "You are an assistant that organizes personal notes. " +
		"Extract a concise title (at most 50 characters) and reformat the note body " +
		"as clean Markdown, preserving the author's meaning. Respond by calling the " +
		"provided function."

	defaultTaskEnrichmentPrompt = "You are an assistant that organizes personal tasks. " +
		"Extract a concise title (at most 50 characters), reformat the task body as " +
		"Markdown, and when the text implies urgency or a deadline, suggest a priority " +
		"(LOW, MEDIUM, HIGH, URGENT) and an ISO due date. Respond by calling the " +
		"provided function."

	defaultActivitySchemaPrompt = "You are an assistant that designs data-entry layouts. " +
		"Given a JSON Schema describing an activity, choose a render type (form, table, " +
		"timeline, cards), a layout, and logical field groups. Respond by calling the " +
		"provided function."
)

// LoadConfig loads configuration from environment variables with sensible
// defaults. Prompt resolution order: built-in default, then the YAML file
// named by ROBOLOG_PROMPTS_FILE (if set), then the ROBO_*_PROMPT variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Broker: BrokerConfig{
			Host:     getEnv("BROKER_HOST", "localhost"),
			Port:     getEnvInt("BROKER_PORT", 6379),
			DB:       getEnvInt("BROKER_DB", 0),
			Password: getEnv("BROKER_PASSWORD", ""),
			SSL:      getEnvBool("BROKER_SSL", false),
			Timeout:  getEnvSeconds("BROKER_TIMEOUT", 5),
		},
		Queue: QueueConfig{
			JobTimeout: getEnvSeconds("QUEUE_JOB_TIMEOUT", 600),
			JobTTL:     getEnvSeconds("QUEUE_JOB_TTL", 3600),
			ResultTTL:  getEnvSeconds("QUEUE_RESULT_TTL", 86400),
		},
		LLM: LLMConfig{
			APIKey:               getEnv("LLM_API_KEY", ""),
			ModelName:            getEnv("LLM_MODEL_NAME", "claude-haiku-4-5-20251001"),
			BaseURL:              getEnv("LLM_BASE_URL", "https://api.anthropic.com"),
			Timeout:              getEnvSeconds("LLM_TIMEOUT_SECONDS", 60),
			MaxTokensPerMinute:   getEnvInt("LLM_MAX_TOKENS_PER_MINUTE", 100000),
			MaxRequestsPerMinute: getEnvInt("LLM_MAX_REQUESTS_PER_MINUTE", 50),
			MaxRetries:           getEnvInt("LLM_MAX_RETRIES", 3),
			RetryBaseDelay:       getEnvSeconds("LLM_RETRY_BASE_DELAY", 2),
			RetryMaxDelay:        getEnvSeconds("LLM_RETRY_MAX_DELAY", 60),
			RetryJitter:          getEnvFloat("LLM_RETRY_JITTER", 0.2),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("ROBOLOG_STORAGE_ENGINE", "postgres"),
			DatabaseURL:   getEnv("ROBOLOG_DATABASE_URL", ""),
			DataPath:      getEnv("ROBOLOG_DATA_PATH", "./data"),
		},
		Prompts: PromptsConfig{
			NoteEnrichment: defaultNoteEnrichmentPrompt,
			TaskEnrichment: defaultTaskEnrichmentPrompt,
			ActivitySchema: defaultActivitySchemaPrompt,
		},
	}

	if path := os.Getenv("ROBOLOG_PROMPTS_FILE"); path != "" {
		if err := cfg.Prompts.loadFile(path); err != nil {
			return nil, fmt.Errorf("config: failed to load prompts file %s: %w", path, err)
		}
	}

	// Env vars take precedence over the file and the defaults.
	if v := os.Getenv("ROBO_NOTE_ENRICHMENT_PROMPT"); v != "" {
		cfg.Prompts.NoteEnrichment = v
	}
	if v := os.Getenv("ROBO_TASK_ENRICHMENT_PROMPT"); v != "" {
		cfg.Prompts.TaskEnrichment = v
	}
	if v := os.Getenv("ROBO_ACTIVITY_SCHEMA_PROMPT"); v != "" {
		cfg.Prompts.ActivitySchema = v
	}

	return cfg, nil
}

// Validate checks settings that would make a worker process unable to run.
// A missing LLM API key is a configuration error: the worker would fail
// every job, so it refuses to start instead.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("config: LLM_API_KEY is required")
	}
	if c.Storage.StorageEngine == "postgres" && c.Storage.DatabaseURL == "" {
		return fmt.Errorf("config: ROBOLOG_DATABASE_URL is required for the postgres storage engine")
	}
	if c.Prompts.NoteEnrichment == "" || c.Prompts.TaskEnrichment == "" || c.Prompts.ActivitySchema == "" {
		return fmt.Errorf("config: all three operation prompts must be non-empty")
	}
	return nil
}

// loadFile merges non-empty prompt values from a YAML file.
func (p *PromptsConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file PromptsConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	if file.NoteEnrichment != "" {
		p.NoteEnrichment = file.NoteEnrichment
	}
	if file.TaskEnrichment != "" {
		p.TaskEnrichment = file.TaskEnrichment
	}
	if file.ActivitySchema != "" {
		p.ActivitySchema = file.ActivitySchema
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvSeconds retrieves an integer environment variable expressed in
// seconds and returns it as a time.Duration.
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

// getEnvFloat retrieves a float environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no"
// as false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
