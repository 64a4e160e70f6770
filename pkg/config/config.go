// Package config loads engine configuration from YAML and environment.
package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for queryhawk-engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (passwords, API keys) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Language model and embeddings providers
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Pipeline tuning
	Pipeline PipelineConfig `yaml:"pipeline"`

	// ConceptCatalogPath points at the business concept catalog file.
	ConceptCatalogPath string `yaml:"concept_catalog_path" env:"CONCEPT_CATALOG_PATH" env-default:"concepts.yaml"`

	// VectorStore selects where concept embeddings live: "memory" for an
	// in-process store rebuilt at startup, "pgvector" for the database.
	VectorStore string `yaml:"vector_store" env:"VECTOR_STORE" env-default:"memory"`
}

// DatabaseConfig holds PostgreSQL connection settings for the target
// relational database the engine introspects and executes against.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"queryhawk"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"queryhawk"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MinConnections int32  `yaml:"min_connections" env:"PGMIN_CONNECTIONS" env-default:"1"`
}

// ConnectionString returns a PostgreSQL URL with user-provided fields
// URL-escaped, so passwords containing @, /, # or ? do not break parsing.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		url.QueryEscape(c.Database),
		c.SSLMode,
	)
}

// LLMConfig selects and configures the language model provider.
type LLMConfig struct {
	// Provider is "openai" for any OpenAI-compatible endpoint, or
	// "anthropic" for the Anthropic API.
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML

	// TimeoutSeconds bounds a single provider call.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"60"`
	// MaxRetries caps retries of transient provider failures.
	MaxRetries int `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"3"`
	// Temperature for SQL generation; low by default for determinism.
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
}

// EmbeddingConfig configures the embeddings provider. It defaults to the
// same endpoint as the LLM; any OpenAI-compatible embeddings API works.
type EmbeddingConfig struct {
	Endpoint string `yaml:"endpoint" env:"EMBEDDING_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey   string `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML

	TimeoutSeconds int `yaml:"timeout_seconds" env:"EMBEDDING_TIMEOUT_SECONDS" env-default:"30"`
}

// PipelineConfig tunes the query pipeline stages.
type PipelineConfig struct {
	// MaxEntities caps how many recognized tables a run keeps.
	MaxEntities int `yaml:"max_entities" env:"PIPELINE_MAX_ENTITIES" env-default:"5"`
	// MaxConcepts caps how many matched concepts a run keeps.
	MaxConcepts int `yaml:"max_concepts" env:"PIPELINE_MAX_CONCEPTS" env-default:"3"`
	// MinSimilarity drops concept matches below this cosine similarity.
	MinSimilarity float64 `yaml:"min_similarity" env:"PIPELINE_MIN_SIMILARITY" env-default:"0.5"`
	// SchemaTTLMinutes is how long a schema snapshot is served before a
	// background refresh is attempted.
	SchemaTTLMinutes int `yaml:"schema_ttl_minutes" env:"PIPELINE_SCHEMA_TTL_MINUTES" env-default:"30"`
	// ExecutionRowLimit bounds rows sampled when executing validated SQL.
	ExecutionRowLimit int `yaml:"execution_row_limit" env:"PIPELINE_EXECUTION_ROW_LIMIT" env-default:"100"`
	// ExecutionTimeoutSeconds caps elapsed time of a sampled execution.
	ExecutionTimeoutSeconds int `yaml:"execution_timeout_seconds" env:"PIPELINE_EXECUTION_TIMEOUT_SECONDS" env-default:"10"`
}

// Load reads configuration from path with environment variable overrides.
// If the file does not exist, configuration comes from environment
// variables and defaults alone.
func Load(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	// Embeddings default to the LLM endpoint and key when not set.
	if cfg.Embedding.Endpoint == "" {
		cfg.Embedding.Endpoint = cfg.LLM.Endpoint
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.MinSimilarity < 0 || c.Pipeline.MinSimilarity > 1 {
		return fmt.Errorf("min_similarity must be in [0,1], got %v", c.Pipeline.MinSimilarity)
	}
	if c.Pipeline.MaxEntities <= 0 {
		return fmt.Errorf("max_entities must be positive, got %d", c.Pipeline.MaxEntities)
	}
	if c.Pipeline.MaxConcepts <= 0 {
		return fmt.Errorf("max_concepts must be positive, got %d", c.Pipeline.MaxConcepts)
	}
	if c.Pipeline.ExecutionRowLimit <= 0 {
		return fmt.Errorf("execution_row_limit must be positive, got %d", c.Pipeline.ExecutionRowLimit)
	}
	if c.VectorStore != "memory" && c.VectorStore != "pgvector" {
		return fmt.Errorf("vector_store must be memory or pgvector, got %q", c.VectorStore)
	}
	return nil
}
