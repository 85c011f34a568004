// Package config provides configuration management for attache.
// Settings load from an optional YAML file, then environment variables with
// the ATTACHE_ prefix override file values, and sensible defaults cover the
// rest.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the attache entity index.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Vector    VectorConfig    `yaml:"vector"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Log       LogConfig       `yaml:"log"`
}

// StorageConfig contains relational store configuration.
type StorageConfig struct {
	// DataPath is the path to the SQLite database file (default: ./data/attache.db).
	DataPath string `yaml:"data_path"`
}

// VectorConfig contains similarity-index configuration.
type VectorConfig struct {
	// Backend selects the point store: "sqlite" (default) or "postgres".
	Backend string `yaml:"backend"`

	// PostgresDSN is the connection string for the postgres backend
	// (requires the pgvector extension).
	PostgresDSN string `yaml:"postgres_dsn"`

	// ScoreThreshold is the default minimum similarity score for task
	// context assembly (default: 0.3).
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	// Provider selects the generator: "ollama" (default), "openai", "static".
	Provider string `yaml:"provider"`

	// Dimension is the embedding vector dimension (default: 768).
	Dimension int `yaml:"dimension"`

	OllamaURL   string `yaml:"ollama_url"`   // default: http://localhost:11434
	OllamaModel string `yaml:"ollama_model"` // default: nomic-embed-text

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIModel   string `yaml:"openai_model"` // default: text-embedding-3-small
	OpenAIBaseURL string `yaml:"openai_base_url"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info).
	Level string `yaml:"level"`

	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

// Load builds the configuration from defaults and ATTACHE_-prefixed
// environment variables.
func Load() (*Config, error) {
	cfg := defaults()
	applyEnv(cfg)
	return cfg, cfg.validate()
}

// LoadFile builds the configuration from defaults, the given YAML file, and
// environment variable overrides, in that order of precedence (lowest first).
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, cfg.validate()
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			DataPath: "./data/attache.db",
		},
		Vector: VectorConfig{
			Backend:        "sqlite",
			ScoreThreshold: 0.3,
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			Dimension:   768,
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "nomic-embed-text",
			OpenAIModel: "text-embedding-3-small",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Storage.DataPath, "ATTACHE_DATA_PATH")
	setString(&cfg.Vector.Backend, "ATTACHE_VECTOR_BACKEND")
	setString(&cfg.Vector.PostgresDSN, "ATTACHE_VECTOR_POSTGRES_DSN")
	setFloat(&cfg.Vector.ScoreThreshold, "ATTACHE_VECTOR_SCORE_THRESHOLD")
	setString(&cfg.Embedding.Provider, "ATTACHE_EMBEDDING_PROVIDER")
	setInt(&cfg.Embedding.Dimension, "ATTACHE_EMBEDDING_DIMENSION")
	setString(&cfg.Embedding.OllamaURL, "ATTACHE_OLLAMA_URL")
	setString(&cfg.Embedding.OllamaModel, "ATTACHE_OLLAMA_MODEL")
	setString(&cfg.Embedding.OpenAIAPIKey, "ATTACHE_OPENAI_API_KEY")
	setString(&cfg.Embedding.OpenAIModel, "ATTACHE_OPENAI_MODEL")
	setString(&cfg.Embedding.OpenAIBaseURL, "ATTACHE_OPENAI_BASE_URL")
	setString(&cfg.Log.Level, "ATTACHE_LOG_LEVEL")
	setBool(&cfg.Log.Development, "ATTACHE_LOG_DEVELOPMENT")
}

func (c *Config) validate() error {
	switch c.Vector.Backend {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid vector backend %q (expected sqlite or postgres)", c.Vector.Backend)
	}
	if c.Vector.Backend == "postgres" && c.Vector.PostgresDSN == "" {
		return fmt.Errorf("postgres vector backend requires ATTACHE_VECTOR_POSTGRES_DSN")
	}
	switch c.Embedding.Provider {
	case "ollama", "openai", "static":
	default:
		return fmt.Errorf("invalid embedding provider %q (expected ollama, openai, or static)", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Vector.ScoreThreshold < 0 || c.Vector.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold must be in [0, 1], got %g", c.Vector.ScoreThreshold)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
