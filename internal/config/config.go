// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port    int    `env:"PORT" envDefault:"8080"`
	LogMode string `env:"LOG_MODE" envDefault:"development"`

	// Storage
	DatabaseURL   string `env:"DATABASE_URL,required"`
	NotifyChannel string `env:"POSTGRES_NOTIFY_CHANNEL" envDefault:"summary_updates"`

	// Language model (any OpenAI-compatible endpoint)
	OpenAIKey     string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	ChatModel     string        `env:"OPENAI_MODEL_CHAT" envDefault:"gpt-4o-mini"`
	SummaryModel  string        `env:"OPENAI_MODEL_SUMMARY"`
	ModelTimeout  time.Duration `env:"MODEL_TIMEOUT" envDefault:"60s"`

	// Retrieval
	EmbeddingModel      string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimensions int    `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`
	DocsDir             string `env:"RAG_DOCS_DIR" envDefault:"data/disease_guidelines"`
	IndexPath           string `env:"RAG_INDEX_PATH" envDefault:"data/medical_index"`
	TopK                int    `env:"RAG_TOP_K" envDefault:"3"`
	RedisURL            string `env:"REDIS_URL"`

	// Tool server; an empty command means "this binary, toolserver subcommand".
	ToolServerCommand string        `env:"TOOL_SERVER_COMMAND"`
	ToolServerArgs    []string      `env:"TOOL_SERVER_ARGS" envSeparator:" "`
	ToolTimeout       time.Duration `env:"TOOL_TIMEOUT" envDefault:"20s"`
}

// Load reads an optional .env file and then parses the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = cfg.ChatModel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants the parser cannot express.
func (c *Config) Validate() error {
	if c.Port <= 0 {
		return errors.New("PORT must be > 0")
	}
	if c.TopK <= 0 {
		return errors.New("RAG_TOP_K must be > 0")
	}
	if c.EmbeddingDimensions <= 0 {
		return errors.New("EMBEDDING_DIMENSIONS must be > 0")
	}
	if c.ModelTimeout <= 0 || c.ToolTimeout <= 0 {
		return errors.New("MODEL_TIMEOUT and TOOL_TIMEOUT must be positive")
	}
	if _, _, err := c.Database(); err != nil {
		return err
	}
	return nil
}

// Database splits DATABASE_URL into a database/sql driver name and DSN.
// sqlite://path selects the embedded SQLite driver; postgres:// and
// postgresql:// are passed to lib/pq unchanged; memory:// keeps history in
// process memory only.
func (c *Config) Database() (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(c.DatabaseURL, "sqlite://"):
		return "sqlite", strings.TrimPrefix(c.DatabaseURL, "sqlite://"), nil
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres", c.DatabaseURL, nil
	case c.DatabaseURL == "memory://":
		return "memory", "", nil
	default:
		return "", "", fmt.Errorf("DATABASE_URL must start with postgres://, sqlite:// or be memory://")
	}
}
