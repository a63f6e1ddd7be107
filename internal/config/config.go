// Package config provides configuration management for the QA engine.
// It follows Uber Go Style Guide conventions for struct organization and error handling.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Common configuration errors
var (
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServiceConfig holds common configuration for external service clients.
type ServiceConfig struct {
	// Connection settings
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key"`

	// Service settings
	Model string `mapstructure:"model" validate:"required"`
}

// EmbeddingConfig configures the embedding provider. Dimension and
// MaxTokens may be left zero for known models; the client layer fills them
// from its model tables.
type EmbeddingConfig struct {
	ServiceConfig `mapstructure:",squash"`

	// Provider selects the implementation: "api" (OpenAI-compatible HTTP
	// endpoint) or "ollama" (local model).
	Provider string `mapstructure:"provider"`

	Dimension int `mapstructure:"dimension" validate:"min=0"`
	MaxTokens int `mapstructure:"max_tokens" validate:"min=0"`

	// PromptTemplate optionally wraps query text before embedding. It must
	// contain {query} and may contain {instruction}.
	PromptTemplate string `mapstructure:"prompt_template"`
}

// Validate checks the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = "api"
	}
	if c.Provider != "api" && c.Provider != "ollama" {
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.PromptTemplate != "" && !strings.Contains(c.PromptTemplate, "{query}") {
		return fmt.Errorf("%w: embedding prompt template must contain {query}", ErrInvalidConfig)
	}
	return nil
}

// LLMConfig configures a chat-completions model. Costs are per million
// tokens and feed the pipeline's cost accounting.
type LLMConfig struct {
	ServiceConfig `mapstructure:",squash"`

	InputCostPerM  float64 `mapstructure:"input_cost" validate:"min=0"`
	OutputCostPerM float64 `mapstructure:"output_cost" validate:"min=0"`
}

// ChunkingConfig defines document chunking parameters.
type ChunkingConfig struct {
	// ChunkSize is the token budget per chunk.
	ChunkSize int `mapstructure:"chunk_size" validate:"required,min=1"`

	// Strategy is one of max_tokens, balanced, min_tokens.
	Strategy string `mapstructure:"strategy"`
}

// Validate checks the chunking configuration and sets defaults.
func (c *ChunkingConfig) Validate() error {
	if c.ChunkSize == 0 {
		c.ChunkSize = 512
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if c.Strategy == "" {
		c.Strategy = "balanced"
	}
	switch c.Strategy {
	case "max_tokens", "balanced", "min_tokens":
	default:
		return fmt.Errorf("%w: unknown chunking strategy %q", ErrInvalidConfig, c.Strategy)
	}
	return nil
}

// QAConfig tunes the iterative research loop.
type QAConfig struct {
	MaxIterations int `mapstructure:"max_iterations" validate:"min=1"`
	TopK          int `mapstructure:"top_k" validate:"min=1"`

	// Parallelism bounds the research fan-out to protect the model
	// provider. Must be at least 2.
	Parallelism int `mapstructure:"parallelism" validate:"min=2"`

	// GlobalContext is prepended to every researcher prompt.
	GlobalContext string `mapstructure:"global_context"`
}

// Validate checks the QA configuration and sets defaults.
func (c *QAConfig) Validate() error {
	if c.MaxIterations == 0 {
		c.MaxIterations = 5
	}
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.Parallelism == 0 {
		c.Parallelism = 4
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be at least 1", ErrInvalidConfig)
	}
	if c.Parallelism < 2 {
		return fmt.Errorf("%w: parallelism must be at least 2", ErrInvalidConfig)
	}
	return nil
}

// Config represents the complete application configuration.
// Structs are organized by functional domain with clear separation.
type Config struct {
	// Server configuration
	Server struct {
		Host string `mapstructure:"host" validate:"required"`
		Port string `mapstructure:"port" validate:"required,numeric"`
	} `mapstructure:"server"`

	// Database configuration
	Database struct {
		Host     string `mapstructure:"host" validate:"required,hostname"`
		Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
		User     string `mapstructure:"user" validate:"required"`
		Password string `mapstructure:"password" validate:"required"`
		DBName   string `mapstructure:"dbname" validate:"required"`
	} `mapstructure:"database"`

	// Cache configuration
	Redis struct {
		Host     string `mapstructure:"host" validate:"required,hostname"`
		Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db" validate:"min=0,max=15"`
	} `mapstructure:"redis"`

	// Vector store configuration
	Store struct {
		Table string `mapstructure:"table" validate:"required"`
	} `mapstructure:"store"`

	// Ingestion configuration
	Chunking ChunkingConfig `mapstructure:"chunking"`

	// Research loop configuration
	QA QAConfig `mapstructure:"qa"`

	// External services configuration
	Services struct {
		Embedding EmbeddingConfig `mapstructure:"embedding"`
		LLM       LLMConfig       `mapstructure:"llm"`
	} `mapstructure:"services"`
}

// DatabaseDSN assembles the PostgreSQL connection string.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}

// Validate performs configuration validation and sets defaults.
func (c *Config) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking config: %w", err)
	}
	if err := c.QA.Validate(); err != nil {
		return fmt.Errorf("qa config: %w", err)
	}
	if err := c.Services.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding config: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from file and environment variables.
// It follows Uber Go Style Guide error handling patterns.
func LoadConfig(configPath string) (*Config, error) {
	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AutomaticEnv()

	// Set intelligent defaults
	setDefaults()

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("%w: %v", ErrConfigNotFound, err)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Unmarshal into struct
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults configures sensible default values.
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")

	// Store defaults
	viper.SetDefault("store.table", "vectors")

	// Chunking defaults
	viper.SetDefault("chunking.chunk_size", 512)
	viper.SetDefault("chunking.strategy", "balanced")

	// Research loop defaults
	viper.SetDefault("qa.max_iterations", 5)
	viper.SetDefault("qa.top_k", 10)
	viper.SetDefault("qa.parallelism", 4)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	// Embedding defaults
	viper.SetDefault("services.embedding.provider", "api")
}

// MustLoadConfig loads configuration and panics on failure.
// Use this only in main() or init() functions where failure should be fatal.
func MustLoadConfig(configPath string) *Config {
	config, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return config
}
