// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.docloom/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Providers: embedding/chat backend selection (hosted API vs. self-hosted)
//   - Storage: PostgreSQL connection (see storage.go)
//   - Engine: retrieval and context-budget tuning
//   - Observability: OTLP trace export
//
// Security: credentials are never logged; MarshalJSON masks sensitive fields.
// Validation: range checks in validation.go with sentinel errors for
// errors.Is() checks.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration problems. Checked with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrMissingBaseURL indicates a self-hosted provider has no base URL.
	ErrMissingBaseURL = errors.New("missing base URL")

	// ErrInvalidProvider indicates the provider kind is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidTopK indicates the retrieval top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidDimensions indicates the embedding dimensionality is invalid.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Provider kind identifiers used in Config.Provider.
const (
	// ProviderHosted selects the hosted OpenAI-compatible API backend.
	ProviderHosted = "hosted"

	// ProviderSelfHosted selects a self-hosted OpenAI-compatible endpoint
	// (Ollama, vLLM, llama.cpp server and friends).
	ProviderSelfHosted = "self_hosted"
)

// Default model and retrieval settings.
const (
	// DefaultEmbeddingModel is the hosted embedding model.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultEmbeddingDimensions matches DefaultEmbeddingModel's output.
	DefaultEmbeddingDimensions = 1536

	// DefaultChatModel is the fallback chat model when a chatbot's LLM
	// config does not name one.
	DefaultChatModel = "gpt-4o-mini"

	// DefaultTopK is the default number of chunks retrieved per question.
	DefaultTopK = 5

	// MaxTopK bounds retrieval to keep prompts inside context budgets.
	MaxTopK = 20
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets, update MarshalJSON.
type Config struct {
	// Provider selection (process-wide; per-chatbot LLM configs override
	// chat model and credentials at request time)
	Provider    string  `mapstructure:"provider" json:"provider"`
	APIKey      string  `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	BaseURL     string  `mapstructure:"base_url" json:"base_url"`
	ChatModel   string  `mapstructure:"chat_model" json:"chat_model"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Embedding configuration
	EmbeddingModel      string `mapstructure:"embedding_model" json:"embedding_model"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions" json:"embedding_dimensions"`

	// Retrieval configuration
	TopK             int `mapstructure:"top_k" json:"top_k"`
	ContextBudget    int `mapstructure:"context_budget" json:"context_budget"`
	MaxHistoryTokens int `mapstructure:"max_history_tokens" json:"max_history_tokens"`

	// Provider call limits
	ProviderTimeoutSeconds int     `mapstructure:"provider_timeout_seconds" json:"provider_timeout_seconds"`
	ProviderRatePerSecond  float64 `mapstructure:"provider_rate_per_second" json:"provider_rate_per_second"`
	ProviderRateBurst      int     `mapstructure:"provider_rate_burst" json:"provider_rate_burst"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration
	Listen     string `mapstructure:"listen" json:"listen"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`

	// Observability configuration
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".docloom")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider", ProviderHosted)
	viper.SetDefault("chat_model", DefaultChatModel)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("base_url", "http://localhost:11434/v1")

	viper.SetDefault("embedding_model", DefaultEmbeddingModel)
	viper.SetDefault("embedding_dimensions", DefaultEmbeddingDimensions)

	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("context_budget", 8192)
	viper.SetDefault("max_history_tokens", 4000)

	viper.SetDefault("provider_timeout_seconds", 60)
	viper.SetDefault("provider_rate_per_second", 5.0)
	viper.SetDefault("provider_rate_burst", 10)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "docloom")
	viper.SetDefault("postgres_password", "docloom_dev_password")
	viper.SetDefault("postgres_db_name", "docloom")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("listen", "127.0.0.1:8080")
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "docloom")
}

// bindEnvVariables binds environment overrides explicitly.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "DOCLOOM_PROVIDER")
	mustBind("api_key", "OPENAI_API_KEY")
	mustBind("base_url", "DOCLOOM_BASE_URL")
	mustBind("chat_model", "DOCLOOM_CHAT_MODEL")
	mustBind("embedding_model", "DOCLOOM_EMBEDDING_MODEL")
	mustBind("listen", "DOCLOOM_LISTEN")
	mustBind("trust_proxy", "DOCLOOM_TRUST_PROXY")
	mustBind("tracing.enabled", "DOCLOOM_TRACING")
	mustBind("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// MarshalJSON masks sensitive fields so configs can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // drop methods to avoid recursion
	masked := alias(c)
	if masked.APIKey != "" {
		masked.APIKey = "***"
	}
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "***"
	}
	return json.Marshal(masked)
}
