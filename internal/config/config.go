package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	OpenAI   OpenAIConfig
	Ollama   OllamaConfig
	Storage  StorageConfig
	Vector   VectorConfig
	Pipeline PipelineConfig
	Search   SearchConfig
	Cache    CacheConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port int `validate:"min=1,max=65535"`
	// APIToken enables bearer authentication on /api routes when set.
	APIToken string
}

type ProviderConfig struct {
	// Backend serves text generation: openai, ollama or none.
	Backend string `validate:"oneof=openai ollama none"`
	// Embedder serves embeddings: openai, ollama or hash.
	Embedder string        `validate:"oneof=openai ollama hash"`
	Timeout  time.Duration `validate:"gte=0"`
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string `validate:"required"`
	EmbedModel string `validate:"required"`
}

type OllamaConfig struct {
	BaseURL    string `validate:"required,url"`
	ChatModel  string `validate:"required"`
	EmbedModel string `validate:"required"`
}

type StorageConfig struct {
	DataDir string `validate:"required"`
}

type VectorConfig struct {
	// Backend is sqlite, pgvector, memory or none.
	Backend     string `validate:"oneof=sqlite pgvector memory none"`
	Collection  string `validate:"required"`
	Dimension   int    `validate:"min=1"`
	PostgresDSN string `validate:"required_if=Backend pgvector"`
}

type PipelineConfig struct {
	IndexMode       string `validate:"oneof=async sync"`
	IndexWorkers    int    `validate:"min=1"`
	IndexTimeout    time.Duration
	ProductFallback bool
}

type SearchConfig struct {
	DefaultTopK int `validate:"min=1,ltefield=MaxTopK"`
	MaxTopK     int `validate:"min=1"`
}

type CacheConfig struct {
	// EmbeddingSize is the LRU capacity for query embeddings. 0 disables it.
	EmbeddingSize int `validate:"gte=0"`
}

type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Provider: ProviderConfig{
			Backend:  "openai",
			Embedder: "openai",
			Timeout:  30 * time.Second,
		},
		OpenAI: OpenAIConfig{
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.2",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Vector: VectorConfig{
			Backend:    "sqlite",
			Collection: "messages",
			Dimension:  1536,
		},
		Pipeline: PipelineConfig{
			IndexMode:       "async",
			IndexWorkers:    4,
			IndexTimeout:    30 * time.Second,
			ProductFallback: true,
		},
		Search: SearchConfig{
			DefaultTopK: 5,
			MaxTopK:     100,
		},
		Cache: CacheConfig{
			EmbeddingSize: 256,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration in layers: defaults, then the JSON file at
// $XDG_CONFIG_HOME/sentio/config.json, then a .env file in the working
// directory, then SENTIO_* environment variables.
//
// Secrets are never read from the JSON file.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), ".env")
}

func loadWith(b ConfigBackend, envFiles ...string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	for _, f := range envFiles {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "[WARN] could not load env file %s: %v\n", f, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks enum values, ranges and cross-field requirements.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: invalid value %v (%s %s)", keyForField(fe.Namespace()), fe.Value(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// RequireCredentials reports a missing OpenAI key when an OpenAI backend is
// selected. Only commands that run the pipeline call it.
func (c Config) RequireCredentials() error {
	needsKey := c.Provider.Backend == "openai" || c.Provider.Embedder == "openai"
	if needsKey && c.OpenAI.APIKey == "" && c.OpenAI.BaseURL == "" {
		return errors.New("missing required config: OpenAI API key. " +
			"Set it via environment variable SENTIO_OPENAI_API_KEY or OPENAI_API_KEY, " +
			"or choose another backend with provider.backend / provider.embedder")
	}
	return nil
}

// keyForField maps a validator namespace like "Config.Vector.Backend" to
// the matching config key when one exists.
func keyForField(ns string) string {
	for _, s := range specs {
		if s.field != "" && strings.HasSuffix(ns, "."+s.field) {
			return s.key
		}
	}
	return ns
}
