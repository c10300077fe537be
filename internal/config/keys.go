package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

func (t keyType) String() string {
	switch t {
	case kInt:
		return "int"
	case kBool:
		return "bool"
	case kDuration:
		return "duration"
	}
	return "string"
}

type keySpec struct {
	key    string
	typ    keyType
	env    string
	altEnv string // conventional third-party name, read when env is unset
	secret bool
	field  string // struct path reported by the validator
	apply  func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "SENTIO_SERVER_HOST", field: "Server.Host",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "SENTIO_SERVER_PORT", field: "Server.Port",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "SENTIO_API_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "provider.backend", typ: kString, env: "SENTIO_PROVIDER_BACKEND", field: "Provider.Backend",
		apply:   func(cfg *Config, v any) { cfg.Provider.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.Backend },
	},
	{
		key: "provider.embedder", typ: kString, env: "SENTIO_PROVIDER_EMBEDDER", field: "Provider.Embedder",
		apply:   func(cfg *Config, v any) { cfg.Provider.Embedder = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.Embedder },
	},
	{
		key: "provider.timeout", typ: kDuration, env: "SENTIO_PROVIDER_TIMEOUT", field: "Provider.Timeout",
		apply:   func(cfg *Config, v any) { cfg.Provider.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Provider.Timeout },
	},
	{
		key: "openai.api_key", typ: kString, env: "SENTIO_OPENAI_API_KEY", altEnv: "OPENAI_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "SENTIO_OPENAI_BASE_URL", field: "OpenAI.BaseURL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.chat_model", typ: kString, env: "SENTIO_OPENAI_CHAT_MODEL", field: "OpenAI.ChatModel",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.ChatModel },
	},
	{
		key: "openai.embed_model", typ: kString, env: "SENTIO_OPENAI_EMBED_MODEL", field: "OpenAI.EmbedModel",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.EmbedModel },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SENTIO_OLLAMA_BASE_URL", field: "Ollama.BaseURL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "SENTIO_OLLAMA_CHAT_MODEL", field: "Ollama.ChatModel",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "SENTIO_OLLAMA_EMBED_MODEL", field: "Ollama.EmbedModel",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SENTIO_STORAGE_DATA_DIR", field: "Storage.DataDir",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "vector.backend", typ: kString, env: "SENTIO_VECTOR_BACKEND", field: "Vector.Backend",
		apply:   func(cfg *Config, v any) { cfg.Vector.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.Backend },
	},
	{
		key: "vector.collection", typ: kString, env: "SENTIO_VECTOR_COLLECTION", field: "Vector.Collection",
		apply:   func(cfg *Config, v any) { cfg.Vector.Collection = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.Collection },
	},
	{
		key: "vector.dimension", typ: kInt, env: "SENTIO_VECTOR_DIMENSION", field: "Vector.Dimension",
		apply:   func(cfg *Config, v any) { cfg.Vector.Dimension = v.(int) },
		extract: func(cfg Config) any { return cfg.Vector.Dimension },
	},
	{
		key: "vector.postgres_dsn", typ: kString, env: "SENTIO_VECTOR_POSTGRES_DSN", secret: true, field: "Vector.PostgresDSN",
		apply:   func(cfg *Config, v any) { cfg.Vector.PostgresDSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.PostgresDSN },
	},
	{
		key: "pipeline.index_mode", typ: kString, env: "SENTIO_PIPELINE_INDEX_MODE", field: "Pipeline.IndexMode",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.IndexMode = v.(string) },
		extract: func(cfg Config) any { return cfg.Pipeline.IndexMode },
	},
	{
		key: "pipeline.index_workers", typ: kInt, env: "SENTIO_PIPELINE_INDEX_WORKERS", field: "Pipeline.IndexWorkers",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.IndexWorkers = v.(int) },
		extract: func(cfg Config) any { return cfg.Pipeline.IndexWorkers },
	},
	{
		key: "pipeline.index_timeout", typ: kDuration, env: "SENTIO_PIPELINE_INDEX_TIMEOUT", field: "Pipeline.IndexTimeout",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.IndexTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Pipeline.IndexTimeout },
	},
	{
		key: "pipeline.product_fallback", typ: kBool, env: "SENTIO_PIPELINE_PRODUCT_FALLBACK", field: "Pipeline.ProductFallback",
		apply:   func(cfg *Config, v any) { cfg.Pipeline.ProductFallback = v.(bool) },
		extract: func(cfg Config) any { return cfg.Pipeline.ProductFallback },
	},
	{
		key: "search.default_top_k", typ: kInt, env: "SENTIO_SEARCH_DEFAULT_TOP_K", field: "Search.DefaultTopK",
		apply:   func(cfg *Config, v any) { cfg.Search.DefaultTopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.DefaultTopK },
	},
	{
		key: "search.max_top_k", typ: kInt, env: "SENTIO_SEARCH_MAX_TOP_K", field: "Search.MaxTopK",
		apply:   func(cfg *Config, v any) { cfg.Search.MaxTopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.MaxTopK },
	},
	{
		key: "cache.embedding_size", typ: kInt, env: "SENTIO_CACHE_EMBEDDING_SIZE", field: "Cache.EmbeddingSize",
		apply:   func(cfg *Config, v any) { cfg.Cache.EmbeddingSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.EmbeddingSize },
	},
	{
		key: "log.level", typ: kString, env: "SENTIO_LOG_LEVEL", field: "Log.Level",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parseValue converts raw to the Go type of t.
func parseValue(t keyType, raw string) (any, error) {
	switch t {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	}
	return raw, nil
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", s.typ, s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name := s.env
		raw := os.Getenv(name)
		if raw == "" && s.altEnv != "" {
			name = s.altEnv
			raw = os.Getenv(name)
		}
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typ, name, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
