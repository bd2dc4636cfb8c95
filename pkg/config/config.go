// Package config loads Roadwise settings from defaults, an optional
// roadwise.{yaml,toml,json} file and ROADWISE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: ROADWISE_DATA_DIR,
// ROADWISE_EMBED_PROVIDER, ROADWISE_RESOLVER_TOP_K, ...
const EnvPrefix = "ROADWISE"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete Roadwise configuration.
type Config struct {
	DataDir   string `mapstructure:"data_dir"`
	Extension string `mapstructure:"extension"`

	Resolver ResolverConfig `mapstructure:"resolver"`
	Index    IndexConfig    `mapstructure:"index"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
	Neo4j    Neo4jConfig    `mapstructure:"neo4j"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Cache    CacheConfig    `mapstructure:"cache"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
}

// ResolverConfig selects how questions are mapped to road names.
type ResolverConfig struct {
	Kind        string  `mapstructure:"kind"` // embedding | substring | fuzzy
	TopK        int     `mapstructure:"top_k"`
	Threshold   float32 `mapstructure:"threshold"`
	FuzzyCutoff float64 `mapstructure:"fuzzy_cutoff"`
}

// IndexConfig configures the road-name similarity index.
type IndexConfig struct {
	Backend     string `mapstructure:"backend"` // memory | qdrant
	BatchSize   int    `mapstructure:"batch_size"`
	Parallelism int    `mapstructure:"parallelism"`
}

// EmbedConfig configures the embedding service.
type EmbedConfig struct {
	Provider   string  `mapstructure:"provider"` // ollama | openai
	URL        string  `mapstructure:"url"`
	Model      string  `mapstructure:"model"` // empty selects the provider default
	APIKey     string  `mapstructure:"api_key"`
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	Burst      int     `mapstructure:"burst"`
}

// ChatConfig configures the chat model.
type ChatConfig struct {
	Provider    string  `mapstructure:"provider"` // ollama | openai
	URL         string  `mapstructure:"url"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
}

type QdrantConfig struct {
	Addr       string `mapstructure:"addr"`
	Collection string `mapstructure:"collection"`
}

type Neo4jConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// CacheConfig locates the SQLite embedding cache. An empty path disables it.
type CacheConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	Port       int    `mapstructure:"port"`
	CORSOrigin string `mapstructure:"cors_origin"`
	// ChatRatePerSec caps chat requests across all clients. Zero disables
	// the limit.
	ChatRatePerSec float64 `mapstructure:"chat_rate_per_sec"`
	ChatBurst      int     `mapstructure:"chat_burst"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

type RefreshConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("extension", ".geojson")

	v.SetDefault("resolver.kind", "embedding")
	v.SetDefault("resolver.top_k", 3)
	v.SetDefault("resolver.threshold", 0.6)
	v.SetDefault("resolver.fuzzy_cutoff", 0.6)

	v.SetDefault("index.backend", "memory")
	v.SetDefault("index.batch_size", 10)
	v.SetDefault("index.parallelism", 1)

	v.SetDefault("embed.provider", "ollama")
	v.SetDefault("embed.url", "")
	v.SetDefault("embed.model", "")
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.rate_per_sec", 0)
	v.SetDefault("embed.burst", 1)

	v.SetDefault("chat.provider", "ollama")
	v.SetDefault("chat.url", "")
	v.SetDefault("chat.model", "")
	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.temperature", 0.3)

	v.SetDefault("qdrant.addr", "localhost:6334")
	v.SetDefault("qdrant.collection", "roadwise_roads")

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.url", "neo4j://localhost:7687")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.pass", "")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")

	v.SetDefault("cache.path", "")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.cors_origin", "*")
	v.SetDefault("http.chat_rate_per_sec", 0)
	v.SetDefault("http.chat_burst", 5)

	v.SetDefault("metrics.port", 9090)

	v.SetDefault("refresh.interval", "5m")
}

// Default returns the configuration with no file and no environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load reads path when it is set, otherwise an optional roadwise.* file in
// the working directory or $HOME/.config/roadwise. Environment variables
// override both. The result is validated.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Provider keys are commonly exported under their own names.
	_ = v.BindEnv("embed.api_key", EnvPrefix+"_EMBED_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("chat.api_key", EnvPrefix+"_CHAT_API_KEY", "OPENAI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("roadwise")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/roadwise")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func invalid(field string, value any) error {
	return fmt.Errorf("config: %s=%v: %w", field, value, ErrInvalid)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate checks enumerations, ranges and provider credentials.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.DataDir) == "":
		return invalid("data_dir", c.DataDir)
	case !oneOf(c.Resolver.Kind, "embedding", "substring", "fuzzy"):
		return invalid("resolver.kind", c.Resolver.Kind)
	case c.Resolver.TopK < 1:
		return invalid("resolver.top_k", c.Resolver.TopK)
	case c.Resolver.FuzzyCutoff < 0 || c.Resolver.FuzzyCutoff > 1:
		return invalid("resolver.fuzzy_cutoff", c.Resolver.FuzzyCutoff)
	case !oneOf(c.Index.Backend, "memory", "qdrant"):
		return invalid("index.backend", c.Index.Backend)
	case c.Index.BatchSize < 1:
		return invalid("index.batch_size", c.Index.BatchSize)
	case !oneOf(c.Embed.Provider, "ollama", "openai"):
		return invalid("embed.provider", c.Embed.Provider)
	case c.Embed.Provider == "openai" && c.Embed.APIKey == "":
		return invalid("embed.api_key", "<empty>")
	case c.Embed.RatePerSec < 0:
		return invalid("embed.rate_per_sec", c.Embed.RatePerSec)
	case !oneOf(c.Chat.Provider, "ollama", "openai"):
		return invalid("chat.provider", c.Chat.Provider)
	case c.Chat.Provider == "openai" && c.Chat.APIKey == "":
		return invalid("chat.api_key", "<empty>")
	case c.Index.Backend == "qdrant" && c.Qdrant.Addr == "":
		return invalid("qdrant.addr", c.Qdrant.Addr)
	case c.HTTP.Port < 0 || c.HTTP.Port > 65535:
		return invalid("http.port", c.HTTP.Port)
	case c.HTTP.ChatRatePerSec < 0:
		return invalid("http.chat_rate_per_sec", c.HTTP.ChatRatePerSec)
	case c.Metrics.Port < 0 || c.Metrics.Port > 65535:
		return invalid("metrics.port", c.Metrics.Port)
	case c.Refresh.Interval < 0:
		return invalid("refresh.interval", c.Refresh.Interval)
	}
	return nil
}
