package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelConfig LLM model config
type ModelConfig struct {
	ModelName   string  `mapstructure:"model_name"`
	Token       string  `mapstructure:"token"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	JSONMode    bool    `mapstructure:"json_mode"`
}

// EmbeddingConfig embedding backend config
type EmbeddingConfig struct {
	Provider    string `mapstructure:"provider"` // openai, ollama, genai
	Model       string `mapstructure:"model"`
	Token       string `mapstructure:"token"`
	BaseURL     string `mapstructure:"base_url"`
	BatchSize   int    `mapstructure:"batch_size"`
	Concurrency int    `mapstructure:"concurrency"`
	CachePath   string `mapstructure:"cache_path"` // SQLite file, empty disables the cache
}

// RetryConfig retry policy as written in the config file
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// Policy converts the config to a RetryPolicy.
func (r RetryConfig) Policy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		Multiplier:  r.Multiplier,
	}
}

// Config llm_config.json structure
type Config struct {
	DefaultModel string                 `mapstructure:"default_model"`
	Models       map[string]ModelConfig `mapstructure:"models"`
	Embedding    EmbeddingConfig        `mapstructure:"embedding"`
	Retry        RetryConfig            `mapstructure:"retry"`
}

const (
	configName = "llm_config"
	envPrefix  = "EVIDENCE"

	DefaultModelName      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("default_model", DefaultModelName)
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", DefaultEmbeddingModel)
	v.SetDefault("embedding.token", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("embedding.cache_path", "")
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", "3s")
	v.SetDefault("retry.max_delay", "60s")
	v.SetDefault("retry.multiplier", 2.0)
}

// Load reads llm_config.json. With an empty path it searches the working
// directory and its two parents; a missing file then yields the defaults.
// EVIDENCE_* environment variables override file values
// (EVIDENCE_EMBEDDING_PROVIDER=ollama).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath("../..")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Models == nil {
		cfg.Models = make(map[string]ModelConfig)
	}
	return &cfg, nil
}

// Model returns the named model config. Unknown names are treated as a bare
// model name on the default OpenAI endpoint.
func (c *Config) Model(name string) ModelConfig {
	if name == "" {
		name = c.DefaultModel
	}
	if m, ok := c.Models[strings.ToLower(name)]; ok {
		if m.ModelName == "" {
			m.ModelName = name
		}
		return m
	}
	return ModelConfig{ModelName: name}
}

// CreateLLM creates LLM instance
func CreateLLM(config ModelConfig) (llms.Model, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("no API token configured for model %q", config.ModelName)
	}
	opts := []openai.Option{
		openai.WithModel(config.ModelName),
		openai.WithToken(config.Token),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}
	if config.JSONMode {
		opts = append(opts, openai.WithResponseFormat(openai.ResponseFormatJSON))
	}
	return openai.New(opts...)
}
