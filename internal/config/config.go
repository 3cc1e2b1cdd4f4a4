// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds process-wide configuration, loaded once in main and passed
// down by constructor injection (Design Note §9).
type Config struct {
	StoreURL           string `mapstructure:"store_url"`
	StoreReadonlyURL   string `mapstructure:"store_readonly_url"`
	VectorIndexURL     string `mapstructure:"vector_index_url"`
	VectorIndexAPIKey  string `mapstructure:"vector_index_api_key"`
	QueueBrokerURL     string `mapstructure:"queue_broker_url"`

	LLMProvider        string            `mapstructure:"llm_provider"`
	LLMModel           string            `mapstructure:"llm_model"`
	LLMAPIKeysByProvider map[string]string `mapstructure:"llm_api_keys_by_provider"`

	VisionProvider string `mapstructure:"vision_provider"`
	VisionModel    string `mapstructure:"vision_model"`

	EmbeddingProvider string `mapstructure:"embedding_provider"`
	EmbeddingModel    string `mapstructure:"embedding_model"`

	WebSearchAPIKey string `mapstructure:"web_search_api_key"`
	PlatformToken   string `mapstructure:"platform_token"`

	ThinkingEnabled      bool   `mapstructure:"thinking_enabled"`
	ThinkingEffort       string `mapstructure:"thinking_effort"`
	ThinkingBudgetTokens int    `mapstructure:"thinking_budget_tokens"`

	WorkerConcurrency       int `mapstructure:"worker_concurrency"`
	TaskSoftLimitSeconds    int `mapstructure:"task_soft_limit_s"`
	TaskHardLimitSeconds    int `mapstructure:"task_hard_limit_s"`
	TasksPerWorkerRecycle   int `mapstructure:"tasks_per_worker_recycle"`

	StoreBotMessages bool `mapstructure:"store_bot_messages"`

	ThematicCacheDir   string `mapstructure:"thematic_cache_dir"`
	ProviderOverrideFile string `mapstructure:"provider_override_file"`

	HTTPPort int `mapstructure:"http_port"`
}

// Load reads configuration from configPath (or ./config.yaml if empty),
// layered with environment variables prefixed CIL_, following the teacher's
// viper+mapstructure pattern (internal/drone/config.go).
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	viper.SetDefault("store_url", "./cil.db")
	viper.SetDefault("store_readonly_url", "./cil.db")
	viper.SetDefault("vector_index_url", "localhost:6334")
	viper.SetDefault("queue_broker_url", "localhost:6379")
	viper.SetDefault("llm_provider", "mock")
	viper.SetDefault("llm_model", "gpt-4o-mini")
	viper.SetDefault("vision_provider", "mock")
	viper.SetDefault("vision_model", "gpt-4o-mini")
	viper.SetDefault("embedding_provider", "mock")
	viper.SetDefault("embedding_model", "text-embedding-3-small")
	viper.SetDefault("thinking_enabled", false)
	viper.SetDefault("thinking_effort", "low")
	viper.SetDefault("thinking_budget_tokens", 0)
	viper.SetDefault("worker_concurrency", 5)
	viper.SetDefault("task_soft_limit_s", 300)
	viper.SetDefault("task_hard_limit_s", 600)
	viper.SetDefault("tasks_per_worker_recycle", 1000)
	viper.SetDefault("store_bot_messages", true)
	viper.SetDefault("thematic_cache_dir", "./cache/thematic")
	viper.SetDefault("provider_override_file", "./cache/provider_settings.json")
	viper.SetDefault("http_port", 8080)

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		if _, err := os.Stat("./config.yaml"); err == nil {
			viper.SetConfigFile("./config.yaml")
		} else {
			log.Printf("no config.yaml found, using defaults + environment")
		}
	}

	if viper.ConfigFileUsed() != "" {
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	viper.SetEnvPrefix("CIL")
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.ThematicCacheDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create thematic cache dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.ProviderOverrideFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create provider override dir: %w", err)
	}

	return &cfg, nil
}

// GenerateDefaultConfig writes a commented default YAML file, mirroring
// the teacher's generateDefaultConfig, with no real secrets ever written.
func GenerateDefaultConfig(path string) error {
	const body = `# Community intelligence layer configuration
store_url: "./cil.db"
store_readonly_url: "./cil.db"
vector_index_url: "localhost:6334"
queue_broker_url: "localhost:6379"

llm_provider: "mock"  # mock | openai
llm_model: "gpt-4o-mini"

vision_provider: "mock"
vision_model: "gpt-4o-mini"

embedding_provider: "mock"  # mock | openai | ollama
embedding_model: "text-embedding-3-small"

thinking_enabled: false
thinking_effort: "low"
thinking_budget_tokens: 0

worker_concurrency: 5
task_soft_limit_s: 300
task_hard_limit_s: 600
tasks_per_worker_recycle: 1000

store_bot_messages: true
thematic_cache_dir: "./cache/thematic"
provider_override_file: "./cache/provider_settings.json"

http_port: 8080
`
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(body), 0644)
}
