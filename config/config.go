// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

// Package config loads the ImageFlow configuration: enabled backends
// with credentials and timeouts, cache bounds, and the shared retry
// policy. Precedence is defaults → YAML file → environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/imageflow/imgen"
	"github.com/BaSui01/imageflow/imgen/adapters/gemini"
	"github.com/BaSui01/imageflow/imgen/adapters/openai"
	"github.com/BaSui01/imageflow/imgen/adapters/stability"
	"github.com/BaSui01/imageflow/imgen/cache"
)

// OpenAIBackend wraps the OpenAI adapter configuration with an enable
// flag; StabilityBackend and GeminiBackend do the same for theirs.
type OpenAIBackend struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	openai.Config `yaml:",inline" json:",inline"`
}

type StabilityBackend struct {
	Enabled          bool `yaml:"enabled" json:"enabled"`
	stability.Config `yaml:",inline" json:",inline"`
}

type GeminiBackend struct {
	Enabled       bool `yaml:"enabled" json:"enabled"`
	gemini.Config `yaml:",inline" json:",inline"`
}

// CacheConfig configures the result cache and its optional Redis tier.
type CacheConfig struct {
	TTL          time.Duration     `yaml:"ttl" json:"ttl"`
	MaxSize      int               `yaml:"max_size" json:"max_size"`
	RedisEnabled bool              `yaml:"redis_enabled" json:"redis_enabled"`
	Redis        cache.RedisConfig `yaml:"redis" json:"redis"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" json:"level"`
	Development bool   `yaml:"development" json:"development"`
}

// Config is the complete ImageFlow configuration.
type Config struct {
	OpenAI    OpenAIBackend    `yaml:"openai" json:"openai"`
	Stability StabilityBackend `yaml:"stability" json:"stability"`
	Gemini    GeminiBackend    `yaml:"gemini" json:"gemini"`

	Cache CacheConfig       `yaml:"cache" json:"cache"`
	Retry imgen.RetryPolicy `yaml:"retry" json:"retry"`
	Log   LogConfig         `yaml:"log" json:"log"`

	// Priorities overrides the per-capability adapter order.
	Priorities map[string][]string `yaml:"priorities,omitempty" json:"priorities,omitempty"`
}

// Default returns the configuration used before any file or environment
// override is applied. No backend is enabled by default.
func Default() Config {
	return Config{
		OpenAI:    OpenAIBackend{Config: openai.DefaultConfig()},
		Stability: StabilityBackend{Config: stability.DefaultConfig()},
		Gemini:    GeminiBackend{Config: gemini.DefaultConfig()},
		Cache: CacheConfig{
			TTL:     1 * time.Hour,
			MaxSize: 100,
			Redis:   cache.DefaultRedisConfig(),
		},
		Retry: *imgen.DefaultRetryPolicy(),
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	return &cfg, nil
}

// applyEnv overlays credentials from the conventional environment
// variables. A backend with a key from the environment is enabled
// unless the file said otherwise.
func (c *Config) applyEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.OpenAI.APIKey = key
		c.OpenAI.Enabled = true
	}
	if key := os.Getenv("STABILITY_API_KEY"); key != "" {
		c.Stability.APIKey = key
		c.Stability.Enabled = true
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
		c.Gemini.Enabled = true
	}
}

// PriorityTable converts the configured priority override, falling back
// to the built-in order when unset.
func (c *Config) PriorityTable() imgen.PriorityTable {
	if len(c.Priorities) == 0 {
		return imgen.DefaultPriorities()
	}
	table := make(imgen.PriorityTable, len(c.Priorities))
	for capability, names := range c.Priorities {
		table[imgen.Capability(capability)] = names
	}
	return table
}
