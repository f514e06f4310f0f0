// Package config loads runtime configuration from the environment and an
// optional YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Storage StorageConfig `koanf:"storage"`
	Webhook WebhookConfig `koanf:"webhook"`
	Agent   AgentConfig   `koanf:"agent"`
	OpenAI  OpenAIConfig  `koanf:"openai"`
	NATS    NATSConfig    `koanf:"nats"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type WebhookConfig struct {
	// ResponseTimeout is how long an inbound webhook request waits for the
	// workflow to deliver a response before acknowledging.
	ResponseTimeout string `koanf:"response_timeout"`
}

type AgentConfig struct {
	MaxIterations int `koanf:"max_iterations"`
}

type OpenAIConfig struct {
	APIKey string `koanf:"api_key"`
}

type NATSConfig struct {
	URL string `koanf:"url"`
}

// ResponseTimeoutDuration parses the configured webhook wait, falling back
// to 30 seconds on absence or a malformed value.
func (c *Config) ResponseTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Webhook.ResponseTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Load reads configuration from an optional YAML file at path (skipped when
// path is empty or missing) with HOOKFLOW_-prefixed environment variables
// layered on top.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider("HOOKFLOW_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "HOOKFLOW_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("storage.type") {
		k.Set("storage.type", "memory")
	}
	if !k.Exists("webhook.response_timeout") {
		k.Set("webhook.response_timeout", "30s")
	}
	if !k.Exists("agent.max_iterations") {
		k.Set("agent.max_iterations", 10)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
