// Package config loads bridge configuration from a YAML file, an optional
// .env file and environment variable overrides, in that order of
// precedence (environment wins).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Config holds everything the bridge process needs at startup.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// StreamablePath and SSEPath locate the two transport surfaces.
	StreamablePath string `yaml:"streamable_path"`
	SSEPath        string `yaml:"sse_path"`

	// BackendURL is the base URL of the actions service.
	BackendURL string `yaml:"backend_url"`

	// TurnTimeoutSeconds bounds one RPC turn. Zero means the bridge
	// default.
	TurnTimeoutSeconds int `yaml:"turn_timeout_seconds"`

	// Tokens maps accepted API tokens to principal subjects.
	Tokens map[string]string `yaml:"tokens"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:           ":8080",
		StreamablePath: "/mcp",
		SSEPath:        "/sse",
		LogLevel:       "info",
		Tokens:         map[string]string{},
	}
}

// Load reads the YAML file at path (skipped when path is empty), merges a
// .env file when present, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env values become process env without clobbering existing vars.
	if _, err := os.Stat(".env"); err == nil {
		vars, err := godotenv.Read(".env")
		if err != nil {
			return nil, fmt.Errorf("read .env: %w", err)
		}
		for k, v := range vars {
			if _, set := os.LookupEnv(k); !set {
				os.Setenv(k, v)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TOOLBRIDGE_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("TOOLBRIDGE_STREAMABLE_PATH"); v != "" {
		c.StreamablePath = v
	}
	if v := os.Getenv("TOOLBRIDGE_SSE_PATH"); v != "" {
		c.SSEPath = v
	}
	if v := os.Getenv("TOOLBRIDGE_BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := os.Getenv("TOOLBRIDGE_TURN_TIMEOUT_SECONDS"); v != "" {
		c.TurnTimeoutSeconds = cast.ToInt(v)
	}
	if v := os.Getenv("TOOLBRIDGE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	// TOOLBRIDGE_TOKEN authenticates a single principal named by
	// TOOLBRIDGE_PRINCIPAL; useful for small deployments.
	if v := os.Getenv("TOOLBRIDGE_TOKEN"); v != "" {
		if c.Tokens == nil {
			c.Tokens = map[string]string{}
		}
		c.Tokens[v] = os.Getenv("TOOLBRIDGE_PRINCIPAL")
	}
}

// TurnTimeout converts the configured seconds to a duration.
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutSeconds) * time.Second
}
