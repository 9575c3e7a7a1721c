package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all statuscast configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Context  ContextConfig  `yaml:"context"`
	Telegram TelegramConfig `yaml:"telegram"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LLMConfig struct {
	Provider       string `yaml:"provider"` // "claude-cli", "anthropic", "ollama", "openai"
	Model          string `yaml:"model"`
	OllamaURL      string `yaml:"ollama_url"`
	OllamaModel    string `yaml:"ollama_model"`
	AnthropicKey   string `yaml:"anthropic_key"`
	OpenAIKey      string `yaml:"openai_key"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"` // bounds each completion call
}

// ContextConfig tunes context retention between updates.
type ContextConfig struct {
	Threshold      float64 `yaml:"threshold"`   // minimum relevance kept, 0..1
	HistoryCap     int     `yaml:"history_cap"` // entries kept per user
	StrictOrdering bool    `yaml:"strict_ordering"`
}

type TelegramConfig struct {
	Token     string   `yaml:"token"`
	AllowFrom []string `yaml:"allow_from"`
}

type LogConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider:       "claude-cli",
			Model:          "haiku",
			MaxTokens:      2048,
			TimeoutSeconds: 60,
		},
		Context: ContextConfig{
			Threshold:  0.3,
			HistoryCap: 20,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config path: ~/.statuscast/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".statuscast", "config.yaml"), nil
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.AnthropicKey = key
		if c.LLM.Provider == "claude-cli" {
			c.LLM.Provider = "anthropic"
			c.LLM.Model = ""
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.OpenAIKey = key
	}
	if p := os.Getenv("STATUSCAST_LLM_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		c.Telegram.Token = token
	}
	if path := os.Getenv("STATUSCAST_DB"); path != "" {
		c.Database.Path = path
	}
	if lvl := os.Getenv("STATUSCAST_LOG_LEVEL"); lvl != "" {
		c.Log.Level = lvl
	}
}

// normalize resets out-of-range values to their defaults. The relevance
// threshold is left as given; the engine clamps it and logs the reset.
func (c *Config) normalize() {
	d := Default()
	if c.Context.HistoryCap <= 0 {
		c.Context.HistoryCap = d.Context.HistoryCap
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = d.LLM.TimeoutSeconds
	}
	if c.Server.Port <= 0 {
		c.Server.Port = d.Server.Port
	}
}

// CompletionTimeout is the bound on a single completion call.
func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
