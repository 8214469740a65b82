package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	HTTP     HTTPConfig     `toml:"http"`
	LLM      LLMConfig      `toml:"llm"`
	Database DatabaseConfig `toml:"database"`
	Brain    BrainConfig    `toml:"brain"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Search   SearchConfig   `toml:"search"`
	Observer ObserverConfig `toml:"observer"`
}

type SearchConfig struct {
	BraveAPIKey string `toml:"brave_api_key"`
}

type HTTPConfig struct {
	Addr       string `toml:"addr"`
	AdminToken string `toml:"admin_token"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

// DatabaseConfig selects and configures the storage backend. Driver is
// "sqlite" or "postgres"; only the matching fields are used.
type DatabaseConfig struct {
	Driver      string `toml:"driver"`
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type BrainConfig struct {
	ContextWindow int    `toml:"context_window"`
	WorkspacePath string `toml:"workspace_path"`
}

type WebhookConfig struct {
	MaxSkewSeconds int `toml:"max_skew_seconds"`
}

func (w WebhookConfig) MaxSkew() time.Duration {
	return time.Duration(w.MaxSkewSeconds) * time.Second
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		HTTP:     HTTPConfig{Addr: ":8080"},
		LLM:      LLMConfig{Provider: "gemini", Model: "gemini-2.5-flash"},
		Database: DatabaseConfig{Driver: "sqlite", Path: "aidra.db"},
		Brain:    BrainConfig{ContextWindow: 50, WorkspacePath: filepath.Join(home, "aidra-workspace")},
		Webhook:  WebhookConfig{MaxSkewSeconds: 300},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "aidra.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("AIDRA_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("AIDRA_ADMIN_TOKEN"); v != "" {
		cfg.HTTP.AdminToken = v
	}
	if v := os.Getenv("AIDRA_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("AIDRA_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("AIDRA_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("AIDRA_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AIDRA_POSTGRES_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("AIDRA_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if os.Getenv("AIDRA_OBSERVER_ENABLED") == "true" || os.Getenv("AIDRA_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
