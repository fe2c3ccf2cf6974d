package claude

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
)

type Config struct {
	ConfigName       string `toml:"name"`
	BaseURL          string `toml:"base_url"`
	APIKey           string `toml:"api_key"`
	APIKeyFromEnv    string `toml:"api_key_env"`
	ModelName        string `toml:"model_name"`
	AnthropicVersion string `toml:"anthropic_version"`
	MaxTokens        int    `toml:"max_tokens"`
}

func (c *Config) Name() string {
	return c.ConfigName
}

// DefaultConfig returns the values used for the fields a [[backends]]
// entry leaves empty.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://api.anthropic.com/",
		APIKeyFromEnv:    "ANTHROPIC_API_KEY",
		AnthropicVersion: "2023-06-01",
		MaxTokens:        32768,
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	filled := *c
	if filled.BaseURL == "" {
		filled.BaseURL = d.BaseURL
	}
	if filled.APIKey == "" && filled.APIKeyFromEnv == "" {
		filled.APIKeyFromEnv = d.APIKeyFromEnv
	}
	if filled.AnthropicVersion == "" {
		filled.AnthropicVersion = d.AnthropicVersion
	}
	if filled.MaxTokens == 0 {
		filled.MaxTokens = d.MaxTokens
	}
	return &filled
}

func (c *Config) apiKey() (string, error) {
	if c.APIKeyFromEnv != "" {
		apiKey := os.Getenv(c.APIKeyFromEnv)
		if apiKey == "" {
			return "", fmt.Errorf("env variable %s not defined", c.APIKeyFromEnv)
		}
		return apiKey, nil
	}
	if c.APIKey == "" {
		return "", errors.New("either api_key or api_key_env must be specified")
	}
	return c.APIKey, nil
}

// NewBackend creates the backend. A nil client means http.DefaultClient.
func (c *Config) NewBackend(client *http.Client) (*Backend, error) {
	cfg := c.withDefaults()
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("backend %s: model_name is required", cfg.ConfigName)
	}
	apiKey, err := cfg.apiKey()
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", cfg.ConfigName, err)
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", cfg.ConfigName, err)
	}
	u.Path = path.Join(u.Path, "/v1/messages")
	if client == nil {
		client = http.DefaultClient
	}
	return &Backend{
		config: cfg,
		url:    u,
		apiKey: apiKey,
		client: client,
	}, nil
}
