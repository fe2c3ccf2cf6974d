package openai

import (
	"fmt"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Config is a [[backends]] entry of type "openai". Any server speaking the
// Chat Completions API can be used through BaseURL.
type Config struct {
	ConfigName    string `toml:"name"`
	BaseURL       string `toml:"base_url"`
	APIKey        string `toml:"api_key"`
	APIKeyFromEnv string `toml:"api_key_env"`
	ModelName     string `toml:"model_name"`
}

func (c *Config) Name() string {
	return c.ConfigName
}

func (c *Config) options() ([]option.RequestOption, error) {
	var opts []option.RequestOption
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	if c.APIKeyFromEnv != "" {
		apikey := os.Getenv(c.APIKeyFromEnv)
		if apikey == "" {
			return nil, fmt.Errorf("environment variable %s not found", c.APIKeyFromEnv)
		}
		opts = append(opts, option.WithAPIKey(apikey))
	} else if c.APIKey != "" {
		opts = append(opts, option.WithAPIKey(c.APIKey))
	}
	return opts, nil
}

// NewBackend creates the backend. Extra options are appended after the ones
// derived from the config.
func (c *Config) NewBackend(extra ...option.RequestOption) (*Backend, error) {
	if c.ModelName == "" {
		return nil, fmt.Errorf("backend %s: model_name is required", c.ConfigName)
	}
	opts, err := c.options()
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", c.ConfigName, err)
	}
	opts = append(opts, extra...)
	return &Backend{
		name:   c.ConfigName,
		model:  c.ModelName,
		client: openai.NewChatCompletionService(opts...),
	}, nil
}
