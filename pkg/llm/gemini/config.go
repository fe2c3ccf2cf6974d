package gemini

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

type Config struct {
	ConfigName    string `toml:"name"`
	ModelName     string `toml:"model_name"`
	APIKey        string `toml:"api_key,omitempty"`
	APIKeyFromEnv string `toml:"api_key_env,omitempty"`
	Backend       string `toml:"backend,omitempty"`
	Project       string `toml:"project,omitempty"`
	Location      string `toml:"location,omitempty"`
	BaseURL       string `toml:"base_url,omitempty"`
}

func (gc *Config) Name() string {
	return gc.ConfigName
}

func (gc *Config) clientConfig() (*genai.ClientConfig, error) {
	backend := genai.BackendUnspecified
	if gc.Backend == genai.BackendGeminiAPI.String() {
		backend = genai.BackendGeminiAPI
	} else if gc.Backend == genai.BackendVertexAI.String() {
		backend = genai.BackendVertexAI
	}
	apiKey := gc.APIKey
	if gc.APIKeyFromEnv != "" {
		apiKey = os.Getenv(gc.APIKeyFromEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("environment variable %s not found", gc.APIKeyFromEnv)
		}
	}
	return &genai.ClientConfig{
		APIKey:   apiKey,
		Backend:  backend,
		Project:  gc.Project,
		Location: gc.Location,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: gc.BaseURL,
		},
	}, nil
}

func (gc *Config) NewBackend(ctx context.Context) (*Backend, error) {
	if gc.ModelName == "" {
		return nil, fmt.Errorf("backend %s: model_name is required", gc.ConfigName)
	}
	cc, err := gc.clientConfig()
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", gc.ConfigName, err)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", gc.ConfigName, err)
	}
	return &Backend{
		name:   gc.ConfigName,
		model:  gc.ModelName,
		models: client.Models,
	}, nil
}
