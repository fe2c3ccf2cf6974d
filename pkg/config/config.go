// Package config loads the user configuration of pagecrew.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/jmuk/pagecrew/pkg/artifact"
	"github.com/jmuk/pagecrew/pkg/crew"
	"github.com/jmuk/pagecrew/pkg/llm/claude"
	"github.com/jmuk/pagecrew/pkg/llm/gemini"
	"github.com/jmuk/pagecrew/pkg/llm/openai"
)

const appName = "pagecrew"

type BackendType string

const (
	BackendTypeOpenAI BackendType = "openai"
	BackendTypeClaude BackendType = "claude"
	BackendTypeGemini BackendType = "gemini"
)

// BackendConfig is one [[backends]] entry: *openai.Config, *claude.Config
// or *gemini.Config.
type BackendConfig interface {
	Name() string
}

// RoleConfig overrides the defaults of one agent role.
type RoleConfig struct {
	// Backend is the name of the backend; backend_name when empty.
	Backend string `toml:"backend,omitempty"`
	// PromptFile replaces the built-in prompt. A relative path is resolved
	// from the directory of the config file.
	PromptFile  string   `toml:"prompt_file,omitempty"`
	Temperature *float64 `toml:"temperature,omitempty"`
}

type Config struct {
	BackendName       string
	LogLevel          slog.Level
	ArtifactsDir      string
	MaxTurns          int
	MaxDepth          int
	AllowedExtensions []string
	Backends          []BackendConfig
	Roles             map[string]RoleConfig

	// dir is where the config was loaded from.
	dir string
}

// rawConfig is the on-disk layout. Backends stay untyped until their
// type field is known.
type rawConfig struct {
	BackendName       string                `toml:"backend_name"`
	LogLevel          slog.Level            `toml:"log_level"`
	ArtifactsDir      string                `toml:"artifacts_dir,omitempty"`
	MaxTurns          int                   `toml:"max_turns,omitempty"`
	MaxDepth          int                   `toml:"max_depth,omitempty"`
	AllowedExtensions []string              `toml:"allowed_extensions,omitempty"`
	Backends          []map[string]any      `toml:"backends"`
	Roles             map[string]RoleConfig `toml:"roles,omitempty"`
}

// Default returns the configuration written on the first run.
func Default() *Config {
	return &Config{
		BackendName:       "openai",
		LogLevel:          slog.LevelInfo,
		ArtifactsDir:      "artifacts",
		MaxTurns:          crew.DefaultMaxTurns,
		MaxDepth:          crew.DefaultMaxDepth,
		AllowedExtensions: artifact.DefaultExtensions,
		Backends: []BackendConfig{
			&openai.Config{
				ConfigName:    "openai",
				APIKeyFromEnv: "OPENAI_API_KEY",
				ModelName:     "gpt-4.1",
			},
			&claude.Config{
				ConfigName:    "claude",
				APIKeyFromEnv: "ANTHROPIC_API_KEY",
				ModelName:     "claude-sonnet-4-5",
			},
			&gemini.Config{
				ConfigName:    "gemini",
				APIKeyFromEnv: "GEMINI_API_KEY",
				Backend:       "BackendGeminiAPI",
				ModelName:     "gemini-2.5-flash",
			},
		},
	}
}

func backendType(bc BackendConfig) (BackendType, error) {
	switch bc.(type) {
	case *openai.Config:
		return BackendTypeOpenAI, nil
	case *claude.Config:
		return BackendTypeClaude, nil
	case *gemini.Config:
		return BackendTypeGemini, nil
	}
	return "", fmt.Errorf("unknown backend config %T", bc)
}

func backendConfigFrom(m map[string]any) (BackendConfig, error) {
	btData, ok := m["type"]
	if !ok {
		return nil, fmt.Errorf("missing field type for backend config")
	}
	btStr, ok := btData.(string)
	if !ok {
		return nil, fmt.Errorf("type mismatch for type field: want string got %T", btData)
	}
	var bc BackendConfig
	switch BackendType(btStr) {
	case BackendTypeOpenAI:
		bc = &openai.Config{}
	case BackendTypeClaude:
		bc = &claude.Config{}
	case BackendTypeGemini:
		bc = &gemini.Config{}
	default:
		return nil, fmt.Errorf("unknown backend type %s", btStr)
	}
	fields := make(map[string]any, len(m))
	for k, v := range m {
		if k != "type" {
			fields[k] = v
		}
	}
	marshaled, err := toml.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(marshaled, bc); err != nil {
		return nil, err
	}
	if bc.Name() == "" {
		return nil, errors.New("missing field name for backend config")
	}
	return bc, nil
}

// Encode encodes the config in the on-disk layout, each backend tagged
// with its type.
func (c *Config) Encode() ([]byte, error) {
	raw := rawConfig{
		BackendName:       c.BackendName,
		LogLevel:          c.LogLevel,
		ArtifactsDir:      c.ArtifactsDir,
		MaxTurns:          c.MaxTurns,
		MaxDepth:          c.MaxDepth,
		AllowedExtensions: c.AllowedExtensions,
		Backends:          []map[string]any{},
		Roles:             c.Roles,
	}
	for i, bc := range c.Backends {
		bt, err := backendType(bc)
		if err != nil {
			return nil, fmt.Errorf("%d-th backend: %w", i, err)
		}
		d, err := toml.Marshal(bc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %d-th backend: %w", i, err)
		}
		m := map[string]any{}
		if err := toml.Unmarshal(d, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %d-th backend: %w", i, err)
		}
		m["type"] = string(bt)
		raw.Backends = append(raw.Backends, m)
	}
	return toml.Marshal(raw)
}

// Parse decodes a config file. Omitted settings take their default values.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	raw.LogLevel = slog.LevelInfo
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, err
	}
	d := Default()
	c := &Config{
		BackendName:       raw.BackendName,
		LogLevel:          raw.LogLevel,
		ArtifactsDir:      raw.ArtifactsDir,
		MaxTurns:          raw.MaxTurns,
		MaxDepth:          raw.MaxDepth,
		AllowedExtensions: raw.AllowedExtensions,
		Roles:             raw.Roles,
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = d.ArtifactsDir
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = d.MaxTurns
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = d.AllowedExtensions
	}
	names := map[string]bool{}
	for i, m := range raw.Backends {
		bc, err := backendConfigFrom(m)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %d-th backend: %w", i, err)
		}
		if names[bc.Name()] {
			return nil, fmt.Errorf("duplicated backend name %s", bc.Name())
		}
		names[bc.Name()] = true
		c.Backends = append(c.Backends, bc)
	}
	return c, nil
}

// Backend returns the backend config of the name.
func (c *Config) Backend(name string) (BackendConfig, bool) {
	for _, bc := range c.Backends {
		if bc.Name() == name {
			return bc, true
		}
	}
	return nil, false
}

func (c *Config) BackendNames() []string {
	names := make([]string, 0, len(c.Backends))
	for _, bc := range c.Backends {
		names = append(names, bc.Name())
	}
	return names
}

// Dir is the directory of the loaded config file.
func (c *Config) Dir() string {
	return c.dir
}

// DefaultConfigFile returns the path of the global config file.
func DefaultConfigFile() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, appName, "config.toml"), nil
}

// LoadConfig reads configFile. When it does not exist yet, the default
// config is written there first.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		config := Default()
		if err := writeConfig(configFile, config); err != nil {
			return nil, err
		}
		config.dir = filepath.Dir(configFile)
		return config, nil
	}
	if err != nil {
		return nil, err
	}
	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configFile, err)
	}
	config.dir = filepath.Dir(configFile)
	return config, nil
}

// EditConfig loads configFile, applies edit and writes the result back.
func EditConfig(configFile string, edit func(cfg *Config) (*Config, error)) error {
	config, err := LoadConfig(configFile)
	if err != nil {
		return err
	}
	edited, err := edit(config)
	if err != nil {
		return err
	}
	return writeConfig(configFile, edited)
}

func writeConfig(configFile string, config *Config) error {
	data, err := config.Encode()
	if err != nil {
		return err
	}
	dir := filepath.Dir(configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s", filepath.Base(configFile), uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, configFile); err != nil {
		return errors.Join(err, os.Remove(tmp))
	}
	return nil
}
