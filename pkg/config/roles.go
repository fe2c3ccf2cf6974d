package config

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmuk/pagecrew/pkg/crew"
	"github.com/jmuk/pagecrew/pkg/llm"
	"github.com/jmuk/pagecrew/pkg/llm/claude"
	"github.com/jmuk/pagecrew/pkg/llm/gemini"
	"github.com/jmuk/pagecrew/pkg/llm/openai"
)

// NewBackend creates the generation backend described by bc.
func NewBackend(ctx context.Context, bc BackendConfig) (llm.Backend, error) {
	switch c := bc.(type) {
	case *openai.Config:
		b, err := c.NewBackend()
		if err != nil {
			return nil, err
		}
		return b, nil
	case *claude.Config:
		b, err := c.NewBackend(nil)
		if err != nil {
			return nil, err
		}
		return b, nil
	case *gemini.Config:
		b, err := c.NewBackend(ctx)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown backend config %T", bc)
}

// NewRoles builds the default team with the [roles.*] overrides applied.
// Roles sharing a backend name share the backend instance.
func (c *Config) NewRoles(ctx context.Context) (*crew.Roles, error) {
	roles := crew.DefaultRoles(nil)
	known := map[string]*crew.Role{}
	for _, r := range roles.All() {
		known[r.Name] = r
	}
	for name := range c.Roles {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("unknown role %s in config", name)
		}
	}

	backends := map[string]llm.Backend{}
	for _, r := range roles.All() {
		rc := c.Roles[r.Name]
		name := cmp.Or(rc.Backend, c.BackendName)
		b, ok := backends[name]
		if !ok {
			bc, found := c.Backend(name)
			if !found {
				return nil, fmt.Errorf("backend %s for %s not found", name, r.Name)
			}
			var err error
			b, err = NewBackend(ctx, bc)
			if err != nil {
				return nil, err
			}
			backends[name] = b
		}
		r.Backend = b
		if rc.Temperature != nil {
			r.Temperature = rc.Temperature
		}
		if rc.PromptFile != "" {
			promptFile := rc.PromptFile
			if !filepath.IsAbs(promptFile) {
				promptFile = filepath.Join(c.dir, promptFile)
			}
			prompt, err := os.ReadFile(promptFile)
			if err != nil {
				return nil, fmt.Errorf("prompt of %s: %w", r.Name, err)
			}
			r.Prompt = string(prompt)
		}
	}
	return roles, nil
}

// CrewOptions returns the budgets for the crew.
func (c *Config) CrewOptions(observer crew.Observer) crew.Options {
	return crew.Options{
		MaxTurns: c.MaxTurns,
		MaxDepth: c.MaxDepth,
		Observer: observer,
	}
}
