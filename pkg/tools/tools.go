// Package tools defines the function tools advertised to the generation
// backends and the capability sets they are grouped into.
package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmuk/pagecrew/pkg/llm"
	"github.com/jmuk/pagecrew/pkg/session"
)

// Set is an ordered collection of tools. The schemas advertised to a
// backend and the tools which may be dispatched both come from the same
// Set, so they cannot disagree.
type Set struct {
	defs    []Definition
	defsMap map[string]Definition
}

func NewSet(defs ...Definition) (*Set, error) {
	m := make(map[string]Definition, len(defs))
	for _, d := range defs {
		if _, ok := m[d.Name()]; ok {
			return nil, fmt.Errorf("duplicated tool name %s", d.Name())
		}
		m[d.Name()] = d
	}
	return &Set{defs: defs, defsMap: m}, nil
}

func (s *Set) Len() int {
	return len(s.defs)
}

// Lookup returns the tool of the name if it belongs to the set.
func (s *Set) Lookup(name string) (Definition, bool) {
	d, ok := s.defsMap[name]
	return d, ok
}

// Schemas returns the schemas to advertise to the backend.
func (s *Set) Schemas() []llm.ToolSchema {
	schemas := make([]llm.ToolSchema, 0, len(s.defs))
	for _, d := range s.defs {
		schemas = append(schemas, llm.ToolSchema{
			Name:        d.Name(),
			Description: d.Description(),
			Parameters:  d.RequestSchema(),
		})
	}
	return schemas
}

func getLogger(ctx context.Context) *slog.Logger {
	logger, err := session.LoggerFromContext(ctx, "tools")
	if err != nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
