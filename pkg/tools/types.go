package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Definition is a tool which can be advertised to a backend and invoked
// with the arguments the backend produced.
type Definition interface {
	Name() string
	Description() string
	RequestSchema() *jsonschema.Schema
	Invoke(ctx context.Context, arguments string) error
}

// DecodeError reports tool arguments which are not valid for the tool.
type DecodeError struct {
	Tool string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode arguments for %s: %v", e.Tool, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type toolDefinition[Req any] struct {
	name        string
	description string
	proc        func(ctx context.Context, req Req) error
}

// New creates a definition whose request schema is reflected from Req.
func New[Req any](name, description string, proc func(ctx context.Context, req Req) error) Definition {
	return &toolDefinition[Req]{
		name:        name,
		description: description,
		proc:        proc,
	}
}

func (d *toolDefinition[Req]) Name() string {
	return d.name
}

func (d *toolDefinition[Req]) Description() string {
	return d.description
}

// RequestSchema lists every field without omitempty as required and rejects
// additional properties.
func (d *toolDefinition[Req]) RequestSchema() *jsonschema.Schema {
	var t Req
	schema := (&jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}).Reflect(&t)
	schema.Version = ""
	return schema
}

func (d *toolDefinition[Req]) Invoke(ctx context.Context, arguments string) error {
	logger := getLogger(ctx)
	var req Req
	if err := json.Unmarshal([]byte(arguments), &req); err != nil {
		logger.Error("Failed to unmarshal input", "tool", d.name, "error", err)
		return &DecodeError{Tool: d.name, Err: err}
	}
	return d.proc(ctx, req)
}
