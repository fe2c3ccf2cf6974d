// Package llm defines the contract between the agents and a generation
// backend.
package llm

import (
	"context"
	"iter"

	"github.com/invopop/jsonschema"
	"github.com/jmuk/pagecrew/pkg/history"
	"github.com/jmuk/pagecrew/pkg/stream"
)

// ToolSchema describes one function the backend may call.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// Request is one call to the backend. Messages[0] is the system prompt of
// the active role.
type Request struct {
	Messages   []history.Message
	Tools      []ToolSchema
	ToolChoice ToolChoice
	// Temperature overrides the backend default when non-nil.
	Temperature *float64
}

// Backend streams one response for a request. The sequence ends with an
// error when the stream terminates abnormally.
type Backend interface {
	Name() string
	Stream(ctx context.Context, req *Request) iter.Seq2[stream.Chunk, error]
}

// SplitSystem separates the leading system prompt from the rest of the
// messages, for the providers which take it as a separate field.
func SplitSystem(msgs []history.Message) (string, []history.Message) {
	if len(msgs) > 0 && msgs[0].Role == history.RoleSystem {
		return msgs[0].Text, msgs[1:]
	}
	return "", msgs
}
