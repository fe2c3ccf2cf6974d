// Package stream rebuilds assistant text and function calls from an
// incremental response stream.
package stream

import (
	"iter"
	"maps"
	"slices"
	"strings"
)

// ToolCallDelta is one fragment of a function call. Name and Arguments
// may be empty for a given chunk.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Chunk is one step of a response stream. A chunk may carry text and tool
// call deltas at the same time.
type Chunk struct {
	Text      string
	ToolCalls []ToolCallDelta
}

// FunctionCall is a finalized call. Arguments is the joined JSON text; it
// is not validated.
type FunctionCall struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Result is the outcome of one streamed response.
type Result struct {
	Text  string
	Calls []FunctionCall
}

type pendingCall struct {
	id        string
	name      []string
	arguments []string
}

func (p *pendingCall) add(d ToolCallDelta) {
	if p.id == "" {
		p.id = d.ID
	}
	p.name = append(p.name, d.Name)
	p.arguments = append(p.arguments, d.Arguments)
}

// Aggregate consumes chunks until the stream ends. Text is passed to onText
// as soon as it arrives. Calls are finalized only when the stream ends
// normally and are returned ordered by index. On a stream error the text
// received so far is returned with the error.
func Aggregate(chunks iter.Seq2[Chunk, error], onText func(string)) (*Result, error) {
	text := &strings.Builder{}
	pending := map[int]*pendingCall{}
	for chunk, err := range chunks {
		if err != nil {
			return &Result{Text: text.String()}, err
		}
		for _, d := range chunk.ToolCalls {
			p, ok := pending[d.Index]
			if !ok {
				p = &pendingCall{}
				pending[d.Index] = p
			}
			p.add(d)
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			if onText != nil {
				onText(chunk.Text)
			}
		}
	}
	result := &Result{Text: text.String()}
	for _, index := range slices.Sorted(maps.Keys(pending)) {
		p := pending[index]
		result.Calls = append(result.Calls, FunctionCall{
			Index:     index,
			ID:        p.id,
			Name:      strings.Join(p.name, ""),
			Arguments: strings.Join(p.arguments, ""),
		})
	}
	return result, nil
}

// FromSlice returns a stream yielding the given chunks.
func FromSlice(chunks []Chunk) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}
