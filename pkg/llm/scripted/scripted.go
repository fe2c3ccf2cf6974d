// Package scripted provides a deterministic llm.Backend which replays
// prepared turns, for tests.
package scripted

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/jmuk/pagecrew/pkg/history"
	"github.com/jmuk/pagecrew/pkg/llm"
	"github.com/jmuk/pagecrew/pkg/stream"
)

// Turn is one scripted response. When Err is set it is reported after
// the chunks.
type Turn struct {
	Chunks []stream.Chunk
	Err    error
}

// Reply builds a turn answering text and the calls. The text and every call
// are cut into two fragments to look like a real stream.
func Reply(text string, calls ...stream.FunctionCall) Turn {
	var chunks []stream.Chunk
	if text != "" {
		half := len(text) / 2
		chunks = append(chunks, stream.Chunk{Text: text[:half]}, stream.Chunk{Text: text[half:]})
	}
	for _, c := range calls {
		nameHalf := len(c.Name) / 2
		argsHalf := len(c.Arguments) / 2
		chunks = append(chunks,
			stream.Chunk{ToolCalls: []stream.ToolCallDelta{{Index: c.Index, ID: c.ID, Name: c.Name[:nameHalf], Arguments: c.Arguments[:argsHalf]}}},
			stream.Chunk{ToolCalls: []stream.ToolCallDelta{{Index: c.Index, Name: c.Name[nameHalf:], Arguments: c.Arguments[argsHalf:]}}},
		)
	}
	return Turn{Chunks: chunks}
}

// Call is a shorthand for a finalized call at index.
func Call(index int, name, arguments string) stream.FunctionCall {
	return stream.FunctionCall{Index: index, ID: fmt.Sprintf("call_%d", index), Name: name, Arguments: arguments}
}

type Backend struct {
	name string

	mu       sync.Mutex
	turns    []Turn
	index    int
	requests []*llm.Request
}

var _ llm.Backend = (*Backend)(nil)

func New(name string, turns ...Turn) *Backend {
	return &Backend{
		name:  name,
		turns: append([]Turn(nil), turns...),
	}
}

func (b *Backend) Name() string {
	return b.name
}

func (b *Backend) Stream(ctx context.Context, req *llm.Request) iter.Seq2[stream.Chunk, error] {
	b.mu.Lock()
	recorded := *req
	recorded.Messages = append([]history.Message(nil), req.Messages...)
	recorded.Tools = append([]llm.ToolSchema(nil), req.Tools...)
	b.requests = append(b.requests, &recorded)
	var turn *Turn
	if b.index < len(b.turns) {
		turn = &b.turns[b.index]
	}
	b.index++
	step := b.index
	b.mu.Unlock()

	return func(yield func(stream.Chunk, error) bool) {
		if turn == nil {
			yield(stream.Chunk{}, fmt.Errorf("%s: script exhausted at step %d", b.name, step))
			return
		}
		for _, c := range turn.Chunks {
			if err := ctx.Err(); err != nil {
				yield(stream.Chunk{}, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if turn.Err != nil {
			yield(stream.Chunk{}, turn.Err)
		}
	}
}

// Requests returns the requests received so far.
func (b *Backend) Requests() []*llm.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*llm.Request(nil), b.requests...)
}

// Polls is the number of Stream calls.
func (b *Backend) Polls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}
