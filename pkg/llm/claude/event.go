package claude

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/jmuk/pagecrew/pkg/sse"
	"github.com/jmuk/pagecrew/pkg/stream"
)

type eventType string

const (
	eventTypePing              eventType = "ping"
	eventTypeError             eventType = "error"
	eventTypeMessageStart      eventType = "message_start"
	eventTypeMessageDelta      eventType = "message_delta"
	eventTypeMessageStop       eventType = "message_stop"
	eventTypeContentBlockStart eventType = "content_block_start"
	eventTypeContentBlockDelta eventType = "content_block_delta"
	eventTypeContentBlockStop  eventType = "content_block_stop"
)

type deltaType string

const (
	deltaTypeText      deltaType = "text_delta"
	deltaTypeJSON      deltaType = "input_json_delta"
	deltaTypeThinking  deltaType = "thinking_delta"
	deltaTypeSignature deltaType = "signature_delta"
)

type contentBlockDelta struct {
	Type  eventType `json:"type"`
	Index int       `json:"index"`
	Delta struct {
		Type        deltaType `json:"type"`
		Text        string    `json:"text"`
		PartialJSON string    `json:"partial_json"`
	} `json:"delta"`
}

type blockType string

const (
	blockTypeText     blockType = "text"
	blockTypeToolUse  blockType = "tool_use"
	blockTypeThinking blockType = "thinking"
)

type contentBlock struct {
	Type         eventType `json:"type"`
	Index        int       `json:"index"`
	ContentBlock struct {
		Type blockType `json:"type"`
		Text string    `json:"text"`
		ID   string    `json:"id"`
		Name string    `json:"name"`
	} `json:"content_block"`
}

type errorEvent struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// eventProcessor turns the Messages API events into stream chunks. Tool
// use blocks are numbered in their order of appearance, independently from
// the content block index which also counts text blocks.
type eventProcessor struct {
	logger *slog.Logger

	currentBlock *contentBlock
	callIndex    int
	gotJSON      bool
	calls        int
}

func (ep *eventProcessor) processContentBlockStart(ev *sse.Event) (*stream.Chunk, error) {
	if ep.currentBlock != nil {
		return nil, fmt.Errorf("content block start appears before closing a previous one")
	}
	ep.currentBlock = &contentBlock{}
	if err := json.Unmarshal([]byte(ev.Data), ep.currentBlock); err != nil {
		return nil, err
	}
	cb := ep.currentBlock.ContentBlock
	switch cb.Type {
	case blockTypeText:
		if cb.Text != "" {
			return &stream.Chunk{Text: cb.Text}, nil
		}
	case blockTypeToolUse:
		ep.callIndex = ep.calls
		ep.calls++
		ep.gotJSON = false
		return &stream.Chunk{ToolCalls: []stream.ToolCallDelta{{
			Index: ep.callIndex,
			ID:    cb.ID,
			Name:  cb.Name,
		}}}, nil
	}
	return nil, nil
}

func (ep *eventProcessor) processContentBlockDelta(ev *sse.Event) (*stream.Chunk, error) {
	delta := &contentBlockDelta{}
	if err := json.Unmarshal([]byte(ev.Data), delta); err != nil {
		return nil, err
	}
	cb := ep.currentBlock
	if cb == nil {
		return nil, fmt.Errorf("missing content block start")
	}
	if cb.Index != delta.Index {
		return nil, fmt.Errorf("index mismatch: want %d got %d", cb.Index, delta.Index)
	}
	switch delta.Delta.Type {
	case deltaTypeText:
		if cb.ContentBlock.Type != blockTypeText {
			return nil, fmt.Errorf("type mismatch: want %s got text", cb.ContentBlock.Type)
		}
		return &stream.Chunk{Text: delta.Delta.Text}, nil
	case deltaTypeJSON:
		if cb.ContentBlock.Type != blockTypeToolUse {
			return nil, fmt.Errorf("type mismatch: want %s got partial_json", cb.ContentBlock.Type)
		}
		if delta.Delta.PartialJSON == "" {
			return nil, nil
		}
		ep.gotJSON = true
		return &stream.Chunk{ToolCalls: []stream.ToolCallDelta{{
			Index:     ep.callIndex,
			Arguments: delta.Delta.PartialJSON,
		}}}, nil
	case deltaTypeThinking, deltaTypeSignature:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown delta type %s", delta.Delta.Type)
}

func (ep *eventProcessor) processContentBlockStop() (*stream.Chunk, error) {
	cb := ep.currentBlock
	if cb == nil {
		return nil, fmt.Errorf("content_block_stop appears without start")
	}
	ep.currentBlock = nil
	if cb.ContentBlock.Type == blockTypeToolUse && !ep.gotJSON {
		// a tool use without input.
		return &stream.Chunk{ToolCalls: []stream.ToolCallDelta{{
			Index:     ep.callIndex,
			Arguments: "{}",
		}}}, nil
	}
	return nil, nil
}

func (ep *eventProcessor) process(ev *sse.Event) (*stream.Chunk, bool, error) {
	ep.logger.Debug("Received event", "event", ev.Event, "data", ev.Data)
	switch eventType(ev.Event) {
	case eventTypeError:
		var e errorEvent
		if err := json.Unmarshal([]byte(ev.Data), &e); err != nil || e.Error.Message == "" {
			return nil, false, errors.New(ev.Data)
		}
		return nil, false, fmt.Errorf("%s: %s", e.Error.Type, e.Error.Message)
	case eventTypeContentBlockStart:
		c, err := ep.processContentBlockStart(ev)
		return c, false, err
	case eventTypeContentBlockDelta:
		c, err := ep.processContentBlockDelta(ev)
		return c, false, err
	case eventTypeContentBlockStop:
		c, err := ep.processContentBlockStop()
		return c, false, err
	case eventTypeMessageStop:
		return nil, true, nil
	case eventTypePing, eventTypeMessageStart, eventTypeMessageDelta:
		return nil, false, nil
	}
	ep.logger.Warn("Unknown event", "event", ev.Event)
	return nil, false, nil
}

// processEvents yields the chunks of the stream. Any error ends the
// sequence, as does a body which ends before message_stop.
func (ep *eventProcessor) processEvents(r io.Reader) iter.Seq2[stream.Chunk, error] {
	return func(yield func(stream.Chunk, error) bool) {
		for ev, err := range sse.Events(r) {
			if err != nil {
				yield(stream.Chunk{}, err)
				return
			}
			c, done, err := ep.process(ev)
			if err != nil {
				yield(stream.Chunk{}, err)
				return
			}
			if c != nil && !yield(*c, nil) {
				return
			}
			if done {
				return
			}
		}
		yield(stream.Chunk{}, io.ErrUnexpectedEOF)
	}
}
