// Package openai implements llm.Backend with the OpenAI Chat Completions
// streaming API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/jmuk/pagecrew/pkg/history"
	"github.com/jmuk/pagecrew/pkg/llm"
	"github.com/jmuk/pagecrew/pkg/session"
	"github.com/jmuk/pagecrew/pkg/stream"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
)

type Backend struct {
	name   string
	model  string
	client openai.ChatCompletionService
}

var _ llm.Backend = (*Backend)(nil)

func (b *Backend) Name() string {
	return b.name
}

func convertTool(s llm.ToolSchema) (openai.ChatCompletionToolUnionParam, error) {
	encoded, err := json.Marshal(s.Parameters)
	if err != nil {
		return openai.ChatCompletionToolUnionParam{}, err
	}
	parameters := map[string]any{}
	if err := json.Unmarshal(encoded, &parameters); err != nil {
		return openai.ChatCompletionToolUnionParam{}, err
	}
	return openai.ChatCompletionToolUnionParam{
		OfFunction: &openai.ChatCompletionFunctionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        s.Name,
				Description: param.NewOpt(s.Description),
				Parameters:  parameters,
			},
			Type: "function",
		},
	}, nil
}

func convertMessage(m history.Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case history.RoleSystem:
		return openai.SystemMessage(m.Text)
	case history.RoleAssistant:
		return openai.AssistantMessage(m.Text)
	}
	if !m.Multimodal() {
		return openai.UserMessage(m.Text)
	}
	var content []openai.ChatCompletionContentPartUnionParam
	for _, p := range m.Parts {
		if p.Image != nil {
			content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL:    p.Image.DataURL(),
				Detail: "auto",
			}))
		} else {
			content = append(content, openai.TextContentPart(p.Text))
		}
	}
	return openai.UserMessage(content)
}

func (b *Backend) params(req *llm.Request) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: b.model,
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, convertMessage(m))
	}
	for _, s := range req.Tools {
		tool, err := convertTool(s)
		if err != nil {
			return params, fmt.Errorf("tool %s: %w", s.Name, err)
		}
		params.Tools = append(params.Tools, tool)
	}
	if req.ToolChoice != "" {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: param.NewOpt(string(req.ToolChoice)),
		}
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	return params, nil
}

// convertChunk keeps the first choice only; one completion is requested.
func convertChunk(ev openai.ChatCompletionChunk) (stream.Chunk, bool) {
	if len(ev.Choices) == 0 {
		return stream.Chunk{}, false
	}
	delta := ev.Choices[0].Delta
	c := stream.Chunk{Text: delta.Content}
	for _, tc := range delta.ToolCalls {
		c.ToolCalls = append(c.ToolCalls, stream.ToolCallDelta{
			Index:     int(tc.Index),
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return c, c.Text != "" || len(c.ToolCalls) > 0
}

func (b *Backend) Stream(ctx context.Context, req *llm.Request) iter.Seq2[stream.Chunk, error] {
	return func(yield func(stream.Chunk, error) bool) {
		logger, err := session.LoggerFromContext(ctx, "openai")
		if err != nil {
			yield(stream.Chunk{}, err)
			return
		}
		params, err := b.params(req)
		if err != nil {
			yield(stream.Chunk{}, err)
			return
		}
		logger.Debug("Sending", "model", b.model, "messages", len(params.Messages), "tools", len(params.Tools))
		st := b.client.NewStreaming(ctx, params)
		defer st.Close()
		for st.Next() {
			ev := st.Current()
			logger.Debug("Received event", "event", ev.RawJSON())
			c, ok := convertChunk(ev)
			if !ok {
				continue
			}
			if !yield(c, nil) {
				return
			}
		}
		if err := st.Err(); err != nil {
			logger.Error("Stream failed", "error", err)
			yield(stream.Chunk{}, fmt.Errorf("openai: %w", err))
		}
	}
}
