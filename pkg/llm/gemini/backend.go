// Package gemini implements llm.Backend with the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/invopop/jsonschema"
	"github.com/jmuk/pagecrew/pkg/history"
	"github.com/jmuk/pagecrew/pkg/llm"
	"github.com/jmuk/pagecrew/pkg/session"
	"github.com/jmuk/pagecrew/pkg/stream"
	"google.golang.org/genai"
)

type Backend struct {
	name   string
	model  string
	models *genai.Models
}

var _ llm.Backend = (*Backend)(nil)

func (b *Backend) Name() string {
	return b.name
}

func toSchema(s *jsonschema.Schema) (*genai.Schema, error) {
	encoded, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	decoded := &genai.Schema{}
	if err := json.Unmarshal(encoded, decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func toContent(m history.Message) *genai.Content {
	role := genai.Role(genai.RoleUser)
	if m.Role == history.RoleAssistant {
		role = genai.RoleModel
	}
	if !m.Multimodal() {
		return genai.NewContentFromText(m.Text, role)
	}
	var parts []*genai.Part
	for _, p := range m.Parts {
		if p.Image != nil {
			parts = append(parts, genai.NewPartFromBytes(p.Image.Data, p.Image.MimeType))
		} else if p.Text != "" {
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
	}
	return genai.NewContentFromParts(parts, role)
}

func (b *Backend) generateConfig(req *llm.Request) (*genai.GenerateContentConfig, []*genai.Content, error) {
	system, msgs := llm.SplitSystem(req.Messages)
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	var funcs []*genai.FunctionDeclaration
	for _, s := range req.Tools {
		params, err := toSchema(s.Parameters)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode request schema for %s: %w", s.Name, err)
		}
		funcs = append(funcs, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  params,
		})
	}
	if len(funcs) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: funcs}}
		mode := genai.FunctionCallingConfigModeAuto
		if req.ToolChoice == llm.ToolChoiceNone {
			mode = genai.FunctionCallingConfigModeNone
		}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
		}
	}
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		contents = append(contents, toContent(m))
	}
	return config, contents, nil
}

// Stream yields the text parts as they arrive. Gemini sends every function
// call in one piece, so each becomes a single delta with its own index.
func (b *Backend) Stream(ctx context.Context, req *llm.Request) iter.Seq2[stream.Chunk, error] {
	return func(yield func(stream.Chunk, error) bool) {
		logger, err := session.LoggerFromContext(ctx, "gemini")
		if err != nil {
			yield(stream.Chunk{}, err)
			return
		}
		config, contents, err := b.generateConfig(req)
		if err != nil {
			yield(stream.Chunk{}, err)
			return
		}
		logger.Debug("Sending", "model", b.model, "contents", len(contents), "tools", len(req.Tools))
		var calls int
		for result, err := range b.models.GenerateContentStream(ctx, b.model, contents, config) {
			if err != nil {
				logger.Error("Stream failed", "error", err)
				yield(stream.Chunk{}, fmt.Errorf("gemini: %w", err))
				return
			}
			if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
				continue
			}
			var c stream.Chunk
			for _, part := range result.Candidates[0].Content.Parts {
				if fc := part.FunctionCall; fc != nil {
					args, err := json.Marshal(fc.Args)
					if err != nil {
						yield(stream.Chunk{}, fmt.Errorf("gemini: %w", err))
						return
					}
					c.ToolCalls = append(c.ToolCalls, stream.ToolCallDelta{
						Index:     calls,
						ID:        fc.ID,
						Name:      fc.Name,
						Arguments: string(args),
					})
					calls++
				}
				if part.Text != "" && !part.Thought {
					c.Text += part.Text
				}
			}
			if c.Text == "" && len(c.ToolCalls) == 0 {
				continue
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}
