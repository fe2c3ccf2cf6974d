package claude

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/invopop/jsonschema"
	"github.com/jmuk/pagecrew/pkg/history"
	"github.com/jmuk/pagecrew/pkg/llm"
)

type contentType string

const (
	contentTypeText  contentType = "text"
	contentTypeImage contentType = "image"
)

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// content is a text or image content block of an input message.
type content struct {
	Type   contentType  `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type inputMessage struct {
	Role    history.Role `json:"role"`
	Content []content    `json:"content"`
}

type toolChoice struct {
	Type string `json:"type"`
}

type tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

type bodyData struct {
	Model       string         `json:"model"`
	Messages    []inputMessage `json:"messages"`
	MaxTokens   int            `json:"max_tokens"`
	Stream      bool           `json:"stream,omitempty"`
	System      string         `json:"system,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	ToolChoice  *toolChoice    `json:"tool_choice,omitempty"`
	Tools       []tool         `json:"tools,omitempty"`
}

func toContents(m history.Message) []content {
	if !m.Multimodal() {
		return []content{{Type: contentTypeText, Text: m.Text}}
	}
	var cs []content
	for _, p := range m.Parts {
		if p.Image != nil {
			cs = append(cs, content{
				Type: contentTypeImage,
				Source: &imageSource{
					Type:      "base64",
					MediaType: p.Image.MimeType,
					Data:      base64.StdEncoding.EncodeToString(p.Image.Data),
				},
			})
		} else if p.Text != "" {
			cs = append(cs, content{Type: contentTypeText, Text: p.Text})
		}
	}
	return cs
}

// continuePrompt follows a trailing assistant turn, which the Messages API
// would otherwise take as a prefill of the answer.
const continuePrompt = "Continue."

// toInputMessages converts the conversation after the system prompt.
// The Messages API only knows user and assistant turns, so system notices
// are sent as user turns, and consecutive turns of the same role are
// merged. The result always ends with a user turn.
func toInputMessages(msgs []history.Message) []inputMessage {
	var result []inputMessage
	for _, m := range msgs {
		role := m.Role
		if role == history.RoleSystem {
			role = history.RoleUser
		}
		cs := toContents(m)
		if n := len(result); n > 0 && result[n-1].Role == role {
			result[n-1].Content = append(result[n-1].Content, cs...)
			continue
		}
		result = append(result, inputMessage{Role: role, Content: cs})
	}
	if n := len(result); n > 0 && result[n-1].Role == history.RoleAssistant {
		result = append(result, inputMessage{
			Role:    history.RoleUser,
			Content: []content{{Type: contentTypeText, Text: continuePrompt}},
		})
	}
	return result
}

func (b *Backend) buildRequestBody(req *llm.Request) ([]byte, error) {
	system, msgs := llm.SplitSystem(req.Messages)
	body := bodyData{
		Model:       b.config.ModelName,
		MaxTokens:   b.config.MaxTokens,
		Stream:      true,
		System:      system,
		Temperature: req.Temperature,
		Messages:    toInputMessages(msgs),
	}
	for _, s := range req.Tools {
		body.Tools = append(body.Tools, tool{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.Parameters,
		})
	}
	if len(body.Tools) > 0 && req.ToolChoice != "" {
		body.ToolChoice = &toolChoice{Type: string(req.ToolChoice)}
	}
	return json.Marshal(body)
}

func (b *Backend) request(ctx context.Context, req *llm.Request) (io.ReadCloser, error) {
	body, err := b.buildRequestBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Add("x-api-key", b.apiKey)
	httpReq.Header.Add("anthropic-version", b.config.AnthropicVersion)
	httpReq.Header.Add("content-type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}
	return resp.Body, nil
}
